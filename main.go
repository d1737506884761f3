package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/recurhq/recur/agent"
	"github.com/recurhq/recur/config"
	"github.com/recurhq/recur/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "recur", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().String("log-level", "info", "minimum log level")
	cmd.Flags().String("artifact-dir", "artifacts", "directory for execution artifacts")
	cmd.Flags().String("browser-remote-url", "", "devtools websocket url of a running browser; empty launches one")
	cmd.Flags().Int("detection-window", 50, "number of recent actions scanned for patterns")
	cmd.Flags().Int("detection-interval", 30, "seconds between detection passes")
	cmd.Flags().Int("scheduler-interval", 15, "seconds between schedule scans")
	cmd.Flags().Int("max-concurrent-executions", 2, "executions running in parallel")
	cmd.Flags().Int("actions-per-minute", 60, "global action dispatch rate limit")
	cmd.Flags().Uint64("min-free-memory-mb", 256, "free memory required to admit an execution")
	cmd.Flags().Int("settle-delay-millis", 300, "delay after each action before capturing state")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.ArtifactDir = viper.GetString("artifact-dir")
	c.cfg.BrowserRemoteURL = viper.GetString("browser-remote-url")
	c.cfg.DetectionWindow = viper.GetInt("detection-window")
	c.cfg.DetectionIntervalSecs = viper.GetInt("detection-interval")
	c.cfg.SchedulerIntervalSecs = viper.GetInt("scheduler-interval")
	c.cfg.MaxConcurrentExecutions = viper.GetInt("max-concurrent-executions")
	c.cfg.ActionsPerMinute = viper.GetInt("actions-per-minute")
	c.cfg.MinFreeMemoryMB = viper.GetUint64("min-free-memory-mb")
	c.cfg.SettleDelayMillis = viper.GetInt("settle-delay-millis")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	if err := logger.Init(c.cfg.LogLevel); err != nil {
		return err
	}
	agent, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	if err := agent.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "recur",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
