// Package agent wires the whole process together: storage, adapters,
// engine, detector, scheduler, feedback loop and the REST surface.
package agent

import (
	"sync"
	"time"

	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/adapter/browser"
	"github.com/recurhq/recur/adapter/desktop"
	"github.com/recurhq/recur/adapter/office"
	"github.com/recurhq/recur/cache"
	"github.com/recurhq/recur/config"
	"github.com/recurhq/recur/detector"
	"github.com/recurhq/recur/engine"
	"github.com/recurhq/recur/feedback"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/parameterizer"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/persistence/inmem"
	rdstorage "github.com/recurhq/recur/persistence/redis"
	"github.com/recurhq/recur/rest"
	"github.com/recurhq/recur/safety"
	"github.com/recurhq/recur/scheduler"
	"github.com/recurhq/recur/service"
	"github.com/recurhq/recur/util"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const workflowCacheTTL = 30 * time.Second

type Agent struct {
	Config config.Config

	storage          persistence.Storage
	registry         *adapter.Registry
	stopSignal       *safety.StopSignal
	engine           *engine.Engine
	detectorTicker   *util.TickWorker
	scheduler        *scheduler.Scheduler
	feedbackWorker   *util.Worker
	workflowService  *service.WorkflowService
	executionService *service.ExecutionService
	httpServer       *rest.Server

	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{Config: conf}
	setup := []func() error{
		a.setupStorage,
		a.setupAdapters,
		a.setupEngine,
		a.setupFeedback,
		a.setupServices,
		a.setupDetector,
		a.setupScheduler,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_INMEM:
		a.storage = inmem.NewStorage()
	default:
		a.storage = rdstorage.NewStorage(rdstorage.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		})
	}
	return nil
}

func (a *Agent) setupAdapters() error {
	a.registry = adapter.NewRegistry()
	a.registry.Register(model.SURFACE_DESKTOP, desktop.New)
	a.registry.Register(model.SURFACE_BROWSER, browser.New(a.Config.BrowserRemoteURL))
	a.registry.Register(model.SURFACE_OFFICE, office.New(afero.NewOsFs()))
	return nil
}

func (a *Agent) setupEngine() error {
	a.stopSignal = safety.NewStopSignal()
	params := parameterizer.New()
	validator := safety.NewValidator(a.registry, params, a.Config.MinFreeMemoryMB)
	artifacts := engine.NewArtifactStore(afero.NewOsFs(), a.Config.ArtifactDir)
	a.engine = engine.New(a.storage, a.registry, validator, params, a.stopSignal, artifacts,
		engine.Options{
			Workers:          a.Config.MaxConcurrentExecutions,
			ActionsPerMinute: a.Config.ActionsPerMinute,
			SettleDelay:      time.Duration(a.Config.SettleDelayMillis) * time.Millisecond,
		})

	interrupted, err := a.engine.RecoverInterrupted()
	if err != nil {
		return err
	}
	if interrupted > 0 {
		logger.Warn("executions interrupted by previous shutdown", zap.Int("count", interrupted))
	}
	a.engine.Start()
	return nil
}

func (a *Agent) setupFeedback() error {
	feedbackModel := feedback.New(a.storage)
	a.feedbackWorker = util.NewWorker("feedback", &a.wg, func(task util.Task) error {
		execution, ok := task.(*model.Execution)
		if !ok {
			return nil
		}
		return feedbackModel.Record(execution)
	}, 64)
	a.feedbackWorker.Start()
	a.engine.OnTerminal(func(execution *model.Execution) {
		a.feedbackWorker.Sender() <- execution
	})
	return nil
}

func (a *Agent) setupServices() error {
	a.workflowService = service.NewWorkflowService(a.storage,
		detector.NewDetector(a.storage, a.Config.DetectionWindow),
		parameterizer.New(), cache.NewWorkflowCache(workflowCacheTTL))
	a.executionService = service.NewExecutionService(a.storage, a.engine, a.stopSignal)
	return nil
}

func (a *Agent) setupDetector() error {
	interval := time.Duration(a.Config.DetectionIntervalSecs) * time.Second
	a.detectorTicker = util.NewTickWorker("detector", interval, func() {
		if _, err := a.workflowService.DetectNow(); err != nil {
			logger.Error("detection pass failed", zap.Error(err))
		}
	}, &a.wg)
	a.detectorTicker.Start()
	return nil
}

func (a *Agent) setupScheduler() error {
	interval := time.Duration(a.Config.SchedulerIntervalSecs) * time.Second
	a.scheduler = scheduler.New(a.storage, a.engine, interval, &a.wg)
	a.scheduler.Start()
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.workflowService,
		a.executionService, a.scheduler, a.storage)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error { a.scheduler.Stop(); return nil },
		func() error { a.detectorTicker.Stop(); return nil },
		func() error { a.engine.Shutdown(); return nil },
		func() error { a.feedbackWorker.Stop(); return nil },
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
