package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig             RedisStorageConfig
	StorageType             StorageType
	HttpPort                int
	LogLevel                string
	ArtifactDir             string
	BrowserRemoteURL        string
	DetectionWindow         int
	DetectionIntervalSecs   int
	SchedulerIntervalSecs   int
	MaxConcurrentExecutions int
	ActionsPerMinute        int
	MinFreeMemoryMB         uint64
	SettleDelayMillis       int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
