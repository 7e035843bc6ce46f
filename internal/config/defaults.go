package config

const (
	defaultMediaRoot             = "~/.local/share/mediapress/media"
	defaultLogDir                = "~/.local/share/mediapress/logs"
	defaultAPIBind               = "127.0.0.1:8315"
	defaultMaxActiveTasksPerUser = 3
	defaultPipelineWorkers       = 4
	defaultMaxAttempts           = 5
	defaultRetryBackoffSeconds   = 1
	defaultRetryBackoffMax       = 60
	defaultStageTimeoutSeconds   = 300
	defaultFFmpegBinary          = "ffmpeg"
	defaultWatermarkText         = "mediapress"
	defaultStorageRegion         = "us-east-1"
	defaultStorageBucket         = "media"
	defaultRedisAddr             = "127.0.0.1:6379"
	defaultKafkaTopic            = "mediapress.tasks"
	defaultCleanupMaxAgeHours    = 72
	defaultSweepIntervalMinutes  = 60
	defaultReportIntervalMinutes = 1440
	defaultStatusTickMillis      = 1000
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaRoot: defaultMediaRoot,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Quota: Quota{
			MaxActiveTasksPerUser: defaultMaxActiveTasksPerUser,
		},
		Pipeline: Pipeline{
			Workers:             defaultPipelineWorkers,
			MaxAttempts:         defaultMaxAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			RetryBackoffMax:     defaultRetryBackoffMax,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			FFmpegBinary:        defaultFFmpegBinary,
			WatermarkText:       defaultWatermarkText,
		},
		Storage: Storage{
			Region: defaultStorageRegion,
			Bucket: defaultStorageBucket,
		},
		Redis: Redis{
			Addr: defaultRedisAddr,
		},
		Kafka: Kafka{
			Topic: defaultKafkaTopic,
		},
		Maintenance: Maintenance{
			CleanupMaxAgeHours:    defaultCleanupMaxAgeHours,
			SweepIntervalMinutes:  defaultSweepIntervalMinutes,
			ReportIntervalMinutes: defaultReportIntervalMinutes,
		},
		Status: Status{
			TickIntervalMillis: defaultStatusTickMillis,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
