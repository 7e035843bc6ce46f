package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQuota(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateIntegrations(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQuota() error {
	if c.Quota.MaxActiveTasksPerUser < 1 {
		return errors.New("quota.max_active_tasks_per_user must be at least 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return errors.New("pipeline.max_attempts must be at least 1")
	}
	if c.Pipeline.RetryBackoffSeconds < 1 {
		return errors.New("pipeline.retry_backoff_seconds must be at least 1")
	}
	if c.Pipeline.RetryBackoffMax < c.Pipeline.RetryBackoffSeconds {
		return errors.New("pipeline.retry_backoff_max_seconds must be >= retry_backoff_seconds")
	}
	if c.Pipeline.StageTimeoutSeconds < 1 {
		return errors.New("pipeline.stage_timeout_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage is enabled")
	}
	if c.Storage.Region == "" {
		return errors.New("storage.region must be set when storage is enabled")
	}
	return nil
}

func (c *Config) validateIntegrations() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr must be set when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers must be set when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic must be set when kafka is enabled")
		}
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	if c.Maintenance.CleanupMaxAgeHours < 1 {
		return fmt.Errorf("maintenance.cleanup_max_age_hours must be at least 1, got %d", c.Maintenance.CleanupMaxAgeHours)
	}
	if c.Maintenance.SweepIntervalMinutes < 1 {
		return errors.New("maintenance.sweep_interval_minutes must be at least 1")
	}
	if c.Maintenance.ReportIntervalMinutes < 1 {
		return errors.New("maintenance.report_interval_minutes must be at least 1")
	}
	return nil
}
