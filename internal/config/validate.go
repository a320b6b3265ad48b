package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateMontage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return fmt.Errorf("paths.work_dir is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.TTLHours <= 0 {
		return fmt.Errorf("store.ttl_hours must be positive, got %d", c.Store.TTLHours)
	}
	if c.Store.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("store.sweep_interval_minutes must be positive, got %d", c.Store.SweepIntervalMinutes)
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Driver {
	case "memory":
	case "amqp":
		if strings.TrimSpace(c.Queue.AMQPURL) == "" {
			return fmt.Errorf("queue.amqp_url is required when queue.driver is amqp")
		}
	default:
		return fmt.Errorf("queue.driver must be memory or amqp, got %q", c.Queue.Driver)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be positive, got %d", c.Queue.Workers)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxSizeMiB <= 0 {
		return fmt.Errorf("fetch.max_size_mib must be positive, got %d", c.Fetch.MaxSizeMiB)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.SubtitleFailurePolicy {
	case "fail", "continue":
	default:
		return fmt.Errorf("pipeline.subtitle_failure_policy must be fail or continue, got %q", c.Pipeline.SubtitleFailurePolicy)
	}
	if c.Pipeline.CircleScale <= 0 || c.Pipeline.CircleScale > 1 {
		return fmt.Errorf("pipeline.circle_scale must be in (0, 1], got %g", c.Pipeline.CircleScale)
	}
	return nil
}

func (c *Config) validateMontage() error {
	if !c.Montage.Delegate {
		return nil
	}
	if strings.TrimSpace(c.Montage.BaseURL) == "" {
		return fmt.Errorf("montage.base_url is required when montage.delegate is true")
	}
	if c.Montage.PollIntervalSeconds <= 0 {
		return fmt.Errorf("montage.poll_interval_seconds must be positive, got %d", c.Montage.PollIntervalSeconds)
	}
	if c.Montage.MaxAttempts <= 0 {
		return fmt.Errorf("montage.max_attempts must be positive, got %d", c.Montage.MaxAttempts)
	}
	return nil
}
