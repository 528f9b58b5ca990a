package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	var problems []string

	if err := c.validateLocales(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validatePipeline(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateQueue(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateLimits(); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateLocales() error {
	if c.Locales.Canonical == "" {
		return errors.New("locales.canonical must not be empty")
	}
	if len(c.Locales.Supported) == 0 {
		return errors.New("locales.supported must include at least one locale")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	switch {
	case p.MaxAttempts < 1:
		return errors.New("pipeline.max_attempts must be at least 1")
	case p.StaleInFlightSeconds < 1:
		return errors.New("pipeline.stale_in_flight_seconds must be positive")
	case p.BackoffBaseSeconds < 1:
		return errors.New("pipeline.backoff_base_seconds must be positive")
	case p.BackoffCapSeconds < p.BackoffBaseSeconds:
		return errors.New("pipeline.backoff_cap_seconds must be >= backoff_base_seconds")
	case p.SweepIntervalSeconds < 1:
		return errors.New("pipeline.sweep_interval_seconds must be positive")
	case p.SweepBatchSize < 1:
		return errors.New("pipeline.sweep_batch_size must be positive")
	case p.TranslateWorkers < 1:
		return errors.New("pipeline.translate_workers must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.TranslateSubject == "" || c.Queue.PublishSubject == "" {
		return errors.New("queue subjects must not be empty")
	}
	if c.Executor.TimeoutSeconds < 1 {
		return errors.New("executor.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLimits() error {
	l := c.Limits
	switch {
	case l.MaxOps < 1:
		return errors.New("limits.max_ops must be positive")
	case l.MaxOpValueBytes < 1:
		return errors.New("limits.max_op_value_bytes must be positive")
	case l.MaxOverlayBytes < l.MaxOpValueBytes:
		return errors.New("limits.max_overlay_bytes must be >= max_op_value_bytes")
	case l.MaxTranslateItems < 1:
		return errors.New("limits.max_translate_items must be positive")
	case l.MaxTranslateChars < 1:
		return errors.New("limits.max_translate_chars must be positive")
	}
	return nil
}
