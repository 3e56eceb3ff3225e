package config

import "github.com/hirewire/scout/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", c.Server.Port)
	}

	if c.Extract.BatchSize < 1 {
		return errors.Newf("extract.batch_size must be >= 1, got %d", c.Extract.BatchSize)
	}
	if c.Extract.CooldownMs < 0 {
		return errors.Newf("extract.cooldown_ms must be >= 0, got %d", c.Extract.CooldownMs)
	}
	if c.Extract.MaxItems < 1 {
		return errors.Newf("extract.max_items must be >= 1, got %d", c.Extract.MaxItems)
	}

	// Retries: 0 = single attempt only, negative = invalid
	if c.Extract.MaxRetries < 0 {
		return errors.Newf("extract.max_retries must be >= 0, got %d", c.Extract.MaxRetries)
	}
	if c.Extract.RetryBaseDelayMs < 0 {
		return errors.Newf("extract.retry_base_delay_ms must be >= 0, got %d", c.Extract.RetryBaseDelayMs)
	}
	if c.Extract.ItemTimeoutSeconds <= 0 {
		return errors.Newf("extract.item_timeout_seconds must be > 0, got %d", c.Extract.ItemTimeoutSeconds)
	}

	// Rate limit: 0 = unlimited, negative = invalid
	if c.Extract.MaxCallsPerMinute < 0 {
		return errors.Newf("extract.max_calls_per_minute must be >= 0, got %d", c.Extract.MaxCallsPerMinute)
	}

	if c.Extract.DownloadCVs && c.Extract.CVDir == "" {
		return errors.New("extract.cv_dir cannot be empty when download_cvs is enabled")
	}

	if c.Source.RequestsPerSecond < 0 {
		return errors.Newf("source.requests_per_second must be >= 0, got %f", c.Source.RequestsPerSecond)
	}

	return nil
}
