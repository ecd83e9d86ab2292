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
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		return fmt.Errorf("paths.socket_path is required")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return fmt.Errorf("paths.api_bind is required")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.ElementCacheTTLSeconds <= 0 {
		return fmt.Errorf("capture.element_cache_ttl_seconds must be positive, got %d", c.Capture.ElementCacheTTLSeconds)
	}
	if c.Capture.ActionDebounceSeconds < 0 {
		return fmt.Errorf("capture.action_debounce_seconds must not be negative, got %d", c.Capture.ActionDebounceSeconds)
	}
	if c.Capture.PresenceDebounceMillis <= 0 {
		return fmt.Errorf("capture.presence_debounce_millis must be positive, got %d", c.Capture.PresenceDebounceMillis)
	}
	if c.Capture.CaptionDebounceMillis < 0 {
		return fmt.Errorf("capture.caption_debounce_millis must not be negative, got %d", c.Capture.CaptionDebounceMillis)
	}
	if c.Capture.WaitElementTimeoutSeconds <= 0 {
		return fmt.Errorf("capture.wait_element_timeout_seconds must be positive, got %d", c.Capture.WaitElementTimeoutSeconds)
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.IntervalSeconds <= 0 {
		return fmt.Errorf("backup.interval_seconds must be positive, got %d", c.Backup.IntervalSeconds)
	}
	if c.Backup.IntervalSeconds >= 60 {
		return fmt.Errorf("backup.interval_seconds must be sub-minute, got %d", c.Backup.IntervalSeconds)
	}
	if c.Backup.HistoryLimit <= 0 {
		return fmt.Errorf("backup.history_limit must be positive, got %d", c.Backup.HistoryLimit)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
