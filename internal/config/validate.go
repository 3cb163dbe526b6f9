package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateActions(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if c.Telegram.BotToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("telegram.bot_token is required. Set FEEDRELAY_TELEGRAM_TOKEN or edit %s (create with 'feedrelay config init')", defaultPath)
	}
	if c.Telegram.PollTimeoutSeconds >= c.Telegram.RequestTimeoutSeconds {
		return errors.New("telegram.poll_timeout_seconds must be lower than telegram.request_timeout_seconds")
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.MaxConcurrentDeliveries <= 0 {
		return errors.New("transfer.max_concurrent_deliveries must be positive")
	}
	if c.Transfer.BatchSize > MaxTelegramBatch {
		return fmt.Errorf("transfer.batch_size must be at most %d", MaxTelegramBatch)
	}
	if c.Transfer.ProgressIntervalSeconds <= 0 {
		return errors.New("transfer.progress_interval_seconds must be positive")
	}
	if c.Transfer.DownloadTimeoutSeconds <= 0 {
		return errors.New("transfer.download_timeout_seconds must be positive")
	}
	if c.Transfer.UploadTimeoutSeconds <= 0 {
		return errors.New("transfer.upload_timeout_seconds must be positive")
	}
	if c.Transfer.ProbeTimeoutSeconds <= 0 {
		return errors.New("transfer.probe_timeout_seconds must be positive")
	}
	if c.Transfer.RetryAttempts < 1 {
		return errors.New("transfer.retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateActions() error {
	if c.Actions.SummarizeMaxBytes <= 0 {
		return errors.New("actions.summarize_max_bytes must be positive")
	}
	if c.Actions.SummarizeMaxImages < 0 {
		return errors.New("actions.summarize_max_images must not be negative")
	}
	if c.Actions.RetentionDays < 0 {
		return errors.New("actions.retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
