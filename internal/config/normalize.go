package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTelegram()
	c.normalizeTransfer()
	c.normalizeSummarizer()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelegram() {
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	if c.Telegram.BotToken == "" {
		if value, ok := os.LookupEnv("FEEDRELAY_TELEGRAM_TOKEN"); ok {
			c.Telegram.BotToken = strings.TrimSpace(value)
		}
	}
	c.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBaseURL), "/")
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = defaultTelegramAPIBaseURL
	}
	if c.Telegram.PollTimeoutSeconds <= 0 {
		c.Telegram.PollTimeoutSeconds = defaultTelegramPollTimeout
	}
	if c.Telegram.RequestTimeoutSeconds <= 0 {
		c.Telegram.RequestTimeoutSeconds = defaultTelegramRequestTimeout
	}
}

func (c *Config) normalizeTransfer() {
	if c.Transfer.BatchSize <= 0 {
		c.Transfer.BatchSize = defaultBatchSize
	}
	if c.Transfer.ChunkSizeKB <= 0 {
		c.Transfer.ChunkSizeKB = defaultChunkSizeKB
	}
	if c.Transfer.DownloadSpacingMillis < 0 {
		c.Transfer.DownloadSpacingMillis = 0
	}
}

func (c *Config) normalizeSummarizer() {
	c.Summarizer.APIKey = strings.TrimSpace(c.Summarizer.APIKey)
	if c.Summarizer.APIKey == "" {
		if value, ok := os.LookupEnv("FEEDRELAY_SUMMARIZER_API_KEY"); ok {
			c.Summarizer.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Summarizer.BaseURL) == "" {
		c.Summarizer.BaseURL = defaultSummarizerBaseURL
	}
	if strings.TrimSpace(c.Summarizer.Model) == "" {
		c.Summarizer.Model = defaultSummarizerModel
	}
	if c.Summarizer.TimeoutSeconds <= 0 {
		c.Summarizer.TimeoutSeconds = defaultSummarizerTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("FEEDRELAY_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.NtfyServer = strings.TrimRight(strings.TrimSpace(c.Notifications.NtfyServer), "/")
	if c.Notifications.NtfyServer == "" {
		c.Notifications.NtfyServer = defaultNtfyServer
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
