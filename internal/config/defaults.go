package config

const (
	defaultConfigPath              = "~/.config/feedrelay/config.toml"
	defaultStateDir                = "~/.local/share/feedrelay"
	defaultWorkDir                 = "~/.cache/feedrelay/work"
	defaultLogDir                  = "~/.local/share/feedrelay/logs"
	defaultTelegramAPIBaseURL      = "https://api.telegram.org"
	defaultTelegramPollTimeout     = 30
	defaultTelegramRequestTimeout  = 60
	defaultMaxConcurrentDeliveries = 5
	defaultBatchSize               = 10
	defaultProgressInterval        = 2
	defaultDownloadTimeout         = 120
	defaultUploadTimeout           = 600
	defaultProbeTimeout            = 15
	defaultRetryAttempts           = 3
	defaultChunkSizeKB             = 256
	defaultDownloadSpacingMillis   = 1500
	defaultSummarizeMaxBytes       = 50 * 1024 * 1024
	defaultSummarizeMaxImages      = 9
	defaultRecordRetentionDays     = 90
	defaultSummarizerBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultSummarizerModel         = "google/gemini-2.5-flash"
	defaultSummarizerReferer       = "https://github.com/feedrelay/feedrelay"
	defaultSummarizerTitle         = "feedrelay summarizer"
	defaultSummarizerTimeout       = 90
	defaultNtfyServer              = "https://ntfy.sh"
	defaultNotifyRequestTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"

	// MaxTelegramBatch is the largest album the Bot API accepts.
	MaxTelegramBatch = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
		},
		Telegram: Telegram{
			APIBaseURL:            defaultTelegramAPIBaseURL,
			PollTimeoutSeconds:    defaultTelegramPollTimeout,
			RequestTimeoutSeconds: defaultTelegramRequestTimeout,
		},
		Transfer: Transfer{
			MaxConcurrentDeliveries: defaultMaxConcurrentDeliveries,
			BatchSize:               defaultBatchSize,
			ProgressIntervalSeconds: defaultProgressInterval,
			DownloadTimeoutSeconds:  defaultDownloadTimeout,
			UploadTimeoutSeconds:    defaultUploadTimeout,
			ProbeTimeoutSeconds:     defaultProbeTimeout,
			RetryAttempts:           defaultRetryAttempts,
			ChunkSizeKB:             defaultChunkSizeKB,
			DownloadSpacingMillis:   defaultDownloadSpacingMillis,
		},
		Delivery: Delivery{
			DeleteOriginMessage: true,
			Reactions:           true,
		},
		Actions: Actions{
			SummarizeMaxBytes:  defaultSummarizeMaxBytes,
			SummarizeMaxImages: defaultSummarizeMaxImages,
			RetentionDays:      defaultRecordRetentionDays,
		},
		Summarizer: Summarizer{
			BaseURL:        defaultSummarizerBaseURL,
			Model:          defaultSummarizerModel,
			Referer:        defaultSummarizerReferer,
			Title:          defaultSummarizerTitle,
			TimeoutSeconds: defaultSummarizerTimeout,
		},
		Notifications: Notifications{
			NtfyServer:     defaultNtfyServer,
			RequestTimeout: defaultNotifyRequestTimeout,
			Deliveries:     true,
			Actions:        true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Media: Media{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
	}
}
