package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
}

// Telegram contains Bot API connection settings.
type Telegram struct {
	BotToken              string  `toml:"bot_token"`
	APIBaseURL            string  `toml:"api_base_url"`
	PollTimeoutSeconds    int     `toml:"poll_timeout_seconds"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	AllowedChatIDs        []int64 `toml:"allowed_chat_ids"`
}

// Transfer contains download/upload tuning for the media pipeline.
type Transfer struct {
	MaxConcurrentDeliveries int `toml:"max_concurrent_deliveries"`
	BatchSize               int `toml:"batch_size"`
	ProgressIntervalSeconds int `toml:"progress_interval_seconds"`
	DownloadTimeoutSeconds  int `toml:"download_timeout_seconds"`
	UploadTimeoutSeconds    int `toml:"upload_timeout_seconds"`
	ProbeTimeoutSeconds     int `toml:"probe_timeout_seconds"`
	RetryAttempts           int `toml:"retry_attempts"`
	ChunkSizeKB             int `toml:"chunk_size_kb"`
	DownloadSpacingMillis   int `toml:"download_spacing_ms"`
}

// Delivery contains the default choices applied to new deliveries.
type Delivery struct {
	SendAsFile          bool `toml:"send_as_file"`
	IncludeLiveMedia    bool `toml:"include_live_media"`
	UseAlternateLink    bool `toml:"use_alternate_link"`
	DeleteOriginMessage bool `toml:"delete_origin_message"`
	Reactions           bool `toml:"reactions"`
}

// Actions contains limits for user-triggered follow-up actions.
type Actions struct {
	SummarizeMaxBytes  int64 `toml:"summarize_max_bytes"`
	SummarizeMaxImages int   `toml:"summarize_max_images"`
	RetentionDays      int   `toml:"retention_days"`
}

// Summarizer contains OpenAI-compatible chat completion settings.
type Summarizer struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy admin alerts.
type Notifications struct {
	NtfyServer     string `toml:"ntfy_server"`
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Deliveries     bool   `toml:"deliveries"`
	Actions        bool   `toml:"actions"`
}

// Metrics contains the Prometheus listener configuration.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Media contains external media tool locations.
type Media struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Config encapsulates all configuration values for feedrelay.
//
// Configuration sections by subsystem:
//   - Paths: state database, scratch media, and log directories
//   - Telegram: Bot API token, endpoint, and polling
//   - Transfer: concurrency, batching, progress cadence, and timeouts
//   - Delivery: default delivery choices and post-delivery housekeeping
//   - Actions: follow-up action limits and record retention
//   - Summarizer: AI summary endpoint
//   - Notifications: ntfy admin alerts
//   - Metrics: Prometheus listener
//   - Logging: log format, level, and retention
//   - Media: ffmpeg/ffprobe binaries
type Config struct {
	Paths         Paths         `toml:"paths"`
	Telegram      Telegram      `toml:"telegram"`
	Transfer      Transfer      `toml:"transfer"`
	Delivery      Delivery      `toml:"delivery"`
	Actions       Actions       `toml:"actions"`
	Summarizer    Summarizer    `toml:"summarizer"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
	Media         Media         `toml:"media"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("feedrelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the action state database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "actions.db")
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "feedrelay.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "feedrelay.lock")
}

// FFmpegBinary returns the ffmpeg executable used for transcoding.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Media.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable used for media metadata.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Media.FFprobeBinary); bin != "" {
		return bin
	}
	return defaultFFprobeBinary
}

// ProgressInterval is the minimum spacing between progress message edits.
func (c *Config) ProgressInterval() time.Duration {
	return seconds(c.Transfer.ProgressIntervalSeconds)
}

// DownloadTimeout bounds a single download attempt.
func (c *Config) DownloadTimeout() time.Duration {
	return seconds(c.Transfer.DownloadTimeoutSeconds)
}

// UploadTimeout bounds a single upload call.
func (c *Config) UploadTimeout() time.Duration {
	return seconds(c.Transfer.UploadTimeoutSeconds)
}

// ProbeTimeout bounds metadata probing.
func (c *Config) ProbeTimeout() time.Duration {
	return seconds(c.Transfer.ProbeTimeoutSeconds)
}

// DownloadSpacing is the pause between sequential photo downloads.
func (c *Config) DownloadSpacing() time.Duration {
	return time.Duration(c.Transfer.DownloadSpacingMillis) * time.Millisecond
}

// ChunkSize returns the streaming chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Transfer.ChunkSizeKB * 1024
}

// SummarizerConfig contains the LLM settings used for the summarize action.
type SummarizerConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetSummarizer returns the trimmed summarizer connection settings.
func (c *Config) GetSummarizer() SummarizerConfig {
	return SummarizerConfig{
		APIKey:         strings.TrimSpace(c.Summarizer.APIKey),
		BaseURL:        strings.TrimSpace(c.Summarizer.BaseURL),
		Model:          strings.TrimSpace(c.Summarizer.Model),
		Referer:        strings.TrimSpace(c.Summarizer.Referer),
		Title:          strings.TrimSpace(c.Summarizer.Title),
		TimeoutSeconds: c.Summarizer.TimeoutSeconds,
	}
}

// ChatAllowed reports whether deliveries and triggers from chatID are accepted.
// An empty allow-list accepts every chat.
func (c *Config) ChatAllowed(chatID int64) bool {
	if len(c.Telegram.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
