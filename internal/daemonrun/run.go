package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat/telegram"
	"feedrelay/internal/config"
	"feedrelay/internal/daemon"
	"feedrelay/internal/deps"
	"feedrelay/internal/engine"
	"feedrelay/internal/fetch"
	"feedrelay/internal/ipc"
	"feedrelay/internal/logging"
	"feedrelay/internal/media/transcode"
	"feedrelay/internal/notifications"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/preflight"
	"feedrelay/internal/scheduler"
	"feedrelay/internal/summarize"
)

const userAgent = "feedrelay/1.0"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the feedrelay daemon and blocks until the context is cancelled
// or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	outputs := []string{"stdout"}
	var logPath string
	if cfg.Paths.LogDir != "" {
		logPath = filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("feedrelay-%s.log", runID))
		outputs = append(outputs, logPath)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if logPath != "" {
		if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to update feedrelay.log link: %v\n", err)
		}
		logging.PruneRunLogs(logger, cfg.Paths.LogDir, "feedrelay-*.log", logPath, cfg.Logging.RetentionDays)
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "feedrelay.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(signalCtx, logger, cfg)

	store, err := actionstate.Open(cfg)
	if err != nil {
		logger.Error("open action state store", logging.Error(err))
		return err
	}

	tg := telegram.New(nil, cfg.Telegram.BotToken, telegram.Options{
		BaseURL:        cfg.Telegram.APIBaseURL,
		RequestTimeout: time.Duration(cfg.Telegram.RequestTimeoutSeconds) * time.Second,
		UploadTimeout:  cfg.UploadTimeout(),
		PollTimeout:    time.Duration(cfg.Telegram.PollTimeoutSeconds) * time.Second,
		Retries:        cfg.Transfer.RetryAttempts,
		Logger:         logger,
	})

	eng, err := buildEngine(cfg, store, tg, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create engine: %w", err)
	}

	notifier := notifications.NewService(cfg)
	d, err := daemon.New(cfg, eng, tg, logger, daemon.WithNotifier(notifier))
	if err != nil {
		eng.Close()
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "stop the other instance or remove a stale lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("feedrelay daemon shutting down")
	return nil
}

func buildEngine(cfg *config.Config, store *actionstate.Store, tg *telegram.Client, logger *slog.Logger) (*engine.Engine, error) {
	downloader := fetch.New(&http.Client{}, fetch.Options{
		Timeout:   cfg.DownloadTimeout(),
		Retries:   cfg.Transfer.RetryAttempts,
		ChunkSize: cfg.ChunkSize(),
		UserAgent: userAgent,
		Logger:    logger,
	})

	ffmpeg := deps.Resolve(cfg.FFmpegBinary())
	ffprobe := deps.Resolve(cfg.FFprobeBinary())
	pipe, err := pipeline.New(pipeline.Deps{
		Gateway:          tg,
		Downloader:       downloader,
		Tools:            pipeline.NewFFmpegTools(ffmpeg, ffprobe, cfg.ProbeTimeout()),
		WorkDir:          cfg.Paths.WorkDir,
		ProgressInterval: cfg.ProgressInterval(),
		DownloadSpacing:  cfg.DownloadSpacing(),
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	var summarizer engine.Summarizer
	sc := cfg.GetSummarizer()
	client := summarize.NewClient(summarize.Config{
		APIKey:         sc.APIKey,
		BaseURL:        sc.BaseURL,
		Model:          sc.Model,
		Referer:        sc.Referer,
		Title:          sc.Title,
		TimeoutSeconds: sc.TimeoutSeconds,
	})
	if client.Configured() {
		summarizer = client
	}

	return engine.New(engine.Deps{
		Config:     cfg,
		Gateway:    tg,
		Store:      store,
		Pipeline:   pipe,
		Downloader: downloader,
		Scheduler:  scheduler.New(cfg.Transfer.MaxConcurrentDeliveries),
		Summarizer: summarizer,
		Images:     transcode.New(ffmpeg),
		Notifier:   notifications.NewService(cfg),
		Logger:     logger,
	})
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "deliveries may fail until resolved"),
		)
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("dependency", status.Name),
			logging.String("command", status.Command),
			logging.Bool("available", status.Available),
			logging.Bool("optional", status.Optional),
			logging.String("detail", status.Detail),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "feedrelay.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
