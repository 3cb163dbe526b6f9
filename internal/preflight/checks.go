package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"feedrelay/internal/chat/telegram"
	"feedrelay/internal/config"
	"feedrelay/internal/deps"
	"feedrelay/internal/summarize"
)

// CheckSummarizer verifies that the summarizer endpoint is reachable and the
// key is valid. It uses a 30-second timeout and a single attempt.
func CheckSummarizer(ctx context.Context, cfg *config.Config) Result {
	const name = "Summarizer"
	s := cfg.GetSummarizer()
	if s.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	if s.Model == "" {
		return Result{Name: name, Detail: "model missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := summarize.NewClient(summarize.Config{
		APIKey:  s.APIKey,
		BaseURL: s.BaseURL,
		Model:   s.Model,
		Referer: s.Referer,
		Title:   s.Title,
	}, summarize.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: describeError("summarizer", err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckTelegram verifies the bot token with getMe.
func CheckTelegram(ctx context.Context, cfg *config.Config) Result {
	const name = "Telegram"
	if cfg.Telegram.BotToken == "" {
		return Result{Name: name, Detail: "bot token missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := telegram.New(&http.Client{Timeout: 10 * time.Second}, cfg.Telegram.BotToken, telegram.Options{
		BaseURL:        cfg.Telegram.APIBaseURL,
		RequestTimeout: 10 * time.Second,
	})
	me, err := client.GetMe(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: describeError("Bot API", err)}
	}
	if !me.IsBot {
		return Result{Name: name, Detail: fmt.Sprintf("token belongs to @%s, which is not a bot", me.Username)}
	}
	return Result{Name: name, Passed: true, Detail: "@" + me.Username}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the media tools for the given config. Both the
// daemon and the CLI check command use it.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.MediaRequirements(
		deps.Resolve(cfg.FFmpegBinary()),
		deps.Resolve(cfg.FFprobeBinary()),
	))
}

func describeError(what string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("health check timed out (%s unresponsive)", what)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("health check timed out (%s unreachable)", what)
	}
	return err.Error()
}
