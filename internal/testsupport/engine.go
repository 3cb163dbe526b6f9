package testsupport

import (
	"net/http"
	"testing"

	"feedrelay/internal/chat"
	"feedrelay/internal/config"
	"feedrelay/internal/engine"
	"feedrelay/internal/fetch"
	"feedrelay/internal/pipeline"
)

// NewEngine wires an engine over gateway with a fresh store and no media
// tools or summarizer. Running transfers are cancelled at cleanup.
func NewEngine(t testing.TB, cfg *config.Config, gateway chat.Gateway) *engine.Engine {
	t.Helper()

	store := MustOpenStore(t, cfg)
	downloader := fetch.New(http.DefaultClient, fetch.Options{
		Timeout: cfg.DownloadTimeout(),
		Retries: cfg.Transfer.RetryAttempts,
	})
	pipe, err := pipeline.New(pipeline.Deps{
		Gateway:    gateway,
		Downloader: downloader,
		WorkDir:    cfg.Paths.WorkDir,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	eng, err := engine.New(engine.Deps{
		Config:     cfg,
		Gateway:    gateway,
		Store:      store,
		Pipeline:   pipe,
		Downloader: downloader,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}
