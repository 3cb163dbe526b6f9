package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/config"
	"feedrelay/internal/dispatch"
	"feedrelay/internal/fetch"
	"feedrelay/internal/logging"
	"feedrelay/internal/notifications"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/scheduler"
	"feedrelay/internal/summarize"
	"feedrelay/internal/transfer"
)

// Summarizer condenses text and images into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string, images []summarize.Image) (string, error)
}

// ImageShrinker reduces an image before it is sent to the summarizer.
type ImageShrinker interface {
	Downscale(ctx context.Context, source, dest string) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Config     *config.Config
	Gateway    chat.Gateway
	Store      *actionstate.Store
	Pipeline   *pipeline.Pipeline
	Downloader *fetch.Downloader
	Scheduler  *scheduler.Scheduler
	Summarizer Summarizer
	Images     ImageShrinker
	Notifier   notifications.Service
	Logger     *slog.Logger
}

// Engine owns one running relay.
type Engine struct {
	cfg        *config.Config
	gateway    chat.Gateway
	store      *actionstate.Store
	pipe       *pipeline.Pipeline
	downloader *fetch.Downloader
	sched      *scheduler.Scheduler
	summarizer Summarizer
	images     ImageShrinker
	notifier   notifications.Service
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New validates deps and builds an engine.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("engine: config is required")
	case deps.Gateway == nil:
		return nil, errors.New("engine: gateway is required")
	case deps.Store == nil:
		return nil, errors.New("engine: store is required")
	case deps.Pipeline == nil:
		return nil, errors.New("engine: pipeline is required")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New(deps.Config.Transfer.MaxConcurrentDeliveries)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(deps.Config)
	}
	e := &Engine{
		cfg:        deps.Config,
		gateway:    deps.Gateway,
		store:      deps.Store,
		pipe:       deps.Pipeline,
		downloader: deps.Downloader,
		sched:      deps.Scheduler,
		summarizer: deps.Summarizer,
		images:     deps.Images,
		notifier:   deps.Notifier,
		logger:     logging.NewComponentLogger(deps.Logger, "engine"),
	}
	e.dispatcher = dispatch.New(deps.Store, e, dispatch.Options{
		SummarizeCeiling: deps.Config.Actions.SummarizeMaxBytes,
		OnComplete:       e.actionFinished,
		Logger:           deps.Logger,
	})
	return e, nil
}

// Store exposes the action-state store for record administration.
func (e *Engine) Store() *actionstate.Store {
	return e.store
}

// Scheduler exposes the admission gate for status reporting.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.sched
}

// Operations lists the transfers currently in flight.
func (e *Engine) Operations() []transfer.Snapshot {
	return e.pipe.Registry().List()
}

// Prune deletes records older than the configured retention. A zero
// retention keeps everything.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	days := e.cfg.Actions.RetentionDays
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed, err := e.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.logger.Info("pruned expired records", logging.Int64("removed", removed), logging.Int("retention_days", days))
	}
	return removed, nil
}

// Wait blocks until every accepted follow-up has finished.
func (e *Engine) Wait() {
	e.dispatcher.Wait()
}

// Close cancels running transfers and follow-ups and waits for follow-ups to
// return.
func (e *Engine) Close() {
	if n := e.pipe.Registry().CancelAll(); n > 0 {
		e.logger.Info("cancelled running transfers", logging.Int("count", n))
	}
	e.dispatcher.Close()
}
