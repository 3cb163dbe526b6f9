package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"feedrelay/internal/chat"
	"feedrelay/internal/config"
	"feedrelay/internal/content"
	"feedrelay/internal/fetch"
	"feedrelay/internal/logging"
	"feedrelay/internal/metrics"
	"feedrelay/internal/progress"
	"feedrelay/internal/services"
	"feedrelay/internal/transfer"
)

var errNoVideoStream = errors.New("no video stream")

// finalEditTimeout bounds the status edit made after the delivery context
// ended.
const finalEditTimeout = 15 * time.Second

// Deps wires the pipeline to its collaborators.
type Deps struct {
	Gateway          chat.Gateway
	Downloader       *fetch.Downloader
	Tools            MediaTools
	Registry         *transfer.Registry
	WorkDir          string
	ProgressInterval time.Duration
	DownloadSpacing  time.Duration
	Logger           *slog.Logger
}

// Pipeline executes deliveries.
type Pipeline struct {
	gateway    chat.Gateway
	downloader *fetch.Downloader
	tools      MediaTools
	registry   *transfer.Registry
	workDir    string
	interval   time.Duration
	spacing    time.Duration
	logger     *slog.Logger
}

// New validates deps and constructs a pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Gateway == nil {
		return nil, errors.New("pipeline: gateway is required")
	}
	if deps.Downloader == nil {
		return nil, errors.New("pipeline: downloader is required")
	}
	if deps.Registry == nil {
		deps.Registry = transfer.NewRegistry()
	}
	if strings.TrimSpace(deps.WorkDir) == "" {
		deps.WorkDir = os.TempDir()
	}
	return &Pipeline{
		gateway:    deps.Gateway,
		downloader: deps.Downloader,
		tools:      deps.Tools,
		registry:   deps.Registry,
		workDir:    deps.WorkDir,
		interval:   deps.ProgressInterval,
		spacing:    deps.DownloadSpacing,
		logger:     logging.NewComponentLogger(deps.Logger, "pipeline"),
	}, nil
}

// Registry exposes the operation registry used for transfer control.
func (p *Pipeline) Registry() *transfer.Registry {
	return p.registry
}

// run is the mutable state of one delivery.
type run struct {
	p        *Pipeline
	req      Request
	opts     Options
	op       *transfer.Operation
	status   chat.Ref
	dir      string
	caption  string
	link     string
	logger   *slog.Logger
	throttle *progress.Throttle
	sampler  *logging.ProgressSampler

	mu           sync.Mutex
	content      []chat.Ref
	comments     []chat.Ref
	delivered    content.Manifest
	failed       content.Manifest
	bytes        int64
	captionSent  bool
	summary      string
	commentFails int
}

func (r *run) addContent(refs ...chat.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = append(r.content, refs...)
}

func (r *run) addComment(refs ...chat.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = append(r.comments, refs...)
}

// anchor is the message comments attach to when their parent is unknown.
func (r *run) anchor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.content) > 0 {
		return r.content[0].Message
	}
	if !r.status.IsZero() {
		return r.status.Message
	}
	return r.req.ReplyTo
}

// report pushes the operation state into the status message. Unforced
// updates are rate limited by the throttle.
func (r *run) report(ctx context.Context, force bool) {
	if r.status.IsZero() {
		return
	}
	if force {
		r.throttle.Force()
	} else if !r.throttle.Allow() {
		return
	}
	snap := r.op.Snapshot()
	if err := r.p.gateway.EditMessage(ctx, r.status, StatusText(snap, time.Now()), ControlButtons(snap.Paused())); err != nil {
		r.logger.Debug("status update failed", logging.Error(err))
	}
	pct := progress.Percent(snap.Transferred, snap.Expected)
	if r.sampler.ShouldLog(pct, string(snap.Phase)) {
		r.logger.Info("transfer progress",
			logging.String(logging.FieldPhase, string(snap.Phase)),
			logging.Int64("transferred_bytes", snap.Transferred),
			logging.Int64("expected_bytes", snap.Expected),
			logging.Int("percent", int(pct)),
		)
	}
}

// Deliver runs one delivery to completion, cancellation, or failure. The
// returned Result always lists the messages that were actually sent.
func (p *Pipeline) Deliver(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{}
	if req.Item == nil {
		res.Status = StatusFailed
		res.Err = services.Wrap(services.ErrValidation, "pipeline", "deliver", "item is required", nil)
		return res
	}
	if err := req.Item.Validate(); err != nil {
		res.Status = StatusFailed
		res.Err = services.Wrap(services.ErrValidation, "pipeline", "deliver", "invalid item", err)
		return res
	}
	req.Item.Normalize()

	opts := req.Options
	if opts.BatchSize <= 0 || opts.BatchSize > config.MaxTelegramBatch {
		opts.BatchSize = config.MaxTelegramBatch
	}
	media := req.Media
	if media == nil {
		media = req.Item.Manifest.Filter(opts.IncludeLiveMedia)
	}
	strategy := Classify(media)
	res.Strategy = strategy

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = strings.TrimSpace(req.Item.Title)
	}
	if label == "" {
		label = "Item " + req.Item.ID
	}
	op := transfer.NewOperation(label)
	res.OperationID = op.ID

	ctx = services.WithOperationID(ctx, op.ID)
	ctx = services.WithChatID(ctx, req.ChatID)
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String("strategy", string(strategy)),
		logging.String("item_id", req.Item.ID),
		logging.Int("media_count", len(media)),
	)

	caption := req.Caption
	if caption == "" {
		caption = req.Item.Caption(opts.UseAlternateLink)
	}
	r := &run{
		p:        p,
		req:      req,
		opts:     opts,
		op:       op,
		caption:  caption,
		link:     req.Item.Link(opts.UseAlternateLink),
		logger:   logger,
		throttle: progress.NewThrottle(p.interval),
		sampler:  logging.NewProgressSampler(25),
	}

	dir, err := os.MkdirTemp(p.workDir, "delivery-")
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("create work dir: %w", err)
		return res
	}
	r.dir = dir
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Debug("work dir cleanup failed", logging.Error(err))
		}
	}()

	if strategy != StrategyText || (!req.SkipComments && len(req.Item.Comments) > 0) {
		r.openStatus(ctx)
	}
	if !r.status.IsZero() {
		key := r.status.Key()
		if err := p.registry.Register(key, op); err != nil {
			logger.Warn("operation registration failed", logging.Error(err))
		} else {
			defer p.registry.Remove(key, op)
		}
	}

	logger.Info("delivery started", logging.String(logging.FieldEventType, "delivery_start"))
	err = r.execute(ctx, strategy, media)
	if err == nil && !r.captionSent && strings.TrimSpace(r.caption) != "" {
		// The caption-bearing send failed; keep the text.
		if ref, sendErr := p.gateway.SendMessage(ctx, req.ChatID, r.caption, chat.SendOptions{ReplyTo: req.ReplyTo}); sendErr == nil {
			r.addContent(ref)
			r.captionSent = true
		}
	}
	if err == nil && !req.SkipComments && len(req.Item.Comments) > 0 {
		err = r.sendComments(ctx, req.Item.Comments)
	}

	res = r.result(err)
	res.Strategy = strategy
	res.OperationID = op.ID
	res.Duration = time.Since(start)
	r.finish(ctx, res)
	metrics.RecordDelivery(string(strategy), string(res.Status), res.Duration.Seconds())

	switch res.Status {
	case StatusDelivered:
		logger.Info("delivery completed",
			logging.String(logging.FieldEventType, "delivery_complete"),
			logging.Int("messages", len(res.Messages)),
			logging.Int64("transferred_bytes", res.TransferredBytes),
			logging.Duration("duration", res.Duration),
		)
	case StatusCancelled:
		logger.Info("delivery cancelled",
			logging.String(logging.FieldEventType, "delivery_cancelled"),
			logging.Int("messages", len(res.Messages)),
		)
	case StatusPartial:
		logging.WarnWithContext(ctx, logger, "delivery partially completed", "delivery_partial",
			logging.Int("failed_media", len(res.Failed)),
			logging.String(logging.FieldErrorHint, "check media source availability"),
			logging.String(logging.FieldImpact, "some media were not relayed"),
		)
	default:
		logging.ErrorWithContext(ctx, logger, "delivery failed", "delivery_failed",
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "inspect the transfer error and retry the delivery"),
		)
	}
	return res
}

func (r *run) openStatus(ctx context.Context) {
	snap := r.op.Snapshot()
	ref, err := r.p.gateway.SendMessage(ctx, r.req.ChatID, StatusText(snap, time.Now()), chat.SendOptions{
		ReplyTo:        r.req.ReplyTo,
		Buttons:        ControlButtons(false),
		DisablePreview: true,
	})
	if err != nil {
		r.logger.Warn("status message failed; continuing without progress", logging.Error(err))
		return
	}
	r.status = ref
	r.op.SetProgressMessage(ref)
	r.logger = r.logger.With(logging.String(logging.FieldOperationKey, ref.Key()))
}

func (r *run) execute(ctx context.Context, strategy Strategy, media content.Manifest) error {
	switch strategy {
	case StrategyVideo:
		return r.sendVideo(ctx, media[0])
	case StrategyBatch:
		return r.sendBatch(ctx, media)
	default:
		return r.sendText(ctx)
	}
}

func (r *run) sendText(ctx context.Context) error {
	text := strings.TrimSpace(r.caption)
	if text == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "send text", "item has no media and no text", nil)
	}
	ref, err := r.p.gateway.SendMessage(ctx, r.req.ChatID, text, chat.SendOptions{ReplyTo: r.req.ReplyTo})
	if err != nil {
		return services.Wrap(services.ErrTransferFailed, "pipeline", "send text", "send message", err)
	}
	r.addContent(ref)
	r.captionSent = true
	r.summary = "text"
	return nil
}

func (r *run) result(err error) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		StatusMessage:    r.status,
		Messages:         append(append([]chat.Ref(nil), r.content...), r.comments...),
		Delivered:        append(content.Manifest(nil), r.delivered...),
		Failed:           append(content.Manifest(nil), r.failed...),
		TransferredBytes: r.bytes,
		Summary:          r.summary,
	}
	switch {
	case err == nil && len(r.failed) == 0 && r.commentFails == 0:
		res.Status = StatusDelivered
	case err == nil:
		res.Status = StatusPartial
	case services.IsCancelled(err) || r.op.Control.State() == transfer.StateCancelled:
		res.Status = StatusCancelled
		res.Err = services.Wrap(services.ErrCancelled, "pipeline", "deliver", "delivery cancelled", nil)
	default:
		res.Status = StatusFailed
		res.Err = err
	}
	return res
}

// finish moves the operation to its terminal phase and rewrites the status
// message without control buttons.
func (r *run) finish(ctx context.Context, res Result) {
	switch res.Status {
	case StatusCancelled:
		r.op.Finish(transfer.PhaseCancelled)
	case StatusFailed:
		r.op.Finish(transfer.PhaseFailed)
	default:
		r.op.Finish(transfer.PhaseDone)
	}
	if r.status.IsZero() {
		return
	}
	editCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalEditTimeout)
	defer cancel()
	if err := r.p.gateway.EditMessage(editCtx, r.status, FinalText(res, r.link), nil); err != nil {
		r.logger.Debug("final status update failed", logging.Error(err))
	}
}

// pause waits for the configured spacing between downloads.
func (r *run) pause(ctx context.Context) error {
	if r.p.spacing <= 0 {
		return nil
	}
	timer := time.NewTimer(r.p.spacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *run) localDir(parts ...string) string {
	return filepath.Join(append([]string{r.dir}, parts...)...)
}
