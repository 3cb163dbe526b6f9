package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/config"
	"feedrelay/internal/engine"
	"feedrelay/internal/logging"
	"feedrelay/internal/metrics"
	"feedrelay/internal/notifications"
	"feedrelay/internal/services"
	"feedrelay/internal/transfer"
)

const (
	defaultPollBackoff   = 5 * time.Second
	defaultPruneInterval = time.Hour
)

// Daemon runs the engine against a chat update source and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *engine.Engine
	source   chat.UpdateSource
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	pollBackoff   time.Duration
	pruneInterval time.Duration

	running   atomic.Bool
	startedAt time.Time
	handled   atomic.Int64

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	metricsSrv  *http.Server
	metricsAddr string

	pollMu      sync.Mutex
	lastPollErr string
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithPollBackoff sets the pause after a failed update poll.
func WithPollBackoff(d time.Duration) Option {
	return func(dm *Daemon) {
		if d > 0 {
			dm.pollBackoff = d
		}
	}
}

// WithPruneInterval sets how often expired records are pruned.
func WithPruneInterval(d time.Duration) Option {
	return func(dm *Daemon) {
		if d > 0 {
			dm.pruneInterval = d
		}
	}
}

// WithNotifier overrides the notifier used for test notifications.
func WithNotifier(n notifications.Service) Option {
	return func(dm *Daemon) {
		if n != nil {
			dm.notifier = n
		}
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	StartedAt      time.Time
	LockPath       string
	DatabasePath   string
	Operations     []transfer.Snapshot
	InFlight       int
	Waiting        int
	Capacity       int
	Records        int
	UpdatesHandled int64
	LastPollError  string
	MetricsAddr    string
}

// New constructs a daemon. source may be nil, in which case no chat updates
// are polled and deliveries arrive only through the control socket.
func New(cfg *config.Config, eng *engine.Engine, source chat.UpdateSource, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || eng == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		engine:        eng,
		source:        source,
		notifier:      notifications.NewService(cfg),
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		pollBackoff:   defaultPollBackoff,
		pruneInterval: defaultPruneInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and launches polling, pruning, and the
// metrics listener.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another feedrelay daemon instance is already running")
	}

	if addr := strings.TrimSpace(d.cfg.Metrics.Listen); addr != "" {
		if err := d.startMetrics(addr); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("start metrics listener: %w", err)
		}
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.startedAt = time.Now()
	if d.source != nil {
		d.wg.Add(1)
		go d.pollUpdates(d.ctx)
	}
	d.wg.Add(1)
	go d.pruneLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("feedrelay daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("polling", d.source != nil),
		logging.String("metrics", d.metricsAddr),
	)
	return nil
}

// Stop cancels background work, drains running transfers and follow-ups,
// and releases the daemon lock. The engine is closed, so a stopped daemon
// cannot be started again.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.engine.Close()
	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsSrv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("metrics listener shutdown failed", logging.Error(err))
		}
		cancel()
		d.metricsSrv = nil
		d.metricsAddr = ""
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("feedrelay daemon stopped")
}

// Close stops the daemon and closes the action state store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.engine.Store().Close()
}

func (d *Daemon) startMetrics(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.engine.Store().Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.metricsSrv = srv
	d.metricsAddr = listener.Addr().String()
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(context.Background(), d.logger, "metrics listener stopped", "metrics_listener_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.listen and port availability"),
				logging.String(logging.FieldImpact, "Prometheus scrapes will fail"),
			)
		}
	}()
	return nil
}

func (d *Daemon) pollUpdates(ctx context.Context) {
	defer d.wg.Done()
	var offset int64
	for ctx.Err() == nil {
		updates, next, err := d.source.Updates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.setPollError(err)
			logging.WarnWithContext(ctx, d.logger, "update poll failed", "update_poll_failed",
				logging.Error(err),
				logging.Duration("retry_in", d.pollBackoff),
				logging.String(logging.FieldErrorHint, "check telegram.bot_token and network reachability"),
				logging.String(logging.FieldImpact, "button presses and reactions are delayed"),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollBackoff):
			}
			continue
		}
		d.setPollError(nil)
		offset = next
		for _, update := range updates {
			d.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate filters update by chat allow-list and routes it to the engine.
func (d *Daemon) HandleUpdate(ctx context.Context, update chat.Update) bool {
	if !d.chatAllowed(update.Message.Chat) {
		d.logger.Debug("ignoring update from chat outside allow-list",
			logging.String("chat_id", update.Message.Chat),
			logging.String("kind", string(update.Kind)),
		)
		return false
	}
	d.handled.Add(1)
	d.engine.HandleUpdate(ctx, update)
	return true
}

func (d *Daemon) chatAllowed(chatID string) bool {
	if len(d.cfg.Telegram.AllowedChatIDs) == 0 {
		return true
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return false
	}
	return d.cfg.ChatAllowed(id)
}

func (d *Daemon) setPollError(err error) {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()
	if err == nil {
		d.lastPollErr = ""
		return
	}
	d.lastPollErr = err.Error()
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.pruneInterval)
	defer ticker.Stop()
	for {
		if _, err := d.engine.Prune(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(ctx, d.logger, "record pruning failed", "record_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state database"),
				logging.String(logging.FieldImpact, "expired records remain until the next attempt"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Deliver relays an item submitted through the control socket.
func (d *Daemon) Deliver(ctx context.Context, req engine.DeliverRequest) (engine.DeliveryReport, error) {
	if !d.chatAllowed(req.ChatID) {
		return engine.DeliveryReport{}, services.Wrap(services.ErrValidation, "daemon", "deliver",
			fmt.Sprintf("chat %s is not in telegram.allowed_chat_ids", req.ChatID), nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return d.engine.Deliver(ctx, req)
}

// Engine exposes the engine for callers that need operation control.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// ListRecords returns the most recently updated records.
func (d *Daemon) ListRecords(ctx context.Context, limit int) ([]*actionstate.Record, error) {
	return d.engine.Store().List(ctx, limit)
}

// Record resolves key, primary or alias, to its record.
func (d *Daemon) Record(ctx context.Context, key string) (*actionstate.Record, error) {
	record, err := d.engine.Store().Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "record", fmt.Sprintf("no record for %s", key), nil)
	}
	return record, nil
}

// DeleteRecord removes the record owning key along with its aliases.
func (d *Daemon) DeleteRecord(ctx context.Context, key string) (string, error) {
	return d.engine.Store().Delete(ctx, key)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	sched := d.engine.Scheduler()
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		LockPath:       d.lockPath,
		DatabasePath:   d.engine.Store().Path(),
		Operations:     d.engine.Operations(),
		InFlight:       sched.InFlight(),
		Waiting:        sched.Waiting(),
		Capacity:       sched.Capacity(),
		UpdatesHandled: d.handled.Load(),
	}
	if count, err := d.engine.Store().Count(ctx); err == nil {
		status.Records = count
	}
	d.mu.Lock()
	status.StartedAt = d.startedAt
	status.MetricsAddr = d.metricsAddr
	d.mu.Unlock()
	d.pollMu.Lock()
	status.LastPollError = d.lastPollErr
	d.pollMu.Unlock()
	return status
}
