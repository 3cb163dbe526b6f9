package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/logging"
	"feedrelay/internal/metrics"
	"feedrelay/internal/services"
)

// Reason explains a rejected trigger.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNotFound    Reason = "not_found"
	ReasonAlreadyUsed Reason = "already_used"
	ReasonRedundant   Reason = "redundant"
	ReasonTooLarge    Reason = "too_large"
	ReasonPersistence Reason = "persistence"
)

// Decision is the synchronous answer to a trigger.
type Decision struct {
	Accepted bool
	Reason   Reason
	Record   *actionstate.Record
}

// Message returns a short user-facing explanation of the decision.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonNone:
		if d.Accepted {
			return "On it"
		}
		return ""
	case ReasonAlreadyUsed:
		return "This action was already used"
	case ReasonRedundant:
		return "Nothing to do: the original delivery already covered this"
	case ReasonTooLarge:
		return "Too large to summarize"
	case ReasonPersistence:
		return "Could not record the action; try again later"
	default:
		return ""
	}
}

// Store is the subset of the action-state store the dispatcher needs.
type Store interface {
	Resolve(ctx context.Context, key string) (*actionstate.Record, error)
	MarkActionUsed(ctx context.Context, primaryKey string, kind actionstate.ActionKind, outcome actionstate.ActionState) error
}

// Job is one accepted follow-up.
type Job struct {
	Kind   actionstate.ActionKind
	Record *actionstate.Record
	// Origin is the message the trigger came from.
	Origin chat.Ref
}

// Executor performs accepted follow-ups.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Options tunes a Dispatcher.
type Options struct {
	// SummarizeCeiling rejects summarize for records whose transferred byte
	// total exceeds it. Zero disables the check.
	SummarizeCeiling int64
	// OnComplete observes every finished job.
	OnComplete func(job Job, err error)
	Logger     *slog.Logger
}

// Dispatcher evaluates triggers and runs accepted jobs.
type Dispatcher struct {
	store      Store
	exec       Executor
	ceiling    int64
	onComplete func(Job, error)
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a dispatcher.
func New(store Store, exec Executor, opts Options) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:      store,
		exec:       exec,
		ceiling:    opts.SummarizeCeiling,
		onComplete: opts.OnComplete,
		logger:     logging.NewComponentLogger(opts.Logger, "dispatch"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Trigger evaluates kind for the record that owns messageKey. A non-nil
// error is returned only when the durable mark could not be written; the
// decision then carries ReasonPersistence.
func (d *Dispatcher) Trigger(ctx context.Context, messageKey string, kind actionstate.ActionKind) (Decision, error) {
	logger := logging.WithContext(ctx, d.logger).With(
		logging.String(logging.FieldActionKind, string(kind)),
		logging.String("message_key", messageKey),
	)
	decision, err := d.evaluate(ctx, messageKey, kind)
	outcome := "accepted"
	if !decision.Accepted {
		outcome = string(decision.Reason)
	}
	metrics.RecordTrigger(string(kind), outcome)
	if err != nil {
		logging.ErrorWithContext(ctx, logger, "action mark failed", "action_mark_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database"),
			logging.String(logging.FieldImpact, "the action was not started"),
		)
		return decision, err
	}
	if !decision.Accepted {
		logger.Debug("trigger rejected", logging.String("reason", string(decision.Reason)))
		return decision, nil
	}

	origin, _ := chat.ParseKey(messageKey)
	job := Job{Kind: kind, Record: decision.Record, Origin: origin}
	logger.Info("action accepted",
		logging.String(logging.FieldPrimaryKey, decision.Record.PrimaryKey),
		logging.String(logging.FieldEventType, "action_accepted"),
	)
	d.run(services.WithPrimaryKey(ctx, decision.Record.PrimaryKey), job)
	return decision, nil
}

func (d *Dispatcher) evaluate(ctx context.Context, messageKey string, kind actionstate.ActionKind) (Decision, error) {
	record, err := d.store.Resolve(ctx, messageKey)
	if err != nil {
		return Decision{Reason: ReasonPersistence}, err
	}
	if record == nil {
		return Decision{Reason: ReasonNotFound}, nil
	}
	if record.ActionState(kind) != actionstate.StateUnused {
		return Decision{Reason: ReasonAlreadyUsed, Record: record}, nil
	}
	if Redundant(record, kind) {
		return Decision{Reason: ReasonRedundant, Record: record}, nil
	}
	if kind == actionstate.ActionSummarize && d.ceiling > 0 && record.TotalBytes > d.ceiling {
		return Decision{Reason: ReasonTooLarge, Record: record}, nil
	}

	err = d.store.MarkActionUsed(ctx, record.PrimaryKey, kind, actionstate.StateDone)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrAlreadyUsed):
		return Decision{Reason: ReasonAlreadyUsed, Record: record}, nil
	case errors.Is(err, services.ErrNotFound):
		return Decision{Reason: ReasonNotFound}, nil
	default:
		return Decision{Reason: ReasonPersistence, Record: record}, err
	}
	if record.Actions == nil {
		record.Actions = make(map[actionstate.ActionKind]actionstate.ActionState)
	}
	record.Actions[kind] = actionstate.StateDone
	return Decision{Accepted: true, Record: record}, nil
}

// Redundant reports whether the initial delivery already satisfied kind.
func Redundant(record *actionstate.Record, kind actionstate.ActionKind) bool {
	switch kind {
	case actionstate.ActionResendAsFile:
		return record.Flags.SentAsFile || len(record.Manifest) == 0
	case actionstate.ActionFetchOmittedMedia:
		return record.Flags.IncludedLiveMedia || record.Manifest.Count(content.KindLiveVideo) == 0
	}
	return false
}

// Available lists the actions that could still be accepted for record,
// ignoring the size ceiling.
func Available(record *actionstate.Record) []actionstate.ActionKind {
	var out []actionstate.ActionKind
	for _, kind := range actionstate.ActionKinds {
		if record.ActionState(kind) == actionstate.StateUnused && !Redundant(record, kind) {
			out = append(out, kind)
		}
	}
	return out
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	jobCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, stop := context.WithCancel(jobCtx)
		defer stop()
		detach := context.AfterFunc(d.ctx, stop)
		defer detach()
		err := d.exec.Execute(runCtx, job)
		status := services.Outcome(err)
		metrics.RecordAction(string(job.Kind), status)
		logger := logging.WithContext(runCtx, d.logger).With(
			logging.String(logging.FieldActionKind, string(job.Kind)),
			logging.String(logging.FieldPrimaryKey, job.Record.PrimaryKey),
		)
		if err != nil && !services.IsCancelled(err) {
			logging.WarnWithContext(runCtx, logger, "action failed", "action_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the action stays consumed and will not run again"),
			)
		} else {
			logger.Info("action finished", logging.String("status", status))
		}
		if d.onComplete != nil {
			d.onComplete(job, err)
		}
	}()
}

// Dismiss marks every still-unused action of the record owning messageKey
// as cancelled and returns how many were dismissed.
func (d *Dispatcher) Dismiss(ctx context.Context, messageKey string) (int, error) {
	record, err := d.store.Resolve(ctx, messageKey)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	dismissed := 0
	for _, kind := range actionstate.ActionKinds {
		if record.ActionState(kind) != actionstate.StateUnused {
			continue
		}
		err := d.store.MarkActionUsed(ctx, record.PrimaryKey, kind, actionstate.StateCancelled)
		switch {
		case err == nil:
			dismissed++
		case errors.Is(err, services.ErrAlreadyUsed):
		default:
			return dismissed, err
		}
	}
	return dismissed, nil
}

// Wait blocks until every running job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels running jobs and waits for them to return.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
