package engine

import (
	"context"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/dispatch"
	"feedrelay/internal/logging"
	"feedrelay/internal/metrics"
	"feedrelay/internal/notifications"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/services"
)

const (
	reactionDone   = "👌"
	reactionFailed = "😢"
	reactionAck    = "👾"
	reactionThink  = "🤔"
)

// DeliverRequest asks for one top-level delivery.
type DeliverRequest struct {
	ChatID string
	Item   *content.Item
	// Options overrides the configured delivery defaults when set.
	Options *pipeline.Options
	// Origin is the user message that requested the delivery, if any.
	Origin  chat.Ref
	ReplyTo string
}

// DeliveryReport is the outcome of Deliver.
type DeliveryReport struct {
	Result     pipeline.Result
	PrimaryKey string
	// PersistErr is set when the record could not be written. The content
	// was still sent.
	PersistErr error
}

// DefaultOptions returns the configured delivery choices.
func (e *Engine) DefaultOptions() pipeline.Options {
	return pipeline.Options{
		SendAsFile:       e.cfg.Delivery.SendAsFile,
		IncludeLiveMedia: e.cfg.Delivery.IncludeLiveMedia,
		UseAlternateLink: e.cfg.Delivery.UseAlternateLink,
		BatchSize:        e.cfg.Transfer.BatchSize,
	}
}

// Deliver waits for a scheduler slot, relays the item, and records it.
func (e *Engine) Deliver(ctx context.Context, req DeliverRequest) (DeliveryReport, error) {
	if req.Item == nil {
		return DeliveryReport{}, services.Wrap(services.ErrValidation, "engine", "deliver", "item is required", nil)
	}
	if req.ChatID == "" {
		return DeliveryReport{}, services.Wrap(services.ErrValidation, "engine", "deliver", "chat id is required", nil)
	}
	opts := e.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
		if opts.BatchSize <= 0 {
			opts.BatchSize = e.cfg.Transfer.BatchSize
		}
	}

	var report DeliveryReport
	e.publishScheduler()
	err := e.sched.Admit(ctx, func(ctx context.Context) error {
		e.publishScheduler()
		report.Result = e.pipe.Deliver(ctx, pipeline.Request{
			ChatID:  req.ChatID,
			Item:    req.Item,
			Options: opts,
			ReplyTo: req.ReplyTo,
		})
		return nil
	})
	e.publishScheduler()
	if err != nil {
		return report, err
	}

	res := report.Result
	if res.Recordable() {
		report.PrimaryKey, report.PersistErr = e.record(ctx, req, opts, res)
	}
	e.afterDelivery(ctx, req, report)
	return report, nil
}

func (e *Engine) publishScheduler() {
	metrics.SetScheduler(e.sched.InFlight(), e.sched.Waiting())
}

func (e *Engine) record(ctx context.Context, req DeliverRequest, opts pipeline.Options, res pipeline.Result) (string, error) {
	initial := actionstate.StateUnused
	if res.Status == pipeline.StatusCancelled {
		initial = actionstate.StateCancelled
	}
	primary := res.Primary().Key()
	key, err := e.store.Create(context.WithoutCancel(ctx), actionstate.CreateParams{
		PrimaryKey: primary,
		Aliases:    chat.Keys(res.Aliases()),
		ChatID:     req.ChatID,
		Item:       req.Item,
		Flags: actionstate.Flags{
			SentAsFile:        opts.SendAsFile,
			IncludedLiveMedia: opts.IncludeLiveMedia,
			UsedAlternateLink: opts.UseAlternateLink,
		},
		TotalBytes:   res.TransferredBytes,
		InitialState: initial,
	})
	if err != nil {
		logging.ErrorWithContext(ctx, e.logger, "delivery record not saved", "record_persist_failed",
			logging.String(logging.FieldPrimaryKey, primary),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database; the content was delivered"),
			logging.String(logging.FieldImpact, "follow-up actions are unavailable for this item"),
		)
		return primary, err
	}
	return key, nil
}

// afterDelivery attaches action buttons and performs the configured
// housekeeping for a finished delivery.
func (e *Engine) afterDelivery(ctx context.Context, req DeliverRequest, report DeliveryReport) {
	ctx = context.WithoutCancel(ctx)
	res := report.Result
	succeeded := res.Status == pipeline.StatusDelivered || res.Status == pipeline.StatusPartial

	if succeeded && report.PersistErr == nil && report.PrimaryKey != "" {
		if record, err := e.store.Resolve(ctx, report.PrimaryKey); err == nil && record != nil {
			host := res.StatusMessage
			if host.IsZero() {
				host = res.Primary()
			}
			if buttons := ActionButtons(record); len(buttons) > 0 {
				if err := e.gateway.SetButtons(ctx, host, buttons); err != nil {
					e.logger.Debug("action buttons not attached", logging.Error(err))
				}
			}
		}
	}

	if !req.Origin.IsZero() {
		if e.cfg.Delivery.Reactions {
			emoji := reactionDone
			if !succeeded {
				emoji = reactionFailed
			}
			if res.Status != pipeline.StatusCancelled {
				if err := e.gateway.React(ctx, req.Origin, emoji); err != nil {
					e.logger.Debug("origin reaction failed", logging.Error(err))
				}
			}
		}
		if succeeded && e.cfg.Delivery.DeleteOriginMessage {
			if err := e.gateway.DeleteMessage(ctx, req.Origin); err != nil {
				e.logger.Debug("origin message not deleted", logging.Error(err))
			}
		}
	}

	title := req.Item.Title
	if title == "" {
		title = req.Item.ID
	}
	var event notifications.Event
	payload := notifications.Payload{"title": title, "summary": res.Summary}
	switch res.Status {
	case pipeline.StatusDelivered, pipeline.StatusPartial:
		event = notifications.EventDeliveryCompleted
	case pipeline.StatusFailed:
		event = notifications.EventDeliveryFailed
		if res.Err != nil {
			payload["error"] = res.Err.Error()
		}
	default:
		return
	}
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		e.logger.Debug("notification failed", logging.Error(err))
	}
}

// Callback data of the follow-up buttons.
const (
	actionPrefix = "act:"
	dataDismiss  = actionPrefix + "dismiss"
)

var actionLabels = map[actionstate.ActionKind]string{
	actionstate.ActionResendAsFile:      "📎 Send as files",
	actionstate.ActionFetchOmittedMedia: "🎞 Fetch live media",
	actionstate.ActionSummarize:         "🧠 Summarize",
}

// ActionButtons returns the follow-up keyboard for record, or nil when no
// action remains.
func ActionButtons(record *actionstate.Record) chat.Keyboard {
	kinds := dispatch.Available(record)
	if len(kinds) == 0 {
		return nil
	}
	row := make([]chat.Button, 0, len(kinds))
	for _, kind := range kinds {
		row = append(row, chat.Button{Text: actionLabels[kind], Data: actionPrefix + string(kind)})
	}
	return chat.Keyboard{row, {{Text: "✖️ Dismiss", Data: dataDismiss}}}
}
