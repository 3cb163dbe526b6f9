package engine

import (
	"context"
	"fmt"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/dispatch"
	"feedrelay/internal/logging"
	"feedrelay/internal/notifications"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/services"
)

// Execute runs an accepted follow-up. The action is already marked done.
func (e *Engine) Execute(ctx context.Context, job dispatch.Job) error {
	switch job.Kind {
	case actionstate.ActionResendAsFile:
		return e.resendAsFiles(ctx, job.Record)
	case actionstate.ActionFetchOmittedMedia:
		return e.fetchOmitted(ctx, job.Record)
	case actionstate.ActionSummarize:
		return e.summarize(ctx, job.Record)
	}
	return services.Wrap(services.ErrValidation, "engine", "execute", fmt.Sprintf("unknown action %q", job.Kind), nil)
}

func (e *Engine) resendAsFiles(ctx context.Context, record *actionstate.Record) error {
	item := record.Item()
	media := item.Manifest.Filter(record.Flags.IncludedLiveMedia)
	return e.followUp(ctx, record, media, pipeline.Options{
		SendAsFile:       true,
		IncludeLiveMedia: record.Flags.IncludedLiveMedia,
		UseAlternateLink: record.Flags.UsedAlternateLink,
	}, "Sending as files")
}

func (e *Engine) fetchOmitted(ctx context.Context, record *actionstate.Record) error {
	item := record.Item()
	media := item.Manifest.Omitted(record.Flags.IncludedLiveMedia)
	return e.followUp(ctx, record, media, pipeline.Options{
		SendAsFile:       record.Flags.SentAsFile,
		IncludeLiveMedia: true,
		UseAlternateLink: record.Flags.UsedAlternateLink,
	}, "Fetching live media")
}

// followUp delivers media as a reply to the record's primary message and
// adds every produced message to the record.
func (e *Engine) followUp(ctx context.Context, record *actionstate.Record, media content.Manifest, opts pipeline.Options, label string) error {
	if len(media) == 0 {
		return services.Wrap(services.ErrRedundant, "engine", label, "no media to send", nil)
	}
	primary, err := chat.ParseKey(record.PrimaryKey)
	if err != nil {
		return services.Wrap(services.ErrValidation, "engine", label, "primary key", err)
	}
	opts.BatchSize = e.cfg.Transfer.BatchSize
	item := record.Item()
	res := e.pipe.Deliver(ctx, pipeline.Request{
		ChatID:       record.ChatID,
		Item:         item,
		Options:      opts,
		ReplyTo:      primary.Message,
		Caption:      item.Link(opts.UseAlternateLink),
		Label:        label,
		Media:        media,
		SkipComments: true,
	})

	persistCtx := context.WithoutCancel(ctx)
	refs := res.Messages
	if !res.StatusMessage.IsZero() {
		refs = append(refs, res.StatusMessage)
	}
	if len(refs) > 0 {
		if err := e.store.AddAliases(persistCtx, record.PrimaryKey, chat.Keys(refs)...); err != nil {
			logging.ErrorWithContext(ctx, e.logger, "follow-up messages not recorded", "alias_persist_failed",
				logging.String(logging.FieldPrimaryKey, record.PrimaryKey),
				logging.Error(err),
			)
		}
	}
	if res.TransferredBytes > 0 {
		if err := e.store.AddTransferredBytes(persistCtx, record.PrimaryKey, res.TransferredBytes); err != nil {
			e.logger.Warn("transferred bytes not recorded", logging.Error(err))
		}
	}
	switch res.Status {
	case pipeline.StatusDelivered, pipeline.StatusPartial:
		return nil
	default:
		return res.Err
	}
}

// actionFinished reports a completed follow-up to the operator.
func (e *Engine) actionFinished(job dispatch.Job, err error) {
	if services.IsCancelled(err) {
		return
	}
	payload := notifications.Payload{"title": job.Record.Title, "action": string(job.Kind)}
	event := notifications.EventActionCompleted
	if err != nil {
		event = notifications.EventActionFailed
		payload["error"] = err.Error()
	}
	if payload["title"] == "" {
		payload["title"] = job.Record.PrimaryKey
	}
	if pubErr := e.notifier.Publish(context.Background(), event, payload); pubErr != nil {
		e.logger.Debug("notification failed", logging.Error(pubErr))
	}
}
