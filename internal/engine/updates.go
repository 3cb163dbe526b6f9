package engine

import (
	"context"
	"strings"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/dispatch"
	"feedrelay/internal/logging"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/services"
)

// HandleUpdate routes one inbound chat update.
func (e *Engine) HandleUpdate(ctx context.Context, update chat.Update) {
	ctx = services.WithChatID(ctx, update.Message.Chat)
	switch update.Kind {
	case chat.UpdateCallback:
		e.handleCallback(ctx, update)
	case chat.UpdateReaction:
		e.handleReaction(ctx, update)
	}
}

func (e *Engine) handleCallback(ctx context.Context, update chat.Update) {
	key := update.Message.Key()
	var answer string
	switch data := strings.TrimSpace(update.Data); {
	case data == pipeline.DataPause:
		changed, err := e.Pause(ctx, key)
		answer = controlAnswer(changed, err, "Paused")
	case data == pipeline.DataResume:
		changed, err := e.Resume(ctx, key)
		answer = controlAnswer(changed, err, "Resumed")
	case data == pipeline.DataCancel:
		changed, err := e.Cancel(ctx, key)
		answer = controlAnswer(changed, err, "Cancelling…")
	case data == dataDismiss:
		answer = e.dismiss(ctx, update.Message)
	case strings.HasPrefix(data, actionPrefix):
		kind, ok := actionstate.ParseActionKind(strings.TrimPrefix(data, actionPrefix))
		if !ok {
			answer = "Unknown action"
			break
		}
		answer = e.trigger(ctx, update.Message, kind)
	default:
		e.logger.Debug("ignoring callback", logging.String("data", data))
	}
	if update.TriggerID == "" {
		return
	}
	if err := e.gateway.AnswerTrigger(ctx, update.TriggerID, answer); err != nil {
		e.logger.Debug("callback answer failed", logging.Error(err))
	}
}

// controlAnswer maps a registry result to a callback answer.
func controlAnswer(changed bool, err error, ok string) string {
	switch {
	case err != nil:
		return "This transfer is no longer running"
	case !changed:
		return ""
	default:
		return ok
	}
}

func (e *Engine) handleReaction(ctx context.Context, update chat.Update) {
	if update.Emoji != reactionThink {
		return
	}
	decision, err := e.dispatcher.Trigger(ctx, update.Message.Key(), actionstate.ActionSummarize)
	if err != nil || !decision.Accepted {
		return
	}
	if err := e.gateway.React(ctx, update.Message, reactionAck); err != nil {
		e.logger.Debug("acknowledgement reaction failed", logging.Error(err))
	}
}

// Trigger runs the dispatcher for kind on the record owning key.
func (e *Engine) Trigger(ctx context.Context, key string, kind actionstate.ActionKind) (dispatch.Decision, error) {
	return e.dispatcher.Trigger(ctx, key, kind)
}

func (e *Engine) trigger(ctx context.Context, host chat.Ref, kind actionstate.ActionKind) string {
	decision, err := e.dispatcher.Trigger(ctx, host.Key(), kind)
	if err != nil {
		return decision.Message()
	}
	if decision.Record != nil && (decision.Accepted || decision.Reason == dispatch.ReasonAlreadyUsed) {
		if setErr := e.gateway.SetButtons(ctx, host, ActionButtons(decision.Record)); setErr != nil {
			e.logger.Debug("action buttons not refreshed", logging.Error(setErr))
		}
	}
	return decision.Message()
}

func (e *Engine) dismiss(ctx context.Context, host chat.Ref) string {
	n, err := e.dispatcher.Dismiss(ctx, host.Key())
	if err != nil {
		logging.WarnWithContext(ctx, e.logger, "dismiss failed", "action_dismiss_failed", logging.Error(err))
		return "Could not dismiss actions"
	}
	if err := e.gateway.SetButtons(ctx, host, nil); err != nil {
		e.logger.Debug("buttons not removed", logging.Error(err))
	}
	if n == 0 {
		return ""
	}
	return "Dismissed"
}
