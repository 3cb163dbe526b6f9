package pipeline

import (
	"time"

	"feedrelay/internal/chat"
	"feedrelay/internal/content"
)

// Options are the user's delivery choices.
type Options struct {
	SendAsFile       bool
	IncludeLiveMedia bool
	UseAlternateLink bool
	BatchSize        int
}

// Request describes one delivery.
type Request struct {
	ChatID  string
	Item    *content.Item
	Options Options
	// ReplyTo threads the delivered messages under an existing message.
	ReplyTo string
	// Caption replaces the item caption when set.
	Caption string
	// Label heads the status message; the item title is used when empty.
	Label string
	// Media replaces the item's filtered media set when non-nil. Follow-up
	// deliveries use it to send a specific subset.
	Media content.Manifest
	// SkipComments suppresses the comment thread.
	SkipComments bool
}

// Strategy is the transfer strategy chosen from the media set.
type Strategy string

const (
	StrategyVideo Strategy = "video"
	StrategyBatch Strategy = "batch"
	StrategyText  Strategy = "text"
)

// Classify picks the strategy for the media that will actually be sent.
func Classify(media content.Manifest) Strategy {
	switch {
	case len(media) == 0:
		return StrategyText
	case len(media) == 1 && media[0].Kind == content.KindVideo:
		return StrategyVideo
	default:
		return StrategyBatch
	}
}

// Status is the outcome of a delivery.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Result reports everything a delivery produced, including on failure.
type Result struct {
	Status   Status
	Strategy Strategy
	// OperationID identifies the transfer operation in logs.
	OperationID string
	// StatusMessage is the progress message; zero when it could not be sent.
	StatusMessage chat.Ref
	// Messages lists content messages in send order, followed by comment
	// messages.
	Messages []chat.Ref
	// Delivered lists the media entries that reached chat.
	Delivered content.Manifest
	// Failed lists media entries that could not be downloaded.
	Failed           content.Manifest
	TransferredBytes int64
	Summary          string
	Duration         time.Duration
	Err              error
}

// Primary returns the ref that keys the delivered item: the first content
// message, or the status message when nothing else was sent.
func (r Result) Primary() chat.Ref {
	if len(r.Messages) > 0 {
		return r.Messages[0]
	}
	return r.StatusMessage
}

// Aliases returns every physical message other than Primary.
func (r Result) Aliases() []chat.Ref {
	primary := r.Primary()
	out := make([]chat.Ref, 0, len(r.Messages)+1)
	for _, ref := range r.Messages {
		if ref != primary {
			out = append(out, ref)
		}
	}
	if !r.StatusMessage.IsZero() && r.StatusMessage != primary {
		out = append(out, r.StatusMessage)
	}
	return out
}

// Recordable reports whether the result produced any message worth
// recording.
func (r Result) Recordable() bool {
	return !r.Primary().IsZero()
}
