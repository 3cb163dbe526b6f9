package actionstate

import (
	"time"

	"feedrelay/internal/content"
)

// ActionKind is a user-triggerable follow-up.
type ActionKind string

const (
	ActionResendAsFile      ActionKind = "resend_as_file"
	ActionFetchOmittedMedia ActionKind = "fetch_omitted_media"
	ActionSummarize         ActionKind = "summarize"
)

// ActionKinds lists every follow-up in display order.
var ActionKinds = []ActionKind{ActionResendAsFile, ActionFetchOmittedMedia, ActionSummarize}

// ParseActionKind maps a stored or user-supplied name to a kind.
func ParseActionKind(raw string) (ActionKind, bool) {
	for _, k := range ActionKinds {
		if string(k) == raw {
			return k, true
		}
	}
	return "", false
}

// ActionState is the lifecycle state of one action on one record.
type ActionState string

const (
	StateUnused    ActionState = "unused"
	StateDone      ActionState = "done"
	StateCancelled ActionState = "cancelled"
)

// Flags records the choices made at initial delivery time.
type Flags struct {
	SentAsFile        bool `json:"sent_as_file"`
	IncludedLiveMedia bool `json:"included_live_media"`
	UsedAlternateLink bool `json:"used_alternate_link"`
}

// Record is one delivered logical item.
type Record struct {
	PrimaryKey    string
	ChatID        string
	ItemID        string
	Title         string
	Body          string
	SourceURL     string
	AlternateURL  string
	Manifest      content.Manifest
	Flags         Flags
	Actions       map[ActionKind]ActionState
	TotalBytes    int64
	AuxiliaryText string
	Auxiliary     map[string]string
	Aliases       []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActionState returns the state of kind, treating a missing row as unused.
func (r *Record) ActionState(kind ActionKind) ActionState {
	if r == nil {
		return StateUnused
	}
	if state, ok := r.Actions[kind]; ok {
		return state
	}
	return StateUnused
}

// Keys returns the primary key followed by every alias.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string{r.PrimaryKey}, r.Aliases...)
}

// Item rebuilds the content item a follow-up delivery needs. Comments are
// not stored and therefore not part of the result.
func (r *Record) Item() *content.Item {
	if r == nil {
		return nil
	}
	return &content.Item{
		ID:            r.ItemID,
		Title:         r.Title,
		Text:          r.Body,
		SourceURL:     r.SourceURL,
		AlternateURL:  r.AlternateURL,
		Manifest:      append(content.Manifest(nil), r.Manifest...),
		AuxiliaryText: r.AuxiliaryText,
	}
}

// CreateParams describes a new record.
type CreateParams struct {
	PrimaryKey string
	Aliases    []string
	ChatID     string
	Item       *content.Item
	Flags      Flags
	TotalBytes int64
	// InitialState seeds every action row. Empty means unused; a cancelled
	// delivery seeds cancelled so no follow-up is offered for it.
	InitialState ActionState
}
