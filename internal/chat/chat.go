package chat

import (
	"context"
	"fmt"
	"strings"
)

// Ref addresses one physical chat message. Both parts are opaque to the
// engine; only gateways interpret them.
type Ref struct {
	Chat    string `json:"chat"`
	Message string `json:"message"`
}

// Key renders the ref as "chat.message", the form used for record keys,
// aliases, and operation registry keys.
func (r Ref) Key() string {
	return r.Chat + "." + r.Message
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.Chat == "" && r.Message == ""
}

// ParseKey reverses Key.
func ParseKey(key string) (Ref, error) {
	chatPart, msgPart, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || chatPart == "" || msgPart == "" {
		return Ref{}, fmt.Errorf("invalid message key %q", key)
	}
	return Ref{Chat: chatPart, Message: msgPart}, nil
}

// Keys renders every ref as a key.
func Keys(refs []Ref) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Key())
	}
	return out
}

// UploadKind selects how the chat platform presents an uploaded file.
type UploadKind string

const (
	UploadPhoto    UploadKind = "photo"
	UploadVideo    UploadKind = "video"
	UploadDocument UploadKind = "document"
	UploadVoice    UploadKind = "voice"
	UploadAudio    UploadKind = "audio"
)

// Upload is one local file to send.
type Upload struct {
	Kind      UploadKind
	Path      string
	Name      string
	MIME      string
	Width     int
	Height    int
	Duration  int
	Thumbnail string
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// SendOptions tunes one send call.
type SendOptions struct {
	ReplyTo        string
	Caption        string
	Buttons        Keyboard
	DisablePreview bool
}

// ProgressFunc receives cumulative upload progress.
type ProgressFunc func(sent, total int64)

// Gateway is the chat platform surface the engine consumes.
type Gateway interface {
	SendMessage(ctx context.Context, chatID, text string, opts SendOptions) (Ref, error)
	SendFile(ctx context.Context, chatID string, upload Upload, opts SendOptions, progress ProgressFunc) (Ref, error)
	// SendFiles sends an album. The caption is attached to the album as a
	// whole and the returned refs follow upload order.
	SendFiles(ctx context.Context, chatID string, uploads []Upload, opts SendOptions, progress ProgressFunc) ([]Ref, error)
	EditMessage(ctx context.Context, ref Ref, text string, buttons Keyboard) error
	SetButtons(ctx context.Context, ref Ref, buttons Keyboard) error
	DeleteMessage(ctx context.Context, ref Ref) error
	AnswerTrigger(ctx context.Context, triggerID, text string) error
	React(ctx context.Context, ref Ref, emoji string) error
}

// UpdateKind classifies an inbound update.
type UpdateKind string

const (
	UpdateCallback UpdateKind = "callback"
	UpdateReaction UpdateKind = "reaction"
	UpdateMessage  UpdateKind = "message"
)

// Update is one inbound user event.
type Update struct {
	ID        int64
	Kind      UpdateKind
	Message   Ref
	TriggerID string
	Data      string
	Emoji     string
	Text      string
	UserID    string
}

// UpdateSource yields inbound updates after offset and returns the next offset.
type UpdateSource interface {
	Updates(ctx context.Context, offset int64) ([]Update, int64, error)
}
