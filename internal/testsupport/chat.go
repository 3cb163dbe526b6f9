package testsupport

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"feedrelay/internal/chat"
)

// SentMessage is one physical message produced through a FakeGateway.
type SentMessage struct {
	Ref     chat.Ref
	Text    string
	Caption string
	ReplyTo string
	Upload  *chat.Upload
	Buttons chat.Keyboard
}

// AlbumCall records one SendFiles invocation.
type AlbumCall struct {
	Uploads []chat.Upload
	Caption string
	ReplyTo string
	Refs    []chat.Ref
}

// EditCall records one EditMessage or SetButtons invocation.
type EditCall struct {
	Ref     chat.Ref
	Text    string
	Buttons chat.Keyboard
	Markup  bool
}

// ReactionCall records one React invocation.
type ReactionCall struct {
	Ref   chat.Ref
	Emoji string
}

// FakeGateway is an in-memory chat.Gateway that assigns sequential message
// ids and records every call.
type FakeGateway struct {
	mu        sync.Mutex
	nextID    int
	messages  []SentMessage
	albums    []AlbumCall
	edits     []EditCall
	deleted   []chat.Ref
	reactions []ReactionCall
	answers   []string

	// FailKinds makes SendFile fail for the listed upload kinds.
	FailKinds map[chat.UploadKind]error
	// FailAlbums makes SendFiles fail.
	FailAlbums error
	// FailText makes SendMessage fail when it returns a non-nil error for
	// the message text.
	FailText func(text string) error
	// BeforeUpload runs before every SendFile and SendFiles call.
	BeforeUpload func(ctx context.Context)
}

var _ chat.Gateway = (*FakeGateway)(nil)

// NewFakeGateway returns an empty fake whose first message id is 1.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (f *FakeGateway) nextRef(chatID string) chat.Ref {
	f.nextID++
	return chat.Ref{Chat: chatID, Message: strconv.Itoa(f.nextID)}
}

// SendMessage records a text message.
func (f *FakeGateway) SendMessage(ctx context.Context, chatID, text string, opts chat.SendOptions) (chat.Ref, error) {
	if err := ctx.Err(); err != nil {
		return chat.Ref{}, err
	}
	if f.FailText != nil {
		if err := f.FailText(text); err != nil {
			return chat.Ref{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.nextRef(chatID)
	f.messages = append(f.messages, SentMessage{Ref: ref, Text: text, ReplyTo: opts.ReplyTo, Buttons: opts.Buttons})
	return ref, nil
}

// SendFile records one upload and reports full progress.
func (f *FakeGateway) SendFile(ctx context.Context, chatID string, upload chat.Upload, opts chat.SendOptions, progress chat.ProgressFunc) (chat.Ref, error) {
	if f.BeforeUpload != nil {
		f.BeforeUpload(ctx)
	}
	if err := ctx.Err(); err != nil {
		return chat.Ref{}, err
	}
	f.mu.Lock()
	if err, ok := f.FailKinds[upload.Kind]; ok {
		f.mu.Unlock()
		if err == nil {
			err = errors.New("upload rejected")
		}
		return chat.Ref{}, err
	}
	ref := f.nextRef(chatID)
	up := upload
	f.messages = append(f.messages, SentMessage{Ref: ref, Caption: opts.Caption, ReplyTo: opts.ReplyTo, Upload: &up, Buttons: opts.Buttons})
	f.mu.Unlock()
	if progress != nil {
		progress(1, 1)
	}
	return ref, nil
}

// SendFiles records an album.
func (f *FakeGateway) SendFiles(ctx context.Context, chatID string, uploads []chat.Upload, opts chat.SendOptions, progress chat.ProgressFunc) ([]chat.Ref, error) {
	if f.BeforeUpload != nil {
		f.BeforeUpload(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.FailAlbums != nil {
		err := f.FailAlbums
		f.mu.Unlock()
		return nil, err
	}
	call := AlbumCall{Uploads: append([]chat.Upload(nil), uploads...), Caption: opts.Caption, ReplyTo: opts.ReplyTo}
	for i := range uploads {
		ref := f.nextRef(chatID)
		up := uploads[i]
		msg := SentMessage{Ref: ref, ReplyTo: opts.ReplyTo, Upload: &up}
		if i == 0 {
			msg.Caption = opts.Caption
		}
		f.messages = append(f.messages, msg)
		call.Refs = append(call.Refs, ref)
	}
	f.albums = append(f.albums, call)
	refs := append([]chat.Ref(nil), call.Refs...)
	f.mu.Unlock()
	if progress != nil {
		progress(int64(len(uploads)), int64(len(uploads)))
	}
	return refs, nil
}

// EditMessage records an edit.
func (f *FakeGateway) EditMessage(ctx context.Context, ref chat.Ref, text string, buttons chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, EditCall{Ref: ref, Text: text, Buttons: buttons})
	return nil
}

// SetButtons records a keyboard change.
func (f *FakeGateway) SetButtons(ctx context.Context, ref chat.Ref, buttons chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, EditCall{Ref: ref, Buttons: buttons, Markup: true})
	return nil
}

// DeleteMessage records a deletion.
func (f *FakeGateway) DeleteMessage(ctx context.Context, ref chat.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

// AnswerTrigger records a callback answer.
func (f *FakeGateway) AnswerTrigger(ctx context.Context, triggerID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

// React records a reaction.
func (f *FakeGateway) React(ctx context.Context, ref chat.Ref, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, ReactionCall{Ref: ref, Emoji: emoji})
	return nil
}

// Messages returns every physical message sent so far.
func (f *FakeGateway) Messages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.messages...)
}

// Albums returns every SendFiles call.
func (f *FakeGateway) Albums() []AlbumCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AlbumCall(nil), f.albums...)
}

// Edits returns every edit call.
func (f *FakeGateway) Edits() []EditCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EditCall(nil), f.edits...)
}

// LastText returns the most recent text edit of ref.
func (f *FakeGateway) LastText(ref chat.Ref) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.edits) - 1; i >= 0; i-- {
		if f.edits[i].Ref == ref && !f.edits[i].Markup {
			return f.edits[i].Text
		}
	}
	for _, m := range f.messages {
		if m.Ref == ref {
			return m.Text
		}
	}
	return ""
}

// Deleted returns every deleted message.
func (f *FakeGateway) Deleted() []chat.Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Ref(nil), f.deleted...)
}

// Reactions returns every reaction set.
func (f *FakeGateway) Reactions() []ReactionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ReactionCall(nil), f.reactions...)
}

// Answers returns every callback answer text.
func (f *FakeGateway) Answers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.answers...)
}
