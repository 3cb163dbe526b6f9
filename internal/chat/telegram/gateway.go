package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"feedrelay/internal/chat"
)

// Telegram rejects message texts and captions above these lengths.
const (
	maxTextLength    = 4096
	maxCaptionLength = 1024
)

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, opts chat.SendOptions) (chat.Ref, error) {
	id, err := parseID(chatID)
	if err != nil {
		return chat.Ref{}, err
	}
	req := sendMessageRequest{
		ChatID:                id,
		Text:                  truncate(text, maxTextLength),
		DisableWebPagePreview: opts.DisablePreview,
		ReplyMarkup:           keyboard(opts.Buttons),
	}
	if opts.ReplyTo != "" {
		if req.ReplyToMessageID, err = parseID(opts.ReplyTo); err != nil {
			return chat.Ref{}, err
		}
		req.AllowSendingWithoutReply = true
	}
	var out messageResponse
	if err := c.call(ctx, "sendMessage", req, &out); err != nil {
		return chat.Ref{}, err
	}
	return refOf(out.Result), nil
}

// SendFile uploads one file with the method matching its kind.
func (c *Client) SendFile(ctx context.Context, chatID string, upload chat.Upload, opts chat.SendOptions, progress chat.ProgressFunc) (chat.Ref, error) {
	method, field, err := methodFor(upload.Kind)
	if err != nil {
		return chat.Ref{}, err
	}
	fields, err := baseFields(chatID, opts)
	if err != nil {
		return chat.Ref{}, err
	}
	files := []filePart{{field: field, path: upload.Path, name: upload.Name}}
	if upload.Kind == chat.UploadVideo {
		addVideoFields(fields, upload)
		if upload.Thumbnail != "" {
			fields["thumbnail"] = "attach://thumb"
			files = append(files, filePart{field: "thumb", path: upload.Thumbnail, name: "thumb.jpg"})
		}
	}
	if upload.Kind == chat.UploadVoice || upload.Kind == chat.UploadAudio {
		if upload.Duration > 0 {
			fields["duration"] = strconv.Itoa(upload.Duration)
		}
	}

	var out messageResponse
	if err := c.upload(ctx, method, fields, files, progress, &out); err != nil {
		return chat.Ref{}, err
	}
	return refOf(out.Result), nil
}

// SendFiles sends an album. The caption goes on the first item, which
// Telegram shows beneath the album as a whole.
func (c *Client) SendFiles(ctx context.Context, chatID string, uploads []chat.Upload, opts chat.SendOptions, progress chat.ProgressFunc) ([]chat.Ref, error) {
	switch len(uploads) {
	case 0:
		return nil, fmt.Errorf("telegram sendMediaGroup: no uploads")
	case 1:
		ref, err := c.SendFile(ctx, chatID, uploads[0], opts, progress)
		if err != nil {
			return nil, err
		}
		return []chat.Ref{ref}, nil
	}

	fields, err := baseFields(chatID, chat.SendOptions{ReplyTo: opts.ReplyTo})
	if err != nil {
		return nil, err
	}
	media := make([]inputMedia, 0, len(uploads))
	files := make([]filePart, 0, len(uploads))
	for i, up := range uploads {
		kind, err := albumType(up.Kind)
		if err != nil {
			return nil, err
		}
		attach := fmt.Sprintf("file%d", i)
		item := inputMedia{Type: kind, Media: "attach://" + attach}
		if i == 0 {
			item.Caption = truncate(opts.Caption, maxCaptionLength)
		}
		if up.Kind == chat.UploadVideo {
			item.Width, item.Height, item.Duration = up.Width, up.Height, up.Duration
			item.Streaming = true
		}
		media = append(media, item)
		files = append(files, filePart{field: attach, path: up.Path, name: up.Name})
	}
	encoded, err := marshalString(media)
	if err != nil {
		return nil, err
	}
	fields["media"] = encoded

	var out messagesResponse
	if err := c.upload(ctx, "sendMediaGroup", fields, files, progress, &out); err != nil {
		return nil, err
	}
	refs := make([]chat.Ref, 0, len(out.Result))
	for _, m := range out.Result {
		refs = append(refs, refOf(m))
	}
	return refs, nil
}

// EditMessage replaces the text and buttons of a message. An unchanged edit
// is not an error.
func (c *Client) EditMessage(ctx context.Context, ref chat.Ref, text string, buttons chat.Keyboard) error {
	chatID, msgID, err := parseRef(ref)
	if err != nil {
		return err
	}
	req := editMessageTextRequest{
		ChatID:                chatID,
		MessageID:             msgID,
		Text:                  truncate(text, maxTextLength),
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard(buttons),
	}
	if err := c.call(ctx, "editMessageText", req, nil); err != nil && !IsNotModified(err) {
		return err
	}
	return nil
}

// SetButtons replaces the inline keyboard of a message. A nil keyboard
// removes it.
func (c *Client) SetButtons(ctx context.Context, ref chat.Ref, buttons chat.Keyboard) error {
	chatID, msgID, err := parseRef(ref)
	if err != nil {
		return err
	}
	req := editReplyMarkupRequest{ChatID: chatID, MessageID: msgID, ReplyMarkup: keyboard(buttons)}
	if req.ReplyMarkup == nil {
		req.ReplyMarkup = &inlineKeyboard{InlineKeyboard: [][]inlineButton{}}
	}
	if err := c.call(ctx, "editMessageReplyMarkup", req, nil); err != nil && !IsNotModified(err) {
		return err
	}
	return nil
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, ref chat.Ref) error {
	chatID, msgID, err := parseRef(ref)
	if err != nil {
		return err
	}
	return c.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: msgID}, nil)
}

// AnswerTrigger acknowledges a button press, optionally with a toast.
func (c *Client) AnswerTrigger(ctx context.Context, triggerID, text string) error {
	if strings.TrimSpace(triggerID) == "" {
		return nil
	}
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: triggerID, Text: text}, nil)
}

// React sets the bot's reaction on a message. An empty emoji clears it.
func (c *Client) React(ctx context.Context, ref chat.Ref, emoji string) error {
	chatID, msgID, err := parseRef(ref)
	if err != nil {
		return err
	}
	req := setReactionRequest{ChatID: chatID, MessageID: msgID, Reaction: []reactionType{}}
	if emoji != "" {
		req.Reaction = append(req.Reaction, reactionType{Type: "emoji", Emoji: emoji})
	}
	return c.call(ctx, "setMessageReaction", req, nil)
}

func methodFor(kind chat.UploadKind) (string, string, error) {
	switch kind {
	case chat.UploadPhoto:
		return "sendPhoto", "photo", nil
	case chat.UploadVideo:
		return "sendVideo", "video", nil
	case chat.UploadDocument:
		return "sendDocument", "document", nil
	case chat.UploadVoice:
		return "sendVoice", "voice", nil
	case chat.UploadAudio:
		return "sendAudio", "audio", nil
	default:
		return "", "", fmt.Errorf("telegram: unsupported upload kind %q", kind)
	}
}

func albumType(kind chat.UploadKind) (string, error) {
	switch kind {
	case chat.UploadPhoto, chat.UploadVideo, chat.UploadDocument, chat.UploadAudio:
		return string(kind), nil
	default:
		return "", fmt.Errorf("telegram: %q cannot be part of an album", kind)
	}
}

func baseFields(chatID string, opts chat.SendOptions) (map[string]string, error) {
	if _, err := parseID(chatID); err != nil {
		return nil, err
	}
	fields := map[string]string{"chat_id": chatID}
	if caption := truncate(opts.Caption, maxCaptionLength); caption != "" {
		fields["caption"] = caption
	}
	if opts.ReplyTo != "" {
		if _, err := parseID(opts.ReplyTo); err != nil {
			return nil, err
		}
		fields["reply_to_message_id"] = opts.ReplyTo
		fields["allow_sending_without_reply"] = "true"
	}
	if kb := keyboard(opts.Buttons); kb != nil {
		encoded, err := marshalString(kb)
		if err != nil {
			return nil, err
		}
		fields["reply_markup"] = encoded
	}
	return fields, nil
}

func addVideoFields(fields map[string]string, up chat.Upload) {
	fields["supports_streaming"] = "true"
	if up.Width > 0 && up.Height > 0 {
		fields["width"] = strconv.Itoa(up.Width)
		fields["height"] = strconv.Itoa(up.Height)
	}
	if up.Duration > 0 {
		fields["duration"] = strconv.Itoa(up.Duration)
	}
}

func keyboard(k chat.Keyboard) *inlineKeyboard {
	if len(k) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(k))
	for _, row := range k {
		out := make([]inlineButton, 0, len(row))
		for _, b := range row {
			out = append(out, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, out)
	}
	return &inlineKeyboard{InlineKeyboard: rows}
}

func refOf(m message) chat.Ref {
	return chat.Ref{
		Chat:    strconv.FormatInt(m.Chat.ID, 10),
		Message: strconv.FormatInt(m.MessageID, 10),
	}
}

func parseRef(ref chat.Ref) (int64, int64, error) {
	chatID, err := parseID(ref.Chat)
	if err != nil {
		return 0, 0, err
	}
	msgID, err := parseID(ref.Message)
	if err != nil {
		return 0, 0, err
	}
	return chatID, msgID, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid id %q", raw)
	}
	return id, nil
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
