package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"feedrelay/internal/chat"
)

var allowedUpdates = []string{"message", "callback_query", "message_reaction"}

// GetMe returns the bot identity, used to verify the token.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint("getMe"), nil)
	if err != nil {
		return User{}, err
	}
	var out userResponse
	if err := c.do(req, "getMe", &out); err != nil {
		return User{}, err
	}
	return out.Result, nil
}

// Updates long-polls for updates after offset and returns them with the next
// offset to request.
func (c *Client) Updates(ctx context.Context, offset int64) ([]chat.Update, int64, error) {
	secs := max(int(c.pollTimeout.Seconds()), 1)
	allowed, err := json.Marshal(allowedUpdates)
	if err != nil {
		return nil, offset, err
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(secs))
	q.Set("allowed_updates", string(allowed))
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.pollTimeout+c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, offset, err
	}
	var out updatesResponse
	if err := c.do(req, "getUpdates", &out); err != nil {
		return nil, offset, fmt.Errorf("poll updates: %w", err)
	}

	next := offset
	updates := make([]chat.Update, 0, len(out.Result))
	for _, raw := range out.Result {
		if raw.UpdateID >= next {
			next = raw.UpdateID + 1
		}
		if u, ok := convertUpdate(raw); ok {
			updates = append(updates, u)
		}
	}
	return updates, next, nil
}

func convertUpdate(raw update) (chat.Update, bool) {
	switch {
	case raw.CallbackQuery != nil && raw.CallbackQuery.Message != nil:
		cq := raw.CallbackQuery
		return chat.Update{
			ID:        raw.UpdateID,
			Kind:      chat.UpdateCallback,
			Message:   refOf(*cq.Message),
			TriggerID: cq.ID,
			Data:      cq.Data,
			UserID:    strconv.FormatInt(cq.From.ID, 10),
		}, true
	case raw.MessageReaction != nil:
		mr := raw.MessageReaction
		u := chat.Update{
			ID:      raw.UpdateID,
			Kind:    chat.UpdateReaction,
			Message: chat.Ref{Chat: strconv.FormatInt(mr.Chat.ID, 10), Message: strconv.FormatInt(mr.MessageID, 10)},
		}
		if mr.User != nil {
			u.UserID = strconv.FormatInt(mr.User.ID, 10)
		}
		for _, r := range mr.NewReaction {
			if r.Type == "emoji" && r.Emoji != "" {
				u.Emoji = r.Emoji
				break
			}
		}
		return u, u.Emoji != ""
	case raw.Message != nil:
		m := raw.Message
		u := chat.Update{
			ID:      raw.UpdateID,
			Kind:    chat.UpdateMessage,
			Message: refOf(*m),
			Text:    m.Text,
		}
		if u.Text == "" {
			u.Text = m.Caption
		}
		if m.From != nil {
			u.UserID = strconv.FormatInt(m.From.ID, 10)
		}
		return u, true
	}
	return chat.Update{}, false
}
