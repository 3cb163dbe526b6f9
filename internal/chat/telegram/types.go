package telegram

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *responseParams `json:"parameters,omitempty"`
}

type responseParams struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

type messageResponse struct {
	apiResponse
	Result message `json:"result"`
}

type messagesResponse struct {
	apiResponse
	Result []message `json:"result"`
}

type updatesResponse struct {
	apiResponse
	Result []update `json:"result"`
}

type userResponse struct {
	apiResponse
	Result User `json:"result"`
}

// User is the subset of a Telegram user returned by getMe.
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Username string `json:"username,omitempty"`
}

type update struct {
	UpdateID        int64            `json:"update_id"`
	Message         *message         `json:"message,omitempty"`
	CallbackQuery   *callbackQuery   `json:"callback_query,omitempty"`
	MessageReaction *messageReaction `json:"message_reaction,omitempty"`
}

type message struct {
	MessageID int64    `json:"message_id"`
	Chat      chatInfo `json:"chat"`
	From      *User    `json:"from,omitempty"`
	Text      string   `json:"text,omitempty"`
	Caption   string   `json:"caption,omitempty"`
}

type chatInfo struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type messageReaction struct {
	Chat        chatInfo       `json:"chat"`
	MessageID   int64          `json:"message_id"`
	User        *User          `json:"user,omitempty"`
	NewReaction []reactionType `json:"new_reaction"`
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji,omitempty"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID                   int64           `json:"chat_id"`
	Text                     string          `json:"text"`
	DisableWebPagePreview    bool            `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID         int64           `json:"reply_to_message_id,omitempty"`
	AllowSendingWithoutReply bool            `json:"allow_sending_without_reply,omitempty"`
	ReplyMarkup              *inlineKeyboard `json:"reply_markup,omitempty"`
}

type editMessageTextRequest struct {
	ChatID                int64           `json:"chat_id"`
	MessageID             int64           `json:"message_id"`
	Text                  string          `json:"text"`
	DisableWebPagePreview bool            `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *inlineKeyboard `json:"reply_markup,omitempty"`
}

type editReplyMarkupRequest struct {
	ChatID      int64           `json:"chat_id"`
	MessageID   int64           `json:"message_id"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

type setReactionRequest struct {
	ChatID    int64          `json:"chat_id"`
	MessageID int64          `json:"message_id"`
	Reaction  []reactionType `json:"reaction"`
}

type inputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  int    `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Streaming bool   `json:"supports_streaming,omitempty"`
}
