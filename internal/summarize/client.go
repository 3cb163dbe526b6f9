package summarize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryAttempts  = 3
)

// SystemPrompt instructs the model how to summarize an item.
const SystemPrompt = `You summarize social media notes for a chat reader.
Write a concise summary in the language of the note. Cover the main point,
notable details from the attached images, and any practical takeaways.
Use at most five short paragraphs or bullet points. Do not add a preamble.`

// Config captures the endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Image is one picture attached to a summarize request.
type Image struct {
	Data []byte
	MIME string
}

// Client wraps the chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleeper   func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the attempt budget.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.attempts = attempts
	}
}

// WithRetryBackoff overrides the backoff delays.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

// WithSleeper replaces retry sleeps, for tests.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultRetryAttempts,
		baseDelay:  defaultRetryBaseDelay,
		maxDelay:   defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	return c
}

// Configured reports whether an API key and model are present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.Model != ""
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("summarize request: http %d: %s", e.StatusCode, e.Body)
}

var errEmptyCompletion = errors.New("empty completion")

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize returns a summary of text and images.
func (c *Client) Summarize(ctx context.Context, text string, images []Image) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return "", errors.New("summarize: nothing to summarize")
	}
	if !c.Configured() {
		return "", errors.New("summarize: api key and model required")
	}
	parts := make([]contentPart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, contentPart{Type: "text", Text: text})
	}
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)},
		})
	}
	payload := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature: 0.3,
	}
	return c.complete(ctx, payload, "summarize")
}

// HealthCheck issues a tiny completion to verify credentials and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return errors.New("summarize health: api key and model required")
	}
	payload := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "user", Content: "Reply with the single word ok."},
		},
	}
	_, err := c.complete(ctx, payload, "summarize health")
	return err
}

func (c *Client) complete(ctx context.Context, payload completionRequest, op string) (string, error) {
	attempts := max(c.attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.send(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) send(ctx context.Context, payload completionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &statusError{StatusCode: resp.StatusCode, Body: snippet(string(body)), RetryAfter: retryAfter}
	}
	var completion completionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if content := strings.TrimSpace(choice.Text); content != "" {
			return content, nil
		}
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return "", fmt.Errorf("model refused: %s", refusal)
		}
	}
	return "", errEmptyCompletion
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, attempts int) (time.Duration, bool) {
	if attempt >= attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, errEmptyCompletion) {
		return c.backoff(attempt), true
	}
	var se *statusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError {
			if se.RetryAfter > 0 {
				return min(se.RetryAfter, c.maxDelay), true
			}
			return c.backoff(attempt), true
		}
		return 0, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles from the base delay per attempt, capped at the max delay.
func (c *Client) backoff(attempt int) time.Duration {
	if c.baseDelay <= 0 {
		return 0
	}
	delay := c.baseDelay
	for i := 1; i < attempt && delay < c.maxDelay; i++ {
		delay *= 2
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
