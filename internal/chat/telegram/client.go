package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedrelay/internal/chat"
	"feedrelay/internal/logging"
	"feedrelay/internal/services"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxRetryAfter  = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	PollTimeout    time.Duration
	Retries        int
	Logger         *slog.Logger
}

// Client talks to the Bot API. It implements chat.Gateway and
// chat.UpdateSource.
type Client struct {
	http           *http.Client
	baseURL        string
	token          string
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	pollTimeout    time.Duration
	retries        int
	logger         *slog.Logger
}

var (
	_ chat.Gateway      = (*Client)(nil)
	_ chat.UpdateSource = (*Client)(nil)
)

// New constructs a client. A nil httpClient uses a client without a global
// timeout; every call carries its own deadline instead.
func New(httpClient *http.Client, token string, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		http:           httpClient,
		baseURL:        base,
		token:          strings.TrimSpace(token),
		requestTimeout: orDefault(opts.RequestTimeout, 30*time.Second),
		uploadTimeout:  orDefault(opts.UploadTimeout, 10*time.Minute),
		pollTimeout:    orDefault(opts.PollTimeout, 25*time.Second),
		retries:        retries,
		logger:         logging.NewComponentLogger(opts.Logger, "telegram"),
	}
}

// RequestError is a non-OK Bot API response.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  time.Duration
}

func (e *RequestError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = "request failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("telegram %s: http %d: %s", e.Method, e.StatusCode, desc)
	}
	return fmt.Sprintf("telegram %s: %s", e.Method, desc)
}

// IsNotModified reports whether err is Telegram's complaint that an edit left
// the message unchanged.
func IsNotModified(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && strings.Contains(strings.ToLower(reqErr.Description), "message is not modified")
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call posts a JSON body and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}
	return c.withRetry(ctx, method, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(method), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, method, out)
	})
}

// filePart is one file attached to a multipart request.
type filePart struct {
	field string
	path  string
	name  string
}

// upload posts a streamed multipart body. progress receives cumulative bytes
// of file content written so far against the total size of all files.
func (c *Client) upload(ctx context.Context, method string, fields map[string]string, files []filePart, progress chat.ProgressFunc, out any) error {
	var total int64
	for _, f := range files {
		st, err := os.Stat(f.path)
		if err != nil {
			return fmt.Errorf("telegram %s: %w", method, err)
		}
		if st.IsDir() {
			return fmt.Errorf("telegram %s: path is a directory: %s", method, f.path)
		}
		total += st.Size()
	}

	return c.withRetry(ctx, method, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			err := writeMultipart(mw, fields, files, &countingSink{total: total, progress: progress})
			if err == nil {
				err = mw.Close()
			}
			_ = pw.CloseWithError(err)
		}()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(method), pr)
		if err != nil {
			_ = pr.CloseWithError(err)
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		err = c.do(req, method, out)
		_ = pr.CloseWithError(io.ErrClosedPipe)
		return err
	})
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, files []filePart, sink *countingSink) error {
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, f := range files {
		name := strings.TrimSpace(f.name)
		if name == "" {
			name = filepath.Base(f.path)
		}
		part, err := mw.CreateFormFile(f.field, name)
		if err != nil {
			return err
		}
		src, err := os.Open(f.path)
		if err != nil {
			return err
		}
		_, err = io.Copy(io.MultiWriter(part, sink), src)
		_ = src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

type countingSink struct {
	total    int64
	sent     int64
	progress chat.ProgressFunc
}

func (s *countingSink) Write(p []byte) (int, error) {
	s.sent += int64(len(p))
	if s.progress != nil {
		s.progress(s.sent, s.total)
	}
	return len(p), nil
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	var envelope apiResponse
	_ = json.Unmarshal(raw, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.OK {
		reqErr := &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   envelope.ErrorCode,
			Description: envelope.Description,
		}
		if reqErr.Description == "" {
			reqErr.Description = strings.TrimSpace(string(raw))
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			reqErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return reqErr
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("telegram %s: decode: %w", method, err)
		}
	}
	return nil
}

// withRetry retries timeouts and flood-control responses up to the attempt
// budget. Any other failure, and caller cancellation, is returned at once.
func (c *Client) withRetry(ctx context.Context, method string, attempt func() error) error {
	var lastErr error
	for i := 1; i <= c.retries; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var reqErr *RequestError
		switch {
		case errors.As(err, &reqErr) && reqErr.RetryAfter > 0:
			wait := min(reqErr.RetryAfter, maxRetryAfter)
			c.logger.Debug("telegram flood control", logging.String("method", method), logging.Duration("retry_after", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		case isTimeout(err):
			c.logger.Debug("telegram call timed out", logging.String("method", method), logging.Int("attempt", i))
		default:
			return services.Wrap(services.ErrTransferFailed, "telegram", method, "", err)
		}
		lastErr = err
	}
	if isTimeout(lastErr) {
		lastErr = services.Wrap(services.ErrTimeout, "telegram", method, "", nil)
	}
	return services.Wrap(services.ErrTransferFailed, "telegram", method,
		fmt.Sprintf("gave up after %d attempts", c.retries), lastErr)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func marshalString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("telegram: encode field: %w", err)
	}
	return string(b), nil
}
