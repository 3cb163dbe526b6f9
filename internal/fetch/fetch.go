package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"feedrelay/internal/logging"
	"feedrelay/internal/services"
)

const (
	defaultChunkSize = 256 * 1024
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) feedrelay"
)

// Checkpointer is consulted between chunks. transfer.Control satisfies it.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// ChunkFunc receives the cumulative byte count of the current attempt.
type ChunkFunc func(written int64)

// Options configures a Downloader.
type Options struct {
	Timeout   time.Duration
	Retries   int
	ChunkSize int
	UserAgent string
	Logger    *slog.Logger
}

// Downloader fetches remote media.
type Downloader struct {
	client    *http.Client
	timeout   time.Duration
	retries   int
	chunkSize int
	userAgent string
	logger    *slog.Logger
}

// File describes a completed download on disk.
type File struct {
	Path string
	Size int64
	MIME string
}

// New constructs a downloader. A nil client uses http.DefaultClient.
func New(client *http.Client, opts Options) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Downloader{
		client:    client,
		timeout:   opts.Timeout,
		retries:   retries,
		chunkSize: chunk,
		userAgent: ua,
		logger:    logging.NewComponentLogger(opts.Logger, "fetch"),
	}
}

// Probe returns the remote Content-Length, or -1 when the server does not
// report one. Probe failures are not fatal to a transfer and are returned for
// logging only.
func (d *Downloader) Probe(ctx context.Context, url string) (int64, error) {
	ctx, cancel := d.attemptContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return -1, fmt.Errorf("probe request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return -1, fmt.Errorf("probe %s: %w", url, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return -1, fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return -1, nil
	}
	return resp.ContentLength, nil
}

// ToFile downloads url into dir using base as the file name stem. The final
// extension comes from the sniffed content type.
func (d *Downloader) ToFile(ctx context.Context, url, dir, base string, cp Checkpointer, onChunk ChunkFunc) (File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("create download dir: %w", err)
	}
	partial := filepath.Join(dir, base+".part")

	var size int64
	err := d.retry(ctx, url, func() error {
		f, err := os.Create(partial)
		if err != nil {
			return fmt.Errorf("create %s: %w", partial, err)
		}
		n, copyErr := d.stream(ctx, url, f, cp, onChunk)
		closeErr := f.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return fmt.Errorf("close %s: %w", partial, closeErr)
		}
		size = n
		return nil
	})
	if err != nil {
		_ = os.Remove(partial)
		return File{}, err
	}

	mime, err := mimetype.DetectFile(partial)
	if err != nil {
		_ = os.Remove(partial)
		return File{}, fmt.Errorf("detect content type: %w", err)
	}
	final := filepath.Join(dir, base+mime.Extension())
	if err := os.Rename(partial, final); err != nil {
		return File{}, fmt.Errorf("finalize download: %w", err)
	}
	return File{Path: final, Size: size, MIME: mime.String()}, nil
}

// Bytes downloads url into memory and returns the body with its sniffed
// content type.
func (d *Downloader) Bytes(ctx context.Context, url string, cp Checkpointer, onChunk ChunkFunc) ([]byte, string, error) {
	var buf bytes.Buffer
	err := d.retry(ctx, url, func() error {
		buf.Reset()
		_, err := d.stream(ctx, url, &buf, cp, onChunk)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	data := buf.Bytes()
	return data, mimetype.Detect(data).String(), nil
}

// retry runs attempt until it succeeds, fails with an error that is neither a
// timeout nor a truncated body, or the attempt budget runs out.
func (d *Downloader) retry(ctx context.Context, url string, attempt func() error) error {
	var lastErr error
	for i := 1; i <= d.retries; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, services.ErrCancelled) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !retryable(err) {
			return services.Wrap(services.ErrTransferFailed, "fetch", "download", url, err)
		}
		lastErr = err
		d.logger.Debug("download attempt interrupted",
			logging.Error(err),
			logging.String("url", url),
			logging.Int("attempt", i),
			logging.Int("max_attempts", d.retries),
		)
	}
	return services.Wrap(services.ErrTransferFailed, "fetch", "download",
		fmt.Sprintf("gave up after %d attempts", d.retries), lastErr)
}

func (d *Downloader) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return context.WithCancel(ctx)
}

var (
	errStalled   = errors.New("no data within timeout")
	errTruncated = errors.New("body ended before its advertised length")
)

// stream copies the body of url to w chunk by chunk. The attempt times out
// when no chunk arrives within the configured timeout; time spent paused at a
// checkpoint does not count.
func (d *Downloader) stream(ctx context.Context, url string, w io.Writer, cp Checkpointer, onChunk ChunkFunc) (int64, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	dog := newWatchdog(d.timeout, func() { cancel(errStalled) })
	defer dog.stop()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("download request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, classify(attemptCtx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	buf := make([]byte, d.chunkSize)
	var written int64
	for {
		if cp != nil {
			dog.stop()
			if err := cp.Checkpoint(ctx); err != nil {
				return written, err
			}
			dog.reset()
		}
		n, readErr := readChunk(resp.Body, buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write chunk: %w", err)
			}
			written += int64(n)
			dog.reset()
			if onChunk != nil {
				onChunk(written)
			}
		}
		if readErr == io.EOF {
			if resp.ContentLength >= 0 && written != resp.ContentLength {
				return written, fmt.Errorf("%w: got %d of %d bytes", errTruncated, written, resp.ContentLength)
			}
			return written, nil
		}
		if errors.Is(readErr, io.ErrUnexpectedEOF) {
			return written, fmt.Errorf("%w: %w", errTruncated, readErr)
		}
		if readErr != nil {
			return written, classify(attemptCtx, readErr)
		}
	}
}

// readChunk fills buf from r. Unlike io.ReadFull it reports a clean end of
// body as io.EOF even after a short read, so an io.ErrUnexpectedEOF always
// comes from the body itself.
func readChunk(r io.Reader, buf []byte) (int, error) {
	var n int
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errStalled) {
		return services.Wrap(services.ErrTimeout, "fetch", "stream", errStalled.Error(), nil)
	}
	return err
}

func retryable(err error) bool {
	return isTimeout(err) || errors.Is(err, errTruncated)
}

func isTimeout(err error) bool {
	if services.IsTimeout(err) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// watchdog fires once when it is not reset within timeout.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
}

func newWatchdog(timeout time.Duration, fire func()) *watchdog {
	w := &watchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, fire)
	}
	return w
}

func (w *watchdog) reset() {
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
