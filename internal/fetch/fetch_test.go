package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"feedrelay/internal/fetch"
	"feedrelay/internal/services"
	"feedrelay/internal/testsupport"
	"feedrelay/internal/transfer"
)

func TestToFileStreamsAndSniffs(t *testing.T) {
	payload := testsupport.JPEGPayload(10_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := fetch.New(srv.Client(), fetch.Options{Timeout: 2 * time.Second, Retries: 2, ChunkSize: 1024})

	size, err := d.Probe(context.Background(), srv.URL+"/img")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("expected probe size %d, got %d", len(payload), size)
	}

	var chunks int
	var last int64
	file, err := d.ToFile(context.Background(), srv.URL+"/img", t.TempDir(), "photo-1", transfer.NewControl(), func(written int64) {
		chunks++
		last = written
	})
	if err != nil {
		t.Fatalf("ToFile failed: %v", err)
	}
	if file.Size != int64(len(payload)) || last != file.Size {
		t.Fatalf("unexpected size: file=%d last=%d", file.Size, last)
	}
	if chunks != 10 {
		t.Fatalf("expected 10 chunk callbacks, got %d", chunks)
	}
	if file.MIME != "image/jpeg" || filepath.Ext(file.Path) != ".jpg" {
		t.Fatalf("unexpected sniffing result: %+v", file)
	}
}

func TestCancelledControlStopsWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(testsupport.Payload(4096))
	}))
	defer srv.Close()

	control := transfer.NewControl()
	control.Cancel()
	d := fetch.New(srv.Client(), fetch.Options{Retries: 3})
	_, _, err := d.Bytes(context.Background(), srv.URL, control, nil)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("cancellation must not be retried, got %d requests", hits.Load())
	}
}

func TestTimeoutIsRetriedThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := fetch.New(srv.Client(), fetch.Options{Timeout: 50 * time.Millisecond, Retries: 2})
	_, _, err := d.Bytes(context.Background(), srv.URL, nil, nil)
	if !errors.Is(err, services.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !services.IsTimeout(err) {
		t.Fatalf("expected timeout cause, got %v", err)
	}
	if services.IsCancelled(err) {
		t.Fatalf("timeout must not look like user cancellation: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestTruncatedBodyIsRetriedThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", "10000")
		_, _ = w.Write(testsupport.JPEGPayload(4000))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := fetch.New(srv.Client(), fetch.Options{Timeout: 2 * time.Second, Retries: 2, ChunkSize: 1024})
	file, err := d.ToFile(context.Background(), srv.URL+"/img", dir, "photo-1", nil, nil)
	if err == nil {
		t.Fatalf("truncated body accepted as complete: %+v", file)
	}
	if !errors.Is(err, services.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if services.IsCancelled(err) {
		t.Fatalf("truncation must not look like cancellation: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits.Load())
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "photo-1*"))
	if len(leftovers) != 0 {
		t.Fatalf("partial download left behind: %v", leftovers)
	}
}

func TestTruncatedBodyRecoversOnRetry(t *testing.T) {
	payload := testsupport.Payload(6000)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if hits.Add(1) == 1 {
			_, _ = w.Write(payload[:2500])
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := fetch.New(srv.Client(), fetch.Options{Timeout: 2 * time.Second, Retries: 3, ChunkSize: 1024})
	data, _, err := d.Bytes(context.Background(), srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if len(data) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(data))
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestStatusErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	d := fetch.New(srv.Client(), fetch.Options{Retries: 3})
	_, _, err := d.Bytes(context.Background(), srv.URL, nil, nil)
	if !errors.Is(err, services.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
	if _, err := d.Probe(context.Background(), srv.URL); err == nil {
		t.Fatal("expected probe error on 410")
	}
}

func TestPausedDownloadResumes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testsupport.Payload(2048))
	}))
	defer srv.Close()

	control := transfer.NewControl()
	control.Pause()
	d := fetch.New(srv.Client(), fetch.Options{Timeout: 100 * time.Millisecond, ChunkSize: 512})

	done := make(chan error, 1)
	go func() {
		_, _, err := d.Bytes(context.Background(), srv.URL, control, nil)
		done <- err
	}()
	time.Sleep(250 * time.Millisecond)
	control.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected pause to not count against the timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download did not finish after resume")
	}
}
