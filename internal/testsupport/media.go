package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// MediaServer serves fake media: paths containing /photo/ return JPEG bytes,
// paths containing /video/ or /live_video/ return MP4 bytes, anything else
// returns an opaque payload. Every response carries Content-Length.
type MediaServer struct {
	*httptest.Server

	Size int

	mu   sync.Mutex
	hits map[string]int
}

// NewMediaServer starts a media server whose bodies are size bytes long.
func NewMediaServer(t testing.TB, size int) *MediaServer {
	t.Helper()
	ms := &MediaServer{Size: size, hits: make(map[string]int)}
	ms.Server = httptest.NewServer(http.HandlerFunc(ms.serve))
	t.Cleanup(ms.Close)
	return ms
}

func (ms *MediaServer) serve(w http.ResponseWriter, r *http.Request) {
	var body []byte
	switch {
	case strings.Contains(r.URL.Path, "/photo/"):
		body = JPEGPayload(ms.Size)
	case strings.Contains(r.URL.Path, "/video/"), strings.Contains(r.URL.Path, "/live_video/"):
		body = MP4Payload(ms.Size)
	case strings.Contains(r.URL.Path, "/missing/"):
		http.NotFound(w, r)
		return
	default:
		body = Payload(ms.Size)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodHead {
		return
	}
	ms.mu.Lock()
	ms.hits[r.URL.Path]++
	ms.mu.Unlock()
	_, _ = w.Write(body)
}

// Hits returns how many GET requests reached path.
func (ms *MediaServer) Hits(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.hits[path]
}

// TotalHits returns the number of GET requests served.
func (ms *MediaServer) TotalHits() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, v := range ms.hits {
		n += v
	}
	return n
}
