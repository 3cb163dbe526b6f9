package summarize_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"feedrelay/internal/summarize"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	}
}

func TestSummarizeSendsTextAndImages(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("X-Title") != "feedrelay" {
			t.Errorf("missing title header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(completion("A short summary."))
	}))
	defer server.Close()

	client := summarize.NewClient(summarize.Config{APIKey: "key", BaseURL: server.URL, Model: "demo", Title: "feedrelay"})
	out, err := client.Summarize(context.Background(), "Title\nBody", []summarize.Image{{Data: []byte{0xFF, 0xD8}, MIME: "image/jpeg"}})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out != "A short summary." {
		t.Fatalf("summary = %q", out)
	}
	if captured.Model != "demo" || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	if err := json.Unmarshal(captured.Messages[1].Content, &parts); err != nil {
		t.Fatalf("decode user content: %v", err)
	}
	if len(parts) != 2 || parts[0].Text != "Title\nBody" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("image not sent as data uri: %q", parts[1].ImageURL.URL)
	}
}

func TestSummarizeRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := summarize.NewClient(
		summarize.Config{APIKey: "key", BaseURL: server.URL, Model: "demo"},
		summarize.WithRetryMaxAttempts(3),
		summarize.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	if _, err := client.Summarize(context.Background(), "text", nil); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if calls.Load() != 3 || len(slept) != 2 || slept[0] != time.Second {
		t.Fatalf("calls = %d slept = %v", calls.Load(), slept)
	}
}

func TestSummarizeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	client := summarize.NewClient(
		summarize.Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"},
		summarize.WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Summarize(context.Background(), "text", nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestSummarizeRequiresConfiguration(t *testing.T) {
	client := summarize.NewClient(summarize.Config{})
	if client.Configured() {
		t.Fatalf("empty config should not be configured")
	}
	if _, err := client.Summarize(context.Background(), "text", nil); err == nil {
		t.Fatalf("expected configuration error")
	}
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected health check error")
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	client := summarize.NewClient(summarize.Config{APIKey: "key", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}
