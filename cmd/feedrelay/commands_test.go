package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"feedrelay/internal/content"
	"feedrelay/internal/ipc"
	"feedrelay/internal/testsupport"
)

func TestDeliverTriggerAndRecordLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	item := testsupport.SampleItem(env.media.URL, content.KindPhoto, content.KindPhoto)
	itemPath := writeItem(t, t.TempDir(), item)

	out, _, err := runCLI(t, []string{"deliver", itemPath, "--chat", "42"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	requireContains(t, out, "Delivery delivered: 2 of 2 media sent")
	requireContains(t, out, "Action record: 42.")
	if len(env.gateway.Albums()) != 1 {
		t.Fatalf("expected one album, got %d", len(env.gateway.Albums()))
	}

	out, _, err = runCLI(t, []string{"records", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("records list: %v", err)
	}
	var records []ipc.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode records: %v\n%s", err, out)
	}
	if len(records) != 1 || records[0].Media != 2 {
		t.Fatalf("unexpected records %+v", records)
	}
	key := records[0].PrimaryKey

	out, _, err = runCLI(t, []string{"records", "show", key}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("records show: %v", err)
	}
	requireContains(t, out, "Primary key: "+key)
	requireContains(t, out, "Sample title")
	requireContains(t, out, "resend_as_file")
	requireContains(t, out, "[OK] unused")

	out, _, err = runCLI(t, []string{"trigger", key, "resend_as_file"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	requireContains(t, out, "Accepted")

	out, _, err = runCLI(t, []string{"records", "show", key}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("records show after trigger: %v", err)
	}
	requireContains(t, out, "[INFO] done")

	out, _, err = runCLI(t, []string{"trigger", key, "resend_as_file"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	requireContains(t, out, "Rejected (already_used)")

	if _, _, err := runCLI(t, []string{"trigger", key, "dance"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown action to fail")
	}

	env.daemon.Engine().Wait()

	out, _, err = runCLI(t, []string{"records", "delete", key}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("records delete: %v", err)
	}
	requireContains(t, out, "Deleted action record "+key)

	out, _, err = runCLI(t, []string{"records", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("records list after delete: %v", err)
	}
	requireContains(t, out, "No action records")
}

func TestDeliverOptionsOverrideDefaults(t *testing.T) {
	env := setupCLITestEnv(t)

	item := testsupport.SampleItem(env.media.URL, content.KindPhoto, content.KindPhoto)
	itemPath := writeItem(t, t.TempDir(), item)

	out, _, err := runCLI(t, []string{"deliver", itemPath, "--chat", "42", "--as-file", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	var resp ipc.DeliverResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode response: %v\n%s", err, out)
	}
	if resp.Status != "delivered" || resp.TransferredBytes != 2048 {
		t.Fatalf("unexpected response %+v", resp)
	}

	show, _, err := runCLI(t, []string{"records", "show", resp.PrimaryKey, "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("records show: %v", err)
	}
	var rec ipc.Record
	if err := json.Unmarshal([]byte(show), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if !rec.Flags.SentAsFile {
		t.Fatalf("expected record flagged as sent as file: %+v", rec.Flags)
	}
}

func TestDeliverValidation(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	itemPath := writeItem(t, dir, testsupport.SampleItem(env.media.URL, content.KindPhoto))

	_, _, err := runCLI(t, []string{"deliver", itemPath}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--chat is required") {
		t.Fatalf("expected missing chat error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"deliver", filepath.Join(dir, "missing.json"), "--chat", "42"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "read item") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestStatusReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "▸ System Status")
	requireContains(t, out, "[OK] Running")
	requireContains(t, out, "capacity 5")
	requireContains(t, out, "▸ Dependencies")
	requireContains(t, out, "No transfers in flight")
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"status"}, filepath.Join(t.TempDir(), "absent.sock"), configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[ERROR] Not running")
	if strings.Contains(out, "▸ Transfers") {
		t.Fatalf("transfers section should be omitted without a daemon:\n%s", out)
	}
}

func TestCommandsReportMissingDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err := runCLI(t, []string{"ops", "list"}, filepath.Join(t.TempDir(), "absent.sock"), configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "start the daemon with `feedrelay run`")
}

func TestOpsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"ops", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ops list: %v", err)
	}
	requireContains(t, out, "No transfers in flight")

	if _, _, err := runCLI(t, []string{"ops", "pause", "42.999"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected pause on unknown transfer to fail")
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestTestNotifyDirect(t *testing.T) {
	var posts atomic.Int32
	var title atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			title.Store(r.Header.Get("Title"))
		}
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL + "/relay-alerts"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"test-notify", "--direct"}, filepath.Join(t.TempDir(), "absent.sock"), configPath)
	if err != nil {
		t.Fatalf("test-notify --direct: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if posts.Load() != 1 {
		t.Fatalf("expected one ntfy post, got %d", posts.Load())
	}
	if got, _ := title.Load().(string); got != "FeedRelay - Test" {
		t.Fatalf("unexpected alert title %q", got)
	}
}

func TestRenderOperations(t *testing.T) {
	out := renderOperations([]ipc.Operation{{
		Key:         "42.7",
		Label:       "note-1",
		Phase:       "uploading",
		State:       "running",
		Expected:    2000,
		Transferred: 1000,
		StartedAt:   time.Now().Add(-3 * time.Second),
	}})
	requireContains(t, out, "42.7")
	requireContains(t, out, "1.0 kB / 2.0 kB (50%)")
}

func TestMessageKeyCommandsRejectMalformedKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(t.TempDir(), "absent.sock")

	cases := [][]string{
		{"trigger", "nokey", "resend_as_file"},
		{"records", "show", ".17"},
		{"records", "delete", "42."},
		{"ops", "cancel", "42"},
	}
	for _, args := range cases {
		_, _, err := runCLI(t, args, socket, configPath)
		if err == nil {
			t.Fatalf("%v: expected key error", args)
		}
		requireContains(t, err.Error(), "expected <chat>.<message>")
	}
}

func TestSocketFromEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)
	other := testsupport.NewConfig(t)
	otherPath := filepath.Join(testsupport.BaseDir(other), "config.toml")
	writeTestConfig(t, otherPath, other)
	t.Setenv(socketEnv, env.socketPath)

	out, _, err := runCLI(t, []string{"ops", "list"}, "", otherPath)
	if err != nil {
		t.Fatalf("ops list: %v", err)
	}
	requireContains(t, out, "No transfers in flight")
}
