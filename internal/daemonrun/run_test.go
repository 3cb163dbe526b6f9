package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"feedrelay/internal/chat/telegram"
	"feedrelay/internal/logging"
	"feedrelay/internal/testsupport"
)

func TestBuildEngineWithoutSummarizer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tg := telegram.New(nil, cfg.Telegram.BotToken, telegram.Options{BaseURL: "http://127.0.0.1:1"})

	eng, err := buildEngine(cfg, store, tg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	defer eng.Close()

	if eng.Scheduler().Capacity() != cfg.Transfer.MaxConcurrentDeliveries {
		t.Fatalf("capacity = %d", eng.Scheduler().Capacity())
	}
	if len(eng.Operations()) != 0 {
		t.Fatalf("expected no operations")
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "feedrelay-1.log")
	second := filepath.Join(dir, "feedrelay-2.log")
	testsupport.WriteFile(t, first, "one")
	testsupport.WriteFile(t, second, "two")

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "feedrelay.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedrelay.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}
}
