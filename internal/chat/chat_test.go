package chat_test

import (
	"testing"

	"feedrelay/internal/chat"
)

func TestRefKeyRoundTrip(t *testing.T) {
	ref := chat.Ref{Chat: "-1001234", Message: "77"}
	key := ref.Key()
	if key != "-1001234.77" {
		t.Fatalf("unexpected key %q", key)
	}
	parsed, err := chat.ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed != ref {
		t.Fatalf("ParseKey = %+v, want %+v", parsed, ref)
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "123", ".5", "5."} {
		if _, err := chat.ParseKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}
