package testsupport

import (
	"context"
	"strconv"
	"testing"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/config"
	"feedrelay/internal/content"
)

// MustOpenStore opens an actionstate.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *actionstate.Store {
	t.Helper()

	store, err := actionstate.Open(cfg)
	if err != nil {
		t.Fatalf("actionstate.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord creates a record for item under primary with the given aliases.
func NewRecord(t testing.TB, store *actionstate.Store, primary string, item *content.Item, flags actionstate.Flags, totalBytes int64, aliases ...string) *actionstate.Record {
	t.Helper()

	key, err := store.Create(context.Background(), actionstate.CreateParams{
		PrimaryKey: primary,
		Aliases:    aliases,
		ChatID:     "42",
		Item:       item,
		Flags:      flags,
		TotalBytes: totalBytes,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	record, err := store.Resolve(context.Background(), key)
	if err != nil || record == nil {
		t.Fatalf("store.Resolve(%s): %v", key, err)
	}
	return record
}

// SampleItem returns an item with the given media kinds in order. URLs point
// at baseURL with one path per entry.
func SampleItem(baseURL string, kinds ...content.MediaKind) *content.Item {
	item := &content.Item{
		ID:        "note-1",
		Title:     "Sample title",
		Text:      "Sample body",
		SourceURL: "https://example.com/note-1",
	}
	for i, kind := range kinds {
		item.Manifest = append(item.Manifest, content.MediaRef{
			URL:      baseURL + "/media/" + string(kind) + "/" + strconv.Itoa(i+1),
			Kind:     kind,
			Sequence: i + 1,
		})
	}
	return item
}
