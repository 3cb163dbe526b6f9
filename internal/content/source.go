package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Source supplies items by reference. Implementations own all network and
// parsing concerns of the upstream content platform.
type Source interface {
	Fetch(ctx context.Context, ref string) (*Item, error)
}

// FileSource reads items from JSON files on disk, where ref is the path.
type FileSource struct{}

// Fetch decodes, normalizes, and validates the item stored at ref.
func (FileSource) Fetch(ctx context.Context, ref string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read item: %w", err)
	}
	return Decode(data)
}

// Decode parses an item from its JSON form.
func Decode(data []byte) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item.Normalize()
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("invalid item: %w", err)
	}
	return &item, nil
}
