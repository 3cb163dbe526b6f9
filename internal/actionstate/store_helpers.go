package actionstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"feedrelay/internal/content"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const itemColumns = "primary_key, chat_id, item_id, title, body, source_url, alternate_url, manifest_json, sent_as_file, included_live_media, used_alternate_link, total_bytes, auxiliary_text, auxiliary_json, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		primary       string
		chatID        string
		itemID        sql.NullString
		title         sql.NullString
		body          sql.NullString
		sourceURL     sql.NullString
		alternateURL  sql.NullString
		manifestRaw   string
		sentAsFile    int
		includedLive  int
		usedAlternate int
		totalBytes    int64
		auxText       sql.NullString
		auxJSON       sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&primary,
		&chatID,
		&itemID,
		&title,
		&body,
		&sourceURL,
		&alternateURL,
		&manifestRaw,
		&sentAsFile,
		&includedLive,
		&usedAlternate,
		&totalBytes,
		&auxText,
		&auxJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	manifest, err := manifestFromJSON(manifestRaw)
	if err != nil {
		return nil, err
	}
	aux, err := decodeAuxiliary(auxJSON.String)
	if err != nil {
		return nil, err
	}

	return &Record{
		PrimaryKey:   primary,
		ChatID:       chatID,
		ItemID:       itemID.String,
		Title:        title.String,
		Body:         body.String,
		SourceURL:    sourceURL.String,
		AlternateURL: alternateURL.String,
		Manifest:     manifest,
		Flags: Flags{
			SentAsFile:        sentAsFile != 0,
			IncludedLiveMedia: includedLive != 0,
			UsedAlternateLink: usedAlternate != 0,
		},
		Actions:       make(map[ActionKind]ActionState, len(ActionKinds)),
		TotalBytes:    totalBytes,
		AuxiliaryText: auxText.String,
		Auxiliary:     aux,
		CreatedAt:     parseTime(createdRaw),
		UpdatedAt:     parseTime(updatedRaw),
	}, nil
}

func decodeAuxiliary(raw string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode auxiliary: %w", err)
	}
	return out, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, raw); err == nil {
		return t
	}
	return time.Time{}
}

func manifestFromJSON(raw string) (content.Manifest, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m content.Manifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
