package actionstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedrelay/internal/services"
)

// Create writes one record with an alias row per extra physical message and
// returns the primary key. The whole write is rejected when the primary key
// or any alias is already known.
func (s *Store) Create(ctx context.Context, params CreateParams) (string, error) {
	primary := strings.TrimSpace(params.PrimaryKey)
	if primary == "" {
		return "", services.Wrap(services.ErrValidation, "actionstate", "create", "primary key is required", nil)
	}
	if params.Item == nil {
		return "", services.Wrap(services.ErrValidation, "actionstate", "create", "item is required", nil)
	}
	initial := params.InitialState
	if initial == "" {
		initial = StateUnused
	}
	if initial != StateUnused && initial != StateCancelled {
		return "", services.Wrap(services.ErrValidation, "actionstate", "create", fmt.Sprintf("invalid initial state %q", initial), nil)
	}
	aliases := normalizeAliases(primary, params.Aliases)

	manifestJSON, err := json.Marshal(params.Item.Manifest)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	unlock := s.locks.lock(primary)
	defer unlock()

	now := timestamp(time.Now())
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureKeyFree(ctx, tx, primary); err != nil {
			return err
		}
		for _, alias := range aliases {
			if err := ensureKeyFree(ctx, tx, alias); err != nil {
				return err
			}
		}

		item := params.Item
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO logical_items (
                primary_key, chat_id, item_id, title, body, source_url, alternate_url,
                manifest_json, sent_as_file, included_live_media, used_alternate_link,
                total_bytes, auxiliary_text, auxiliary_json, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			primary,
			params.ChatID,
			nullableString(item.ID),
			nullableString(item.Title),
			nullableString(item.Text),
			nullableString(item.SourceURL),
			nullableString(item.AlternateURL),
			string(manifestJSON),
			boolToInt(params.Flags.SentAsFile),
			boolToInt(params.Flags.IncludedLiveMedia),
			boolToInt(params.Flags.UsedAlternateLink),
			params.TotalBytes,
			nullableString(item.SummaryText()),
			nil,
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		for _, kind := range ActionKinds {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_actions (primary_key, kind, state, updated_at) VALUES (?, ?, ?, ?)`,
				primary, string(kind), string(initial), now,
			); err != nil {
				return fmt.Errorf("insert action %s: %w", kind, err)
			}
		}
		return insertAliases(ctx, tx, primary, aliases, now)
	})
	if err != nil {
		return "", persistenceErr("create", err)
	}
	return primary, nil
}

// Resolve returns the record for key, looking it up as a primary key first
// and as an alias second. It returns nil without error when key is unknown.
func (s *Store) Resolve(ctx context.Context, key string) (*Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var record *Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		primary, err := resolvePrimary(ctx, tx, key)
		if err != nil || primary == "" {
			return err
		}
		record, err = loadRecord(ctx, tx, primary)
		return err
	})
	if err != nil {
		return nil, persistenceErr("resolve", err)
	}
	return record, nil
}

// MarkActionUsed moves kind from unused to outcome. It returns an error
// wrapping services.ErrAlreadyUsed when the action already left unused and
// services.ErrNotFound when the record does not exist. The transition is
// committed before MarkActionUsed returns.
func (s *Store) MarkActionUsed(ctx context.Context, primaryKey string, kind ActionKind, outcome ActionState) error {
	if outcome != StateDone && outcome != StateCancelled {
		return services.Wrap(services.ErrValidation, "actionstate", "mark action", fmt.Sprintf("invalid outcome %q", outcome), nil)
	}
	if _, ok := ParseActionKind(string(kind)); !ok {
		return services.Wrap(services.ErrValidation, "actionstate", "mark action", fmt.Sprintf("unknown action %q", kind), nil)
	}

	unlock := s.locks.lock(primaryKey)
	defer unlock()

	now := timestamp(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE item_actions SET state = ?, updated_at = ?
             WHERE primary_key = ? AND kind = ? AND state = ?`,
			string(outcome), now, primaryKey, string(kind), string(StateUnused),
		)
		if err != nil {
			return fmt.Errorf("update action: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 1 {
			return touch(ctx, tx, primaryKey, now)
		}
		exists, err := itemExists(ctx, tx, primaryKey)
		if err != nil {
			return err
		}
		if !exists {
			return services.Wrap(services.ErrNotFound, "actionstate", "mark action", primaryKey, nil)
		}
		return services.Wrap(services.ErrAlreadyUsed, "actionstate", "mark action", fmt.Sprintf("%s on %s", kind, primaryKey), nil)
	})
	return persistenceErr("mark action", err)
}

// UpdateAuxiliary merges fields into the record's auxiliary map. Existing
// keys not present in fields are preserved.
func (s *Store) UpdateAuxiliary(ctx context.Context, primaryKey string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	unlock := s.locks.lock(primaryKey)
	defer unlock()

	now := timestamp(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT auxiliary_json FROM logical_items WHERE primary_key = ?`, primaryKey).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "actionstate", "update auxiliary", primaryKey, nil)
		}
		if err != nil {
			return fmt.Errorf("read auxiliary: %w", err)
		}
		merged, err := decodeAuxiliary(raw.String)
		if err != nil {
			return err
		}
		for k, v := range fields {
			merged[k] = v
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode auxiliary: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE logical_items SET auxiliary_json = ?, updated_at = ? WHERE primary_key = ?`,
			string(encoded), now, primaryKey,
		); err != nil {
			return fmt.Errorf("write auxiliary: %w", err)
		}
		return nil
	})
	return persistenceErr("update auxiliary", err)
}

// AddAliases registers further physical messages of an existing record,
// such as a summary message produced by a follow-up.
func (s *Store) AddAliases(ctx context.Context, primaryKey string, aliases ...string) error {
	aliases = normalizeAliases(primaryKey, aliases)
	if len(aliases) == 0 {
		return nil
	}
	unlock := s.locks.lock(primaryKey)
	defer unlock()

	now := timestamp(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := itemExists(ctx, tx, primaryKey)
		if err != nil {
			return err
		}
		if !exists {
			return services.Wrap(services.ErrNotFound, "actionstate", "add aliases", primaryKey, nil)
		}
		for _, alias := range aliases {
			if err := ensureKeyFree(ctx, tx, alias); err != nil {
				return err
			}
		}
		if err := insertAliases(ctx, tx, primaryKey, aliases, now); err != nil {
			return err
		}
		return touch(ctx, tx, primaryKey, now)
	})
	return persistenceErr("add aliases", err)
}

// AddTransferredBytes increases the record's transferred byte total.
func (s *Store) AddTransferredBytes(ctx context.Context, primaryKey string, n int64) error {
	if n <= 0 {
		return nil
	}
	unlock := s.locks.lock(primaryKey)
	defer unlock()

	now := timestamp(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE logical_items SET total_bytes = total_bytes + ?, updated_at = ? WHERE primary_key = ?`,
			n, now, primaryKey,
		)
		if err != nil {
			return fmt.Errorf("add bytes: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return services.Wrap(services.ErrNotFound, "actionstate", "add bytes", primaryKey, nil)
		}
		return nil
	})
	return persistenceErr("add bytes", err)
}

// Delete removes the record that key resolves to, cascading to its aliases
// and action rows. It returns the deleted primary key.
func (s *Store) Delete(ctx context.Context, key string) (string, error) {
	var primary string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		primary, err = resolvePrimary(ctx, tx, key)
		return err
	})
	if err != nil {
		return "", persistenceErr("delete", err)
	}
	if primary == "" {
		return "", services.Wrap(services.ErrNotFound, "actionstate", "delete", key, nil)
	}
	deleted, err := s.deleteItem(ctx, primary, "")
	if err != nil {
		return "", persistenceErr("delete", err)
	}
	if !deleted {
		return "", services.Wrap(services.ErrNotFound, "actionstate", "delete", key, nil)
	}
	return primary, nil
}

// deleteItem removes primary while holding its key lock. A non-empty
// createdBefore restricts the delete to records created earlier.
func (s *Store) deleteItem(ctx context.Context, primary, createdBefore string) (bool, error) {
	unlock := s.locks.lock(primary)
	defer unlock()

	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `DELETE FROM logical_items WHERE primary_key = ?`
		args := []any{primary}
		if createdBefore != "" {
			query += ` AND created_at < ?`
			args = append(args, createdBefore)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT primary_key FROM logical_items ORDER BY created_at DESC, primary_key LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		var keys []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				_ = rows.Close()
				return err
			}
			keys = append(keys, key)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		records = make([]*Record, 0, len(keys))
		for _, key := range keys {
			record, err := loadRecord(ctx, tx, key)
			if err != nil {
				return err
			}
			if record != nil {
				records = append(records, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistenceErr("list", err)
	}
	return records, nil
}

// PruneOlderThan deletes records created before cutoff and returns how many
// were removed. Each record is deleted under its own key lock.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	before := timestamp(cutoff)
	var keys []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		keys = keys[:0]
		rows, err := tx.QueryContext(ctx, `SELECT primary_key FROM logical_items WHERE created_at < ?`, before)
		if err != nil {
			return fmt.Errorf("list expired items: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, persistenceErr("prune", err)
	}

	var removed int64
	for _, key := range keys {
		deleted, err := s.deleteItem(ctx, key, before)
		if err != nil {
			return removed, persistenceErr("prune", err)
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM logical_items`).Scan(&n); err != nil {
		return 0, persistenceErr("count", err)
	}
	return n, nil
}

func resolvePrimary(ctx context.Context, tx *sql.Tx, key string) (string, error) {
	exists, err := itemExists(ctx, tx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}
	var primary string
	err = tx.QueryRowContext(ctx, `SELECT primary_key FROM item_aliases WHERE alias_key = ?`, key).Scan(&primary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup alias: %w", err)
	}
	return primary, nil
}

func itemExists(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM logical_items WHERE primary_key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup item: %w", err)
	}
	return n > 0, nil
}

// ensureKeyFree rejects keys that already name a record or an alias.
func ensureKeyFree(ctx context.Context, tx *sql.Tx, key string) error {
	primary, err := resolvePrimary(ctx, tx, key)
	if err != nil {
		return err
	}
	if primary != "" {
		return services.Wrap(services.ErrValidation, "actionstate", "register key",
			fmt.Sprintf("%s already belongs to %s", key, primary), nil)
	}
	return nil
}

func insertAliases(ctx context.Context, tx *sql.Tx, primary string, aliases []string, now string) error {
	for _, alias := range aliases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_aliases (alias_key, primary_key, created_at) VALUES (?, ?, ?)`,
			alias, primary, now,
		); err != nil {
			return fmt.Errorf("insert alias %s: %w", alias, err)
		}
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, primaryKey, now string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE logical_items SET updated_at = ? WHERE primary_key = ?`, now, primaryKey); err != nil {
		return fmt.Errorf("touch item: %w", err)
	}
	return nil
}

func loadRecord(ctx context.Context, tx *sql.Tx, primary string) (*Record, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM logical_items WHERE primary_key = ?`, primary)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT kind, state FROM item_actions WHERE primary_key = ?`, primary)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	for rows.Next() {
		var kind, state string
		if err := rows.Scan(&kind, &state); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan action: %w", err)
		}
		record.Actions[ActionKind(kind)] = ActionState(state)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT alias_key FROM item_aliases WHERE primary_key = ? ORDER BY rowid`, primary)
	if err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		record.Aliases = append(record.Aliases, alias)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return record, nil
}

func normalizeAliases(primary string, aliases []string) []string {
	seen := map[string]struct{}{primary: {}}
	out := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		if _, dup := seen[alias]; dup {
			continue
		}
		seen[alias] = struct{}{}
		out = append(out, alias)
	}
	return out
}
