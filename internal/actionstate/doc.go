// Package actionstate persists what was delivered for each logical item and
// which follow-up actions have already run for it.
//
// One logical item may be represented in chat by several physical messages
// (caption, album members, status and summary messages). The first one
// becomes the record's primary key and the rest are stored as aliases, so
// Resolve returns the same record for any of them. An alias always maps to
// exactly one primary key and a primary key is never registered as an alias.
//
// Action states only move from unused to done or from unused to cancelled.
// MarkActionUsed performs that transition as a compare-and-swap committed
// before the caller starts the corresponding side effect; every mutation of a
// record is additionally serialized by an in-process per-key lock.
//
// The store is SQLite (modernc.org/sqlite) in WAL mode with foreign keys on,
// so deleting an item cascades to its aliases and action rows.
package actionstate
