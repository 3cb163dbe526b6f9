// Package content defines the items relayed into chat: their text, ordered
// media manifest, and comment threads, plus the Source contract used to load
// them.
package content
