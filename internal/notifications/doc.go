// Package notifications publishes operator alerts to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so
// callers publish unconditionally. Routine delivery and action outcomes are
// sent only when their toggles are enabled in the [notifications] section;
// failures and test pings always go out.
package notifications
