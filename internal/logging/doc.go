// Package logging assembles structured slog loggers and formatting helpers used
// across feedrelay.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context handler that stamps operation IDs, record keys, chat IDs, and
// correlation IDs onto every line logged through the *Context methods. A no-op
// logger is available for tests and wiring code that cannot fail.
package logging
