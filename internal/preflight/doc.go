// Package preflight provides readiness checks for the directories, chat
// platform, summarizer endpoint, and media tools feedrelay depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start; the CLI "feedrelay check" command renders the same results as a
// table. Optional integrations are skipped when they are not configured.
package preflight
