// Package dispatch decides whether a user-triggered follow-up action may run
// and starts it.
//
// Trigger resolves the message key to its logical record and rejects the
// action when the record is unknown, the action was already used, the
// initial delivery already satisfied it, or the record is too large to
// summarize. An accepted action is durably marked done in the action-state
// store before its work starts, so a crash mid-action leaves it consumed
// rather than re-triggerable. The work itself runs asynchronously on an
// Executor and is tracked so Close can drain it.
package dispatch
