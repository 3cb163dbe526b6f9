// Package engine wires the transfer and action-state components into one
// owned instance.
//
// An Engine admits deliveries through the request scheduler, runs them on the
// media pipeline, records the outcome in the action-state store, and then
// attaches follow-up action buttons, reacts to the origin message, and
// alerts the operator as configured. Inbound chat updates are routed here:
// ctl:* buttons pause, resume, or cancel a running transfer, act:* buttons
// and the 🤔 reaction go through the action dispatcher. The engine is also the
// dispatcher's executor for accepted follow-ups.
//
// All mutable state (operation registry, dispatcher, per-record locks) is
// owned by the Engine value; there is no package-level state.
package engine
