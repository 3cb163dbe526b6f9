// Package progress renders the live status line shown while a delivery
// transfers media, and throttles how often that line may be re-rendered.
//
// Render is pure: callers pass the byte counters, the phase start time, and
// the current time. Throttle is the only stateful piece and is owned by a
// single pipeline call.
package progress
