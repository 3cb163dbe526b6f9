// Package services defines shared utilities consumed by the delivery engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp operation IDs, record keys, chat IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so timeouts, cancellations,
//     rejected actions, and persistence failures can be told apart with
//     errors.Is no matter how deep they were wrapped.
//
// Use these helpers when wiring new components so failure classification and
// observability stay uniform across the engine.
package services
