// Package chat defines the chat platform contract consumed by the engine:
// opaque message refs, uploads, inline keyboards, inbound updates, and the
// Gateway interface implemented by platform clients such as chat/telegram.
package chat
