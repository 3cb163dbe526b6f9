// Package telegram implements the chat gateway against the Telegram Bot API.
//
// Calls are plain HTTPS requests: JSON bodies for text, edit, reaction, and
// callback methods, and streamed multipart bodies for uploads. Upload bodies
// are produced through an io.Pipe so large videos are never buffered in
// memory, and the pipe writer reports cumulative bytes to the caller's
// progress callback.
//
// Chat and message identifiers cross the package boundary as opaque strings
// (chat.Ref) and are converted to Telegram's integer ids here only.
package telegram
