// Package summarize talks to an OpenAI-compatible chat completion endpoint
// (OpenRouter by default) to condense a delivered item's text and images into
// a short summary.
//
// Requests carry the text as a plain content part and each image as a
// base64 data URI. Transient failures (408, 429, 5xx, network timeouts, and
// empty completions) are retried with exponential backoff that honours
// Retry-After; everything else fails immediately.
package summarize
