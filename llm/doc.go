// Package llm provides a typed, provider-agnostic language model client.
//
// It defines the conversation message types exchanged with a model, a
// Client that routes requests to registered provider adapters, a small
// error taxonomy that distinguishes retryable from terminal failures, and
// a retry helper with exponential backoff.
//
// Two adapters ship with the package: an OpenAI-compatible adapter built
// on the official chat completions wire format (which also covers
// OpenRouter, Gemini's compatibility endpoint, and similar gateways), and
// a gollm-backed adapter for providers without an OpenAI-compatible
// surface.
package llm
