// Package llm abstracts chat-completion model backends behind a single
// Backend contract.
//
// A Backend turns an ordered message sequence plus tool schemas and decoding
// parameters into one GenerationResult: assistant text, parsed tool-call
// requests, and a finish reason. Transport faults are classified into a
// transient/fatal taxonomy; transient faults are retried with capped
// exponential backoff inside the backend, so callers only ever observe
// success or a fatal error.
//
// Backends are stateless per call and selected by tagged dispatch on the
// configured backend type (see BuildBackend).
package llm
