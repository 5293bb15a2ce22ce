// Package trace defines the canonical conversational record accepted for
// ingestion and its normalization from untyped client payloads.
//
// A Trace is constructed exclusively through Normalize, which applies
// server-side defaults (id, object tag, system fingerprint) and rejects any
// invariant violation with a *ValidationError. Traces are immutable after
// construction. The choices and usage fields are passed through unvalidated
// beyond their shape for compatibility with OpenAI-format client payloads.
package trace
