// Package appattest implements the challenge-response device attestation
// protocol that gates trace ingestion.
//
// The Issuer mints single-use challenge tokens: each token is an HMAC-SHA256
// over the client's key identifier and fresh entropy, keyed by a MAC key
// derived from the process master secret. Issued tokens are held in an
// expiring store and consumed exactly once at verification time.
//
// The Verifier validates apple-appattest attestation objects: it decodes the
// CBOR statement, verifies the certificate chain against a pinned trust
// anchor, recomputes the challenge-binding nonce, and checks the application
// identity, key identity, and production/development environment policy. The
// result is a bare boolean so that callers never learn which step failed.
package appattest
