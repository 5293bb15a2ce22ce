// Package interfaces defines the shared contracts and value types of the
// attested trace ingestion service.
//
// It holds the small validated value types (KeyID), the sentinel errors used
// across package boundaries, and the interfaces that decouple the HTTP layer
// from the attestation and storage implementations:
//
//   - ChallengeIssuer: mints and redeems single-use challenge tokens
//   - AttestationVerifier: validates device attestation objects
//   - BlobStore: keyed object storage with public URLs
//
// Concrete implementations live in the appattest and storage packages. The
// package has no dependencies on other packages in this module so that any
// component can import it without cycles.
package interfaces
