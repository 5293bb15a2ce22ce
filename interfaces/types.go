package interfaces

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// maxKeyIDBytes bounds the decoded key identifier. App Attest key identifiers
// are SHA-256 hashes (32 bytes); the bound leaves headroom for other schemes.
const maxKeyIDBytes = 64

// KeyID is the client-asserted credential key identifier, base64-encoded.
type KeyID string

// NewKeyID validates a client-supplied key identifier string.
// Returns ErrInvalidKeyID when the string is empty, not valid base64, or
// decodes to an unreasonable length.
func NewKeyID(s string) (KeyID, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKeyID)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: not valid base64: %v", ErrInvalidKeyID, err)
	}

	if len(raw) == 0 || len(raw) > maxKeyIDBytes {
		return "", fmt.Errorf("%w: decoded length %d out of range", ErrInvalidKeyID, len(raw))
	}

	return KeyID(s), nil
}

// Bytes returns the decoded key identifier.
func (k KeyID) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(k))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyID, err)
	}
	return raw, nil
}

// String returns the base64 form.
func (k KeyID) String() string {
	return string(k)
}

var (
	// ErrInvalidKeyID is returned when a client-supplied key identifier is
	// empty or malformed. Safe to expose to clients.
	ErrInvalidKeyID = errors.New("invalid key id")

	// ErrAttestationRejected is the only attestation failure surfaced to
	// clients. Specific causes are logged server-side but never distinguished
	// on the wire.
	ErrAttestationRejected = errors.New("attestation rejected")

	// ErrStorageWrite is returned when a blob store write fails. Clients may
	// retry safely: storage keys are fully determined by trace content.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrBackendUnavailable is returned when a blob store is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrUnsupportedScheme is returned for storage URIs with an unknown scheme.
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
)

// ChallengeIssuer mints and redeems single-use challenge tokens bound to a
// key identifier.
type ChallengeIssuer interface {
	// Issue returns a fresh base64 challenge token for the key identifier.
	Issue(keyID KeyID) (string, error)

	// Consume redeems the currently outstanding challenge for the key
	// identifier, returning its raw bytes. A challenge can be redeemed once;
	// subsequent calls return false until a new challenge is issued.
	Consume(keyID KeyID) ([]byte, bool)
}

// AttestationVerifier validates a client attestation object against a
// previously issued challenge. Implementations return a bare boolean so that
// callers cannot leak which verification step failed.
type AttestationVerifier interface {
	Verify(keyID KeyID, attestationObjectB64 string, challenge []byte) bool
}
