package appattest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/genui/attested-trace-backend/interfaces"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/hkdf"
)

// challengeMACInfo domain-separates the challenge MAC key from any other key
// derived from the master secret.
const challengeMACInfo = "attested-trace-backend/challenge-mac/v1"

// Issuer mints single-use, time-bound challenge tokens bound to a client key
// identifier. A token is the HMAC-SHA256 of the key identifier and 32 bytes of
// fresh entropy, so it is unguessable and self-describing; issued tokens are
// additionally held in an expiring store so that each one can be redeemed at
// most once within its TTL.
type Issuer struct {
	macKey []byte
	issued *gocache.Cache
	log    *slog.Logger

	// guards the read-then-delete in Consume; gocache has no atomic take
	mu sync.Mutex
}

// NewIssuer derives the challenge MAC key from masterSecret via HKDF-SHA256
// and configures the single-use store with the given TTL.
func NewIssuer(masterSecret []byte, ttl time.Duration, log *slog.Logger) (*Issuer, error) {
	if len(masterSecret) < 32 {
		return nil, errors.New("master secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("challenge ttl must be positive")
	}

	macKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterSecret, nil, []byte(challengeMACInfo)), macKey); err != nil {
		return nil, fmt.Errorf("failed to derive challenge MAC key: %w", err)
	}

	return &Issuer{
		macKey: macKey,
		issued: gocache.New(ttl, 2*ttl),
		log:    log,
	}, nil
}

// Issue returns a fresh base64 challenge token for the key identifier. Issuing
// a new challenge supersedes any outstanding one for the same key identifier.
func (i *Issuer) Issue(keyID interfaces.KeyID) (string, error) {
	if _, err := keyID.Bytes(); err != nil {
		return "", err
	}

	var r [32]byte
	if _, err := rand.Read(r[:]); err != nil {
		return "", fmt.Errorf("failed to read challenge entropy: %w", err)
	}

	mac := hmac.New(sha256.New, i.macKey)
	mac.Write([]byte(keyID))
	mac.Write([]byte(":"))
	mac.Write([]byte(hex.EncodeToString(r[:])))
	token := mac.Sum(nil)

	i.mu.Lock()
	i.issued.Set(string(keyID), token, gocache.DefaultExpiration)
	i.mu.Unlock()

	i.log.Debug("Issued attestation challenge", slog.String("key_id", keyID.String()))

	return base64.StdEncoding.EncodeToString(token), nil
}

// Consume redeems the outstanding challenge for the key identifier. The entry
// is removed, so a second redemption fails until a new challenge is issued.
func (i *Issuer) Consume(keyID interfaces.KeyID) ([]byte, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.issued.Get(string(keyID))
	if !ok {
		return nil, false
	}
	i.issued.Delete(string(keyID))

	return v.([]byte), true
}
