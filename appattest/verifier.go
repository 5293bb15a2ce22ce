package appattest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"github.com/genui/attested-trace-backend/interfaces"
)

// attestationFormat is the only statement format the verifier accepts.
const attestationFormat = "apple-appattest"

// oidAppleNonce identifies the credential certificate extension carrying the
// nonce that binds the attestation to a server-issued challenge.
var oidAppleNonce = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

// Environment markers embedded in the authenticator data aaguid field.
var (
	aaguidProduction  = [16]byte{'a', 'p', 'p', 'a', 't', 't', 'e', 's', 't', 0, 0, 0, 0, 0, 0, 0}
	aaguidDevelopment = [16]byte{'a', 'p', 'p', 'a', 't', 't', 'e', 's', 't', 'd', 'e', 'v', 'e', 'l', 'o', 'p'}
)

// attestationObject is the CBOR layout of an apple-appattest statement.
type attestationObject struct {
	Format       string       `cbor:"fmt"`
	AttStatement attStatement `cbor:"attStmt"`
	AuthData     []byte       `cbor:"authData"`
}

type attStatement struct {
	X5C     [][]byte `cbor:"x5c"`
	Receipt []byte   `cbor:"receipt"`
}

// coseKey is an EC2 public key in COSE_Key form.
type coseKey struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint,omitempty"`
	Curve     int    `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
	Y         []byte `cbor:"-3,keyasint"`
}

// appleNonceValue is the ASN.1 layout of the oidAppleNonce extension value.
type appleNonceValue struct {
	Nonce []byte `asn1:"tag:1,explicit"`
}

// authenticatorData is the parsed fixed-layout authenticator data structure.
type authenticatorData struct {
	rpIDHash [32]byte
	flags    byte
	counter  uint32
	aaguid   [16]byte
	credID   []byte
	credKey  []byte // raw COSE_Key bytes
}

// Verifier validates apple-appattest attestation objects against an immutable
// trust anchor, application identity, and environment policy. It is safe for
// concurrent use.
//
// Verify exposes a single boolean: every failure mode, from a structural parse
// error to a nonce mismatch, looks identical to the caller. Distinguishing
// them would give an adversary an oracle to iterate toward a forged
// attestation; specifics are logged server-side instead.
type Verifier struct {
	root       *x509.Certificate
	appID      string
	production bool
	log        *slog.Logger
}

// NewVerifier creates a verifier pinned to the given trust anchor and
// application identity. When production is true, development-environment
// attestations are rejected.
func NewVerifier(root *x509.Certificate, appID string, production bool, log *slog.Logger) (*Verifier, error) {
	if root == nil {
		return nil, errors.New("trust anchor certificate is required")
	}
	if appID == "" {
		return nil, errors.New("app identity is required")
	}

	return &Verifier{
		root:       root,
		appID:      appID,
		production: production,
		log:        log,
	}, nil
}

// Verify checks attestationObjectB64 against the challenge previously issued
// for keyID. It returns true only if every verification step succeeds.
func (v *Verifier) Verify(keyID interfaces.KeyID, attestationObjectB64 string, challenge []byte) bool {
	keyIDBytes, err := keyID.Bytes()
	if err != nil {
		v.log.Warn("Attestation rejected: malformed key id", "err", err)
		return false
	}
	if len(challenge) == 0 {
		v.log.Warn("Attestation rejected: no challenge bound to key id", slog.String("key_id", keyID.String()))
		return false
	}

	raw, err := base64.StdEncoding.DecodeString(attestationObjectB64)
	if err != nil {
		v.log.Warn("Attestation rejected: object is not valid base64", "err", err)
		return false
	}

	var obj attestationObject
	if err := cbor.Unmarshal(raw, &obj); err != nil {
		v.log.Warn("Attestation rejected: CBOR decode failed", "err", err)
		return false
	}
	if obj.Format != attestationFormat {
		v.log.Warn("Attestation rejected: unexpected statement format", slog.String("format", obj.Format))
		return false
	}
	if len(obj.AttStatement.X5C) == 0 {
		v.log.Warn("Attestation rejected: empty certificate chain")
		return false
	}

	credCert, err := v.verifyCertChain(obj.AttStatement.X5C)
	if err != nil {
		v.log.Warn("Attestation rejected: certificate chain invalid", "err", err)
		return false
	}

	if err := v.verifyNonceBinding(credCert, obj.AuthData, challenge); err != nil {
		v.log.Warn("Attestation rejected: challenge binding failed", "err", err)
		return false
	}

	authData, err := parseAuthenticatorData(obj.AuthData)
	if err != nil {
		v.log.Warn("Attestation rejected: malformed authenticator data", "err", err)
		return false
	}

	if err := v.verifyAppIdentity(authData); err != nil {
		v.log.Warn("Attestation rejected: app identity mismatch", "err", err)
		return false
	}

	if err := v.verifyKeyIdentity(credCert, authData, keyIDBytes); err != nil {
		v.log.Warn("Attestation rejected: key identity mismatch", "err", err)
		return false
	}

	if err := v.verifyEnvironment(authData); err != nil {
		v.log.Warn("Attestation rejected: environment policy violation", "err", err)
		return false
	}

	v.log.Debug("Attestation verified", slog.String("key_id", keyID.String()))
	return true
}

// verifyCertChain parses the x5c chain and verifies that it terminates at the
// pinned trust anchor. The leaf (credential) certificate is returned.
func (v *Verifier) verifyCertChain(x5c [][]byte) (*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(x5c))
	for i, der := range x5c {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing x5c[%d]: %w", i, err)
		}
		certs = append(certs, cert)
	}

	roots := x509.NewCertPool()
	roots.AddCert(v.root)

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	credCert := certs[0]
	if _, err := credCert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, err
	}

	return credCert, nil
}

// verifyNonceBinding recomputes the expected nonce from the authenticator data
// and the hash of the issued challenge, and compares it against the nonce
// embedded in the credential certificate. This is the step that ties one
// specific previously issued challenge to this specific attestation.
func (v *Verifier) verifyNonceBinding(credCert *x509.Certificate, authData, challenge []byte) error {
	clientDataHash := sha256.Sum256(challenge)

	composite := make([]byte, 0, len(authData)+len(clientDataHash))
	composite = append(composite, authData...)
	composite = append(composite, clientDataHash[:]...)
	expected := sha256.Sum256(composite)

	var certNonce []byte
	for _, ext := range credCert.Extensions {
		if ext.Id.Equal(oidAppleNonce) {
			var value appleNonceValue
			if _, err := asn1.Unmarshal(ext.Value, &value); err != nil {
				return fmt.Errorf("parsing nonce extension: %w", err)
			}
			certNonce = value.Nonce
			break
		}
	}
	if certNonce == nil {
		return errors.New("credential certificate carries no nonce extension")
	}

	if !bytes.Equal(certNonce, expected[:]) {
		return errors.New("nonce does not match issued challenge")
	}
	return nil
}

func (v *Verifier) verifyAppIdentity(authData *authenticatorData) error {
	appIDHash := sha256.Sum256([]byte(v.appID))
	if authData.rpIDHash != appIDHash {
		return errors.New("relying party hash does not match app identity")
	}
	return nil
}

// verifyKeyIdentity checks that the asserted key identifier is the SHA-256 of
// the attested public key, that the credential id in authenticator data
// matches it, and that the COSE key is consistent with the certificate key.
func (v *Verifier) verifyKeyIdentity(credCert *x509.Certificate, authData *authenticatorData, keyIDBytes []byte) error {
	certPub, ok := credCert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return errors.New("credential certificate key is not ECDSA")
	}
	if certPub.Curve != elliptic.P256() {
		return errors.New("credential certificate key is not P-256")
	}

	certPubHash := sha256.Sum256(uncompressedPoint(certPub))
	if !bytes.Equal(certPubHash[:], keyIDBytes) {
		return errors.New("key id does not match certificate public key")
	}

	if !bytes.Equal(authData.credID, keyIDBytes) {
		return errors.New("credential id does not match key id")
	}

	var key coseKey
	if err := cbor.Unmarshal(authData.credKey, &key); err != nil {
		return fmt.Errorf("parsing COSE credential key: %w", err)
	}
	var xb, yb [32]byte
	certPub.X.FillBytes(xb[:])
	certPub.Y.FillBytes(yb[:])
	if !bytes.Equal(key.X, xb[:]) || !bytes.Equal(key.Y, yb[:]) {
		return errors.New("COSE credential key does not match certificate key")
	}

	return nil
}

// verifyEnvironment enforces the production/development policy. A fresh
// attestation must also carry a zero counter.
func (v *Verifier) verifyEnvironment(authData *authenticatorData) error {
	if authData.counter != 0 {
		return fmt.Errorf("nonzero counter %d in initial attestation", authData.counter)
	}

	switch authData.aaguid {
	case aaguidProduction:
		return nil
	case aaguidDevelopment:
		if v.production {
			return errors.New("development attestation rejected by production policy")
		}
		return nil
	default:
		return errors.New("unrecognized attestation environment")
	}
}

// parseAuthenticatorData decodes the fixed-layout authenticator data:
// rpIdHash(32) flags(1) counter(4) aaguid(16) credIdLen(2) credId credKey.
func parseAuthenticatorData(data []byte) (*authenticatorData, error) {
	const fixedLen = 32 + 1 + 4 + 16 + 2
	if len(data) < fixedLen {
		return nil, fmt.Errorf("authenticator data too short: %d bytes", len(data))
	}

	out := &authenticatorData{}
	copy(out.rpIDHash[:], data[:32])
	out.flags = data[32]
	out.counter = binary.BigEndian.Uint32(data[33:37])
	copy(out.aaguid[:], data[37:53])

	credIDLen := int(binary.BigEndian.Uint16(data[53:55]))
	if len(data) < fixedLen+credIDLen {
		return nil, fmt.Errorf("credential id truncated: want %d bytes", credIDLen)
	}
	out.credID = data[fixedLen : fixedLen+credIDLen]
	out.credKey = data[fixedLen+credIDLen:]

	if len(out.credKey) == 0 {
		return nil, errors.New("authenticator data carries no credential key")
	}

	return out, nil
}

// uncompressedPoint returns the ANSI X9.62 uncompressed encoding of a P-256
// public key, the form Apple hashes to produce the key identifier.
func uncompressedPoint(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	pub.X.FillBytes(out[1:33])
	pub.Y.FillBytes(out[33:65])
	return out
}
