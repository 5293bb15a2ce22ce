package appattest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/genui/attested-trace-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "MJLARYDQWH.com.genui.ai2.olmoe"

// attestationFixture holds everything needed to exercise the verifier with a
// known-good attestation and controlled corruptions of it.
type attestationFixture struct {
	root      *x509.Certificate
	keyID     interfaces.KeyID
	challenge []byte
	objectB64 string
}

type fixtureOpts struct {
	aaguid  [16]byte
	counter uint32
}

func defaultOpts() fixtureOpts {
	return fixtureOpts{aaguid: aaguidProduction}
}

func newTestCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test App Attestation Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return cert, caKey
}

// buildFixture constructs a structurally valid apple-appattest object signed
// by a test CA, binding the given challenge.
func buildFixture(t *testing.T, challenge []byte, opts fixtureOpts) attestationFixture {
	t.Helper()

	rootCert, rootKey := newTestCA(t)

	credKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	keyIDBytes := sha256.Sum256(uncompressedPoint(&credKey.PublicKey))
	keyID := interfaces.KeyID(base64.StdEncoding.EncodeToString(keyIDBytes[:]))

	authData := buildAuthData(t, keyIDBytes[:], &credKey.PublicKey, opts)

	clientDataHash := sha256.Sum256(challenge)
	nonceInput := append(append([]byte{}, authData...), clientDataHash[:]...)
	nonce := sha256.Sum256(nonceInput)

	nonceExt, err := asn1.Marshal(appleNonceValue{Nonce: nonce[:]})
	require.NoError(t, err)

	credTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Credential"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtraExtensions: []pkix.Extension{
			{Id: oidAppleNonce, Value: nonceExt},
		},
	}

	credDER, err := x509.CreateCertificate(rand.Reader, credTemplate, rootCert, &credKey.PublicKey, rootKey)
	require.NoError(t, err)

	obj := attestationObject{
		Format: attestationFormat,
		AttStatement: attStatement{
			X5C:     [][]byte{credDER},
			Receipt: []byte("test receipt"),
		},
		AuthData: authData,
	}

	raw, err := cbor.Marshal(obj)
	require.NoError(t, err)

	return attestationFixture{
		root:      rootCert,
		keyID:     keyID,
		challenge: challenge,
		objectB64: base64.StdEncoding.EncodeToString(raw),
	}
}

func buildAuthData(t *testing.T, credID []byte, pub *ecdsa.PublicKey, opts fixtureOpts) []byte {
	t.Helper()

	var xb, yb [32]byte
	pub.X.FillBytes(xb[:])
	pub.Y.FillBytes(yb[:])

	coseBytes, err := cbor.Marshal(coseKey{
		KeyType:   2,  // EC2
		Algorithm: -7, // ES256
		Curve:     1,  // P-256
		X:         xb[:],
		Y:         yb[:],
	})
	require.NoError(t, err)

	rpIDHash := sha256.Sum256([]byte(testAppID))

	data := make([]byte, 0, 55+len(credID)+len(coseBytes))
	data = append(data, rpIDHash[:]...)
	data = append(data, 0x40) // attested credential data present
	data = binary.BigEndian.AppendUint32(data, opts.counter)
	data = append(data, opts.aaguid[:]...)
	data = binary.BigEndian.AppendUint16(data, uint16(len(credID)))
	data = append(data, credID...)
	data = append(data, coseBytes...)

	return data
}

func newVerifier(t *testing.T, root *x509.Certificate, production bool) *Verifier {
	t.Helper()
	v, err := NewVerifier(root, testAppID, production, testLogger())
	require.NoError(t, err)
	return v
}

func TestVerify_ValidAttestation(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())
	v := newVerifier(t, fix.root, true)

	assert.True(t, v.Verify(fix.keyID, fix.objectB64, fix.challenge))
}

func TestVerify_TamperedObject(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())
	v := newVerifier(t, fix.root, true)

	raw, err := base64.StdEncoding.DecodeString(fix.objectB64)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	assert.False(t, v.Verify(fix.keyID, tampered, fix.challenge))
}

func TestVerify_NonceMismatch(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())
	v := newVerifier(t, fix.root, true)

	assert.False(t, v.Verify(fix.keyID, fix.objectB64, []byte("a different challenge")))
}

func TestVerify_UntrustedChain(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())
	otherRoot, _ := newTestCA(t)
	v := newVerifier(t, otherRoot, true)

	assert.False(t, v.Verify(fix.keyID, fix.objectB64, fix.challenge))
}

func TestVerify_KeyIDMismatch(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())
	v := newVerifier(t, fix.root, true)

	otherHash := sha256.Sum256([]byte("some other key"))
	otherKeyID := interfaces.KeyID(base64.StdEncoding.EncodeToString(otherHash[:]))

	assert.False(t, v.Verify(otherKeyID, fix.objectB64, fix.challenge))
}

func TestVerify_AppIdentityMismatch(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())

	v, err := NewVerifier(fix.root, "OTHERTEAM.com.example.other", true, testLogger())
	require.NoError(t, err)

	assert.False(t, v.Verify(fix.keyID, fix.objectB64, fix.challenge))
}

func TestVerify_ProductionPolicy(t *testing.T) {
	opts := defaultOpts()
	opts.aaguid = aaguidDevelopment
	fix := buildFixture(t, []byte("challenge-token-bytes"), opts)

	// development attestations are rejected under production policy
	assert.False(t, newVerifier(t, fix.root, true).Verify(fix.keyID, fix.objectB64, fix.challenge))

	// and accepted under development policy
	assert.True(t, newVerifier(t, fix.root, false).Verify(fix.keyID, fix.objectB64, fix.challenge))
}

func TestVerify_UnknownEnvironment(t *testing.T) {
	opts := defaultOpts()
	opts.aaguid = [16]byte{0xde, 0xad, 0xbe, 0xef}
	fix := buildFixture(t, []byte("challenge-token-bytes"), opts)

	assert.False(t, newVerifier(t, fix.root, false).Verify(fix.keyID, fix.objectB64, fix.challenge))
}

func TestVerify_NonzeroCounter(t *testing.T) {
	opts := defaultOpts()
	opts.counter = 7
	fix := buildFixture(t, []byte("challenge-token-bytes"), opts)

	assert.False(t, newVerifier(t, fix.root, true).Verify(fix.keyID, fix.objectB64, fix.challenge))
}

func TestVerify_GarbageInputs(t *testing.T) {
	fix := buildFixture(t, []byte("challenge-token-bytes"), defaultOpts())
	v := newVerifier(t, fix.root, true)

	assert.False(t, v.Verify(fix.keyID, "not base64 at all", fix.challenge))
	assert.False(t, v.Verify(fix.keyID, base64.StdEncoding.EncodeToString([]byte("not cbor")), fix.challenge))
	assert.False(t, v.Verify(fix.keyID, fix.objectB64, nil))
}

func TestVerify_EndToEndWithIssuer(t *testing.T) {
	issuer, err := NewIssuer(testMasterSecret(t), time.Minute, testLogger())
	require.NoError(t, err)

	// issue a challenge for a placeholder key id, then build an attestation
	// bound to the exact token bytes
	placeholder := testKeyID()
	token, err := issuer.Issue(placeholder)
	require.NoError(t, err)
	tokenBytes, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	fix := buildFixture(t, tokenBytes, defaultOpts())
	v := newVerifier(t, fix.root, true)

	challenge, ok := issuer.Consume(placeholder)
	require.True(t, ok)
	assert.True(t, v.Verify(fix.keyID, fix.objectB64, challenge))

	// the consumed challenge cannot back a second submission
	_, ok = issuer.Consume(placeholder)
	assert.False(t, ok)
}

func TestParseTrustAnchor_EmbeddedAppleRoot(t *testing.T) {
	cert, err := DefaultTrustAnchor()
	require.NoError(t, err)
	assert.Contains(t, cert.Subject.CommonName, "Apple App Attestation Root CA")
	assert.True(t, cert.IsCA)
}

func TestParseTrustAnchor_PEM(t *testing.T) {
	root, _ := newTestCA(t)

	pemBytes := encodeCertPEM(t, root)
	cert, err := ParseTrustAnchor(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, root.Subject.CommonName, cert.Subject.CommonName)
}

func encodeCertPEM(t *testing.T, cert *x509.Certificate) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func TestParseTrustAnchor_Garbage(t *testing.T) {
	_, err := ParseTrustAnchor([]byte("not a certificate"))
	assert.Error(t, err)
}
