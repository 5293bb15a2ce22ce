package secrets

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_InlineHex(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	secret, err := Resolve(context.Background(), hex.EncodeToString(raw), testLogger())
	require.NoError(t, err)
	assert.Equal(t, raw, secret)
}

func TestResolve_InlineHexTrimsWhitespace(t *testing.T) {
	raw := strings.Repeat("ab", 32)

	secret, err := Resolve(context.Background(), "  "+raw+"\n", testLogger())
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}

func TestResolve_Rejections(t *testing.T) {
	for name, source := range map[string]string{
		"empty":     "",
		"not hex":   "zzzz",
		"too short": strings.Repeat("ab", 16),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(context.Background(), source, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestResolve_VaultReferenceShape(t *testing.T) {
	// malformed references fail before any network access
	for name, reference := range map[string]string{
		"missing address": "vault:///secret/trace-backend",
		"missing path":    "vault://vault.example.com:8200",
		"mount only":      "vault://vault.example.com:8200/secret",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(context.Background(), reference, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestSplitVaultPath(t *testing.T) {
	mount, dataPath, err := splitVaultPath("/secret/trace-backend/prod")
	require.NoError(t, err)
	assert.Equal(t, "secret", mount)
	assert.Equal(t, "trace-backend/prod", dataPath)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
