// Package secrets resolves the server master secret from its configured
// source. The secret is either given inline as hex or referenced by a
// vault:// URI pointing at a KV v2 entry in HashiCorp Vault.
package secrets

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// minSecretBytes is the smallest master secret accepted, matching the
// challenge issuer's requirement.
const minSecretBytes = 32

// defaultVaultField is the KV field holding the hex-encoded secret when the
// reference does not name one.
const defaultVaultField = "master_secret"

var ErrSecretNotFound = errors.New("secret not found")

// Resolve returns the master secret for the given source. A source starting
// with vault:// is fetched from Vault, anything else is treated as inline hex.
// The secret value itself is never logged.
func Resolve(ctx context.Context, source string, log *slog.Logger) ([]byte, error) {
	if source == "" {
		return nil, errors.New("master secret source is empty")
	}

	if strings.HasPrefix(source, "vault://") {
		return fetchFromVault(ctx, source, log)
	}
	return decodeHex(source)
}

func decodeHex(s string) ([]byte, error) {
	secret, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("master secret is not valid hex: %w", err)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("master secret too short: %d bytes, need at least %d", len(secret), minSecretBytes)
	}
	return secret, nil
}

// fetchFromVault reads the secret from a KV v2 entry. The reference has the
// form vault://host:port/mount/path/to/entry#field, where the fragment is
// optional and defaults to "master_secret". Authentication uses the standard
// Vault environment (VAULT_TOKEN and friends).
func fetchFromVault(ctx context.Context, reference string, log *slog.Logger) ([]byte, error) {
	parsed, err := url.Parse(reference)
	if err != nil {
		return nil, fmt.Errorf("invalid vault reference: %w", err)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid vault reference: missing address")
	}

	mount, dataPath, err := splitVaultPath(parsed.Path)
	if err != nil {
		return nil, err
	}

	field := parsed.Fragment
	if field == "" {
		field = defaultVaultField
	}

	config := api.DefaultConfig()
	config.Address = "https://" + parsed.Host
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	// KV v2 path structure
	path := fmt.Sprintf("%s/data/%s", mount, dataPath)

	secret, err := client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		log.Error("Failed to read master secret from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("vault read failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected Vault response format at %s", path)
	}

	value, ok := data[field].(string)
	if !ok {
		return nil, fmt.Errorf("%w: field %q at %s", ErrSecretNotFound, field, path)
	}

	log.Info("Loaded master secret from Vault", slog.String("path", path), slog.String("field", field))
	return decodeHex(value)
}

func splitVaultPath(p string) (mount string, dataPath string, err error) {
	p = strings.Trim(p, "/")
	mount, dataPath, found := strings.Cut(p, "/")
	if !found || mount == "" || dataPath == "" {
		return "", "", errors.New("invalid vault reference: expected vault://address/mount/path")
	}
	return mount, dataPath, nil
}
