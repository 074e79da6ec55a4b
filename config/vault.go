package config

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// VaultScheme prefixes secret references stored in Vault.
const VaultScheme = "vault://"

// VaultResolver reads secrets from a KV v2 secrets engine.
type VaultResolver struct {
	client *vault.Client
}

// NewVaultResolver creates a resolver for the Vault server at address using
// token. Empty values fall back to VAULT_ADDR and VAULT_TOKEN.
func NewVaultResolver(address, token string) (*VaultResolver, error) {
	cfg := vault.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("failed to read Vault environment: %w", cfg.Error)
	}
	if address != "" {
		cfg.Address = address
	}
	cfg.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultResolver{client: client}, nil
}

// Resolve reads vault://<mount>/<path>#<field>.
func (r *VaultResolver) Resolve(ctx context.Context, ref string) (string, error) {
	mount, secretPath, field, err := ParseVaultRef(ref)
	if err != nil {
		return "", err
	}

	// KV v2 path structure
	path := fmt.Sprintf("%s/data/%s", mount, secretPath)

	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret %s not found in Vault", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid data format in Vault response for %s", path)
	}

	value, ok := data[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("field %q missing in Vault secret %s", field, path)
	}
	return value, nil
}

// ParseVaultRef splits vault://<mount>/<path>#<field>.
func ParseVaultRef(ref string) (mount, path, field string, err error) {
	rest, ok := strings.CutPrefix(ref, VaultScheme)
	if !ok {
		return "", "", "", fmt.Errorf("not a vault reference: %q", ref)
	}

	location, field, ok := strings.Cut(rest, "#")
	if !ok || field == "" {
		return "", "", "", fmt.Errorf("vault reference %q has no #field", ref)
	}

	mount, path, ok = strings.Cut(strings.Trim(location, "/"), "/")
	if !ok || mount == "" || path == "" {
		return "", "", "", fmt.Errorf("vault reference %q must be vault://<mount>/<path>#<field>", ref)
	}
	return mount, path, field, nil
}
