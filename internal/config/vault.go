package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// parseVaultRef splits a reference of the form path#key.
func parseVaultRef(ref string) (path, key string, err error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("invalid Vault reference %q: expected format path#key", ref)
	}
	return path, key, nil
}

// resolveVault reads one key of a Vault secret using VAULT_ADDR and
// VAULT_TOKEN, and VAULT_NAMESPACE when set.
func resolveVault(ctx context.Context, ref string) (string, error) {
	path, key, err := parseVaultRef(ref)
	if err != nil {
		return "", err
	}

	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		return "", fmt.Errorf("VAULT_ADDR environment variable not set")
	}
	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		return "", fmt.Errorf("VAULT_TOKEN environment variable not set")
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return "", fmt.Errorf("creating Vault client: %w", err)
	}
	client.SetToken(token)
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}

	secret, err := client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("reading Vault secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found at %s", path)
	}
	return vaultString(secret.Data, path, key)
}

// vaultString picks key out of KV v1 or KV v2 secret data.
func vaultString(data map[string]any, path, key string) (string, error) {
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}
	val, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in Vault secret at %s", key, path)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("Vault secret value for key %q is not a string", key)
	}
	return s, nil
}
