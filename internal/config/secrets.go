package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
)

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

// ResolveValue replaces every secret reference in val with its value.
// References may be the whole value or embedded in it, as in
// postgres://app:${VAULT:secret/data/db#password}@db:5432/propeire.
func ResolveValue(val string) (string, error) {
	return ResolveValueContext(context.Background(), val)
}

// ResolveValueContext is ResolveValue with a context for remote providers.
func ResolveValueContext(ctx context.Context, val string) (string, error) {
	var firstErr error
	out := secretPattern.ReplaceAllStringFunc(val, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		m := secretPattern.FindStringSubmatch(ref)
		v, err := resolveRef(ctx, m[1], m[2])
		if err != nil {
			firstErr = err
			return ref
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func resolveRef(ctx context.Context, provider, ref string) (string, error) {
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ctx, ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// HasSecretRef reports whether val contains a secret reference.
func HasSecretRef(val string) bool {
	return secretPattern.MatchString(val)
}
