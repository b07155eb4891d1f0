package secrets

import (
	"fmt"
	"os"
	"strings"
)

// GetSecret resolves envKey, preferring a file named by envKey_FILE (Docker secrets)
// over the plain environment variable, then defaultValue.
func GetSecret(envKey, defaultValue string) (string, error) {
	if path := os.Getenv(envKey + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read secret file %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}
	return defaultValue, nil
}

// GetOptionalSecret is GetSecret that falls back to defaultValue on any read error
func GetOptionalSecret(envKey, defaultValue string) string {
	value, err := GetSecret(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetSecretList resolves a comma or newline separated secret into its non-empty items
func GetSecretList(envKey string) []string {
	raw := GetOptionalSecret(envKey, "")
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
