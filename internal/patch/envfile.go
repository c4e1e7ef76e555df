package patch

import (
	"fmt"
	"os"
	"strings"
)

// EnvVar is a single KEY=VALUE pair from an environment file, with quoting
// already resolved. Order matches the file.
type EnvVar struct {
	Key   string
	Value string
}

// ParseEnvFile reads an environment file into ordered key/value pairs.
// Blank lines and lines starting with "#" are skipped, as are lines with no
// "=" at all. Values are split at the first "=", trimmed, and stripped of
// exactly one layer of matching single or double quotes; nested quotes are
// not unwrapped further. Keys are not validated against any schema.
func ParseEnvFile(path string) ([]EnvVar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var vars []EnvVar
	for _, line := range splitLines(string(data)) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		idx := strings.Index(trimmed, "=")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(trimmed[:idx])
		if key == "" {
			continue
		}
		vars = append(vars, EnvVar{Key: key, Value: unquote(strings.TrimSpace(trimmed[idx+1:]))})
	}
	return vars, nil
}

// unquote strips one layer of matching quotes, if present.
func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '"' || first == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// DartDefines renders env pairs as flutter build --dart-define arguments.
func DartDefines(vars []EnvVar) []string {
	args := make([]string, 0, len(vars))
	for _, v := range vars {
		args = append(args, fmt.Sprintf("--dart-define=%s=%s", v.Key, v.Value))
	}
	return args
}
