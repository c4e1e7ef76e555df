package patch

import (
	"os"
	"strings"
)

// ignoreMarker separates original ignore-file content from appended entries.
// It is written once, only when at least one entry will be appended.
const ignoreMarker = "# added by stencil"

// MergeIgnoreFile appends to the ignore file at existingPath every pattern
// line from bundlePath that is not already present, using exact string
// comparison ("build/" and "build" are distinct patterns). Original lines,
// their order, comments, and blanks are preserved byte-for-byte. Returns
// the number of lines appended; zero means the file was not rewritten.
func MergeIgnoreFile(existingPath, bundlePath string) (int, error) {
	existing, err := os.ReadFile(existingPath)
	if err != nil {
		return 0, err
	}
	bundled, err := os.ReadFile(bundlePath)
	if err != nil {
		return 0, err
	}

	// Blank and comment detection uses the trimmed form; membership and the
	// appended output use the raw line, so comparison stays exact and bundle
	// whitespace survives.
	present := make(map[string]bool)
	for _, line := range splitLines(string(existing)) {
		if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			present[line] = true
		}
	}

	var missing []string
	for _, line := range splitLines(string(bundled)) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if present[line] {
			continue
		}
		present[line] = true
		missing = append(missing, line)
	}

	if len(missing) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	b.WriteString(ignoreMarker + "\n")
	for _, line := range missing {
		b.WriteString(line + "\n")
	}

	mode := os.FileMode(0644)
	if info, statErr := os.Stat(existingPath); statErr == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(existingPath, []byte(b.String()), mode); err != nil {
		return 0, err
	}
	return len(missing), nil
}

// splitLines splits content on newlines without producing a phantom empty
// final line for newline-terminated files.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
