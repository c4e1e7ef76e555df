package patch

import (
	"fmt"
	"os"
	"strings"
)

// PatchResult describes the outcome of a manifest injection.
type PatchResult int

const (
	// AlreadyPresent means the dependency key exists and the file was not touched.
	AlreadyPresent PatchResult = iota
	// Patched means the dependency line was inserted and the file rewritten.
	Patched
)

// defaultIndent is used when the target section has no sibling lines to
// derive an indent from.
const defaultIndent = "  "

// ManifestPatchError indicates the project manifest could not be patched,
// typically because it is missing or unwritable.
type ManifestPatchError struct {
	Path string
	Err  error
}

func (e *ManifestPatchError) Error() string {
	return fmt.Sprintf("failed to patch manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestPatchError) Unwrap() error {
	return e.Err
}

// InjectDependency inserts "key: valueLine" into the named top-level section
// of the manifest at path. If the key already exists anywhere in the file the
// file is left byte-identical and AlreadyPresent is returned. If the section
// is missing it is created, placed before the anchor section when one is
// found at column 0, otherwise appended at end of file.
//
// This is deliberately not a YAML parser: all lines the patch does not touch
// are preserved verbatim, including comments, blank lines, and formatting.
// The new content is built in memory and written in a single call.
func InjectDependency(path, section, key, valueLine, anchor string) (PatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AlreadyPresent, &ManifestPatchError{Path: path, Err: err}
	}

	content := string(data)
	hadTrailingNewline := strings.HasSuffix(content, "\n")

	var lines []string
	if content != "" {
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	// Whole-key scan across the entire file. A match is a line whose
	// trimmed form is the key itself or the key followed by a colon.
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == key || strings.HasPrefix(trimmed, key+":") {
			return AlreadyPresent, nil
		}
	}

	sectionIdx := findHeader(lines, section)
	if sectionIdx >= 0 {
		lines = insertIntoSection(lines, sectionIdx, key, valueLine)
	} else {
		lines = appendSection(lines, section, key, valueLine, anchor)
	}

	out := strings.Join(lines, "\n")
	if hadTrailingNewline || content == "" {
		out += "\n"
	}

	mode := os.FileMode(0644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, []byte(out), mode); err != nil {
		return AlreadyPresent, &ManifestPatchError{Path: path, Err: err}
	}
	return Patched, nil
}

// findHeader returns the index of the line matching header at column 0,
// or -1 if no such line exists.
func findHeader(lines []string, header string) int {
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == header {
			return i
		}
	}
	return -1
}

// insertIntoSection places the new key line after the last content line of
// the section starting at headerIdx. A line is still in the section if it
// is blank or begins with indentation; membership ends at the first
// unindented non-blank line or EOF.
func insertIntoSection(lines []string, headerIdx int, key, valueLine string) []string {
	// Indent is taken from the first content line of the section, which is
	// a direct child; deeper nesting further down must not widen it.
	indent := ""
	lastContent := headerIdx

	for i := headerIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		lastContent = i
		if indent == "" {
			indent = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		}
	}
	if indent == "" {
		indent = defaultIndent
	}

	entry := indent + key + ": " + valueLine
	result := make([]string, 0, len(lines)+1)
	result = append(result, lines[:lastContent+1]...)
	result = append(result, entry)
	result = append(result, lines[lastContent+1:]...)
	return result
}

// appendSection adds a new section with a single entry. When an anchor
// header is present at column 0 the section is inserted just before it so
// it lands in the conventional position; otherwise it goes at end of file.
func appendSection(lines []string, section, key, valueLine, anchor string) []string {
	header := section
	entry := defaultIndent + key + ": " + valueLine

	if anchor != "" {
		if anchorIdx := findHeader(lines, anchor); anchorIdx >= 0 {
			result := make([]string, 0, len(lines)+4)
			result = append(result, lines[:anchorIdx]...)
			if anchorIdx > 0 && strings.TrimSpace(lines[anchorIdx-1]) != "" {
				result = append(result, "")
			}
			result = append(result, header, entry, "")
			result = append(result, lines[anchorIdx:]...)
			return result
		}
	}

	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
		lines = append(lines, "")
	}
	return append(lines, header, entry)
}
