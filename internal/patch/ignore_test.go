package patch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeIgnoreFiles(t *testing.T, existing, bundled string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	existingPath := filepath.Join(dir, ".gitignore")
	bundlePath := filepath.Join(dir, "bundle.gitignore")
	if err := os.WriteFile(existingPath, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bundlePath, []byte(bundled), 0644); err != nil {
		t.Fatal(err)
	}
	return existingPath, bundlePath
}

func TestMergeIgnoreFile_AppendsOnlyMissing(t *testing.T) {
	// 5 existing lines: 2 blank, 1 comment, 2 patterns.
	existing := `# IDE files
.idea/

build/

`
	// 8 bundle lines, 3 exact matches against existing non-comment lines.
	bundled := `.idea/
build/
.dart_tool/
.packages
*.iml
coverage/
.env
build/
`
	existingPath, bundlePath := writeIgnoreFiles(t, existing, bundled)

	added, err := MergeIgnoreFile(existingPath, bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if added != 5 {
		t.Errorf("expected 5 appended lines, got %d", added)
	}

	got := readFile(t, existingPath)

	// Original content must survive byte-for-byte as the prefix.
	if !strings.HasPrefix(got, existing) {
		t.Errorf("original content was disturbed:\n%s", got)
	}

	tail := strings.TrimPrefix(got, existing)
	want := ignoreMarker + "\n.dart_tool/\n.packages\n*.iml\ncoverage/\n.env\n"
	if tail != want {
		t.Errorf("unexpected appended tail:\n%q\nwant:\n%q", tail, want)
	}
}

func TestMergeIgnoreFile_NothingToAppend(t *testing.T) {
	existing := ".dart_tool/\nbuild/\n"
	bundled := "build/\n.dart_tool/\n"
	existingPath, bundlePath := writeIgnoreFiles(t, existing, bundled)

	added, err := MergeIgnoreFile(existingPath, bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("expected 0 appended lines, got %d", added)
	}

	// No marker, no rewrite.
	if got := readFile(t, existingPath); got != existing {
		t.Errorf("file was modified:\n%s", got)
	}
}

func TestMergeIgnoreFile_ExactStringMatchNotGlobSemantics(t *testing.T) {
	// "build/" and "build" are distinct patterns for the merge.
	existingPath, bundlePath := writeIgnoreFiles(t, "build/\n", "build\n")

	added, err := MergeIgnoreFile(existingPath, bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("expected 1 appended line, got %d", added)
	}
}

func TestMergeIgnoreFile_ComparesAndAppendsRawLines(t *testing.T) {
	// "build/ " (trailing space) and "build/" are different lines; the
	// bundle line is appended with its whitespace intact.
	existingPath, bundlePath := writeIgnoreFiles(t, "build/\n", "build/ \n\tcache/\n")

	added, err := MergeIgnoreFile(existingPath, bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Errorf("expected 2 appended lines, got %d", added)
	}

	want := "build/\n" + ignoreMarker + "\nbuild/ \n\tcache/\n"
	if got := readFile(t, existingPath); got != want {
		t.Errorf("unexpected content:\n%q\nwant:\n%q", got, want)
	}
}

func TestMergeIgnoreFile_MissingTrailingNewline(t *testing.T) {
	existingPath, bundlePath := writeIgnoreFiles(t, ".idea/", "coverage/\n")

	if _, err := MergeIgnoreFile(existingPath, bundlePath); err != nil {
		t.Fatal(err)
	}

	want := ".idea/\n" + ignoreMarker + "\ncoverage/\n"
	if got := readFile(t, existingPath); got != want {
		t.Errorf("unexpected content:\n%q\nwant:\n%q", got, want)
	}
}

func TestMergeIgnoreFile_BundleCommentsNotAppended(t *testing.T) {
	existingPath, bundlePath := writeIgnoreFiles(t, ".idea/\n", "# tooling\n\ncoverage/\n")

	added, err := MergeIgnoreFile(existingPath, bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("expected 1 appended line, got %d", added)
	}
	if got := readFile(t, existingPath); strings.Contains(got, "# tooling") {
		t.Errorf("bundle comment leaked into merged file:\n%s", got)
	}
}

func TestMergeIgnoreFile_Idempotent(t *testing.T) {
	existingPath, bundlePath := writeIgnoreFiles(t, ".idea/\nbuild/\n", ".dart_tool/\ncoverage/\n")

	if _, err := MergeIgnoreFile(existingPath, bundlePath); err != nil {
		t.Fatal(err)
	}
	afterFirst := readFile(t, existingPath)

	added, err := MergeIgnoreFile(existingPath, bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("second merge appended %d lines", added)
	}
	if got := readFile(t, existingPath); got != afterFirst {
		t.Error("second merge changed the file")
	}
}
