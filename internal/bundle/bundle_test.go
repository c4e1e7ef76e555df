package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBundleFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromManifest(t *testing.T) {
	dir := t.TempDir()
	writeBundleFile(t, dir, ".gitignore", "build/\n")
	writeBundleFile(t, dir, "lefthook.yml", "pre-commit:\n")
	writeBundleFile(t, dir, "hooks/pre-commit.sh", "#!/bin/sh\n")
	writeBundleFile(t, dir, ManifestName, `files:
  - path: lefthook.yml
    class: root
    sensitive: true
  - path: .gitignore
    class: ignore
  - path: hooks/pre-commit.sh
    class: hook
`)

	b, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Declared manifest order is authoritative, not sorted order.
	if len(b.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(b.Entries))
	}
	if b.Entries[0].Path != "lefthook.yml" || !b.Entries[0].Sensitive {
		t.Errorf("unexpected first entry: %+v", b.Entries[0])
	}
	if b.Entries[1].Class != ClassIgnore {
		t.Errorf("expected ignore class, got %s", b.Entries[1].Class)
	}
	if b.Entries[2].Class != ClassHook {
		t.Errorf("expected hook class, got %s", b.Entries[2].Class)
	}
}

func TestLoad_ManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "missing declared file",
			manifest: "files:\n  - path: nope.txt\n    class: root\n",
			wantErr:  "missing",
		},
		{
			name:     "unknown class",
			manifest: "files:\n  - path: .gitignore\n    class: mystery\n",
			wantErr:  "unknown class",
		},
		{
			name:     "duplicate path",
			manifest: "files:\n  - path: .gitignore\n    class: ignore\n  - path: .gitignore\n    class: ignore\n",
			wantErr:  "twice",
		},
		{
			name:     "no files",
			manifest: "files: []\n",
			wantErr:  "no files",
		},
		{
			name:     "parent traversal",
			manifest: "files:\n  - path: ../outside.txt\n    class: root\n",
			wantErr:  "local relative path",
		},
		{
			name:     "absolute path",
			manifest: "files:\n  - path: /etc/passwd\n    class: root\n",
			wantErr:  "local relative path",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeBundleFile(t, dir, ".gitignore", "build/\n")
			writeBundleFile(t, dir, ManifestName, tc.manifest)

			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_FromWalkIsSortedAndClassified(t *testing.T) {
	dir := t.TempDir()
	writeBundleFile(t, dir, "docs/setup.md", "# setup\n")
	writeBundleFile(t, dir, ".gitignore", "build/\n")
	writeBundleFile(t, dir, ".github/workflows/ci.yml", "on: push\n")
	writeBundleFile(t, dir, "hooks/pre-commit.sh", "#!/bin/sh\n")
	writeBundleFile(t, dir, "lefthook.yml", "pre-commit:\n")
	writeBundleFile(t, dir, "pubspec.yaml", "dev_dependencies:\n  lefthook: ^1.5.0\n")

	b, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{
		".github/workflows/ci.yml",
		".gitignore",
		"docs/setup.md",
		"hooks/pre-commit.sh",
		"lefthook.yml",
		"pubspec.yaml",
	}
	if len(b.Entries) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d", len(wantOrder), len(b.Entries))
	}
	for i, want := range wantOrder {
		if b.Entries[i].Path != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, b.Entries[i].Path)
		}
	}

	wantClass := map[string]Class{
		".github/workflows/ci.yml": ClassWorkflow,
		".gitignore":               ClassIgnore,
		"docs/setup.md":            ClassDoc,
		"hooks/pre-commit.sh":      ClassHook,
		"lefthook.yml":             ClassRoot,
		"pubspec.yaml":             ClassManifestDependency,
	}
	for _, entry := range b.Entries {
		if entry.Class != wantClass[entry.Path] {
			t.Errorf("%s: expected class %s, got %s", entry.Path, wantClass[entry.Path], entry.Class)
		}
	}

	for _, entry := range b.Entries {
		if entry.Path == "lefthook.yml" && !entry.Sensitive {
			t.Error("lefthook.yml should be classified sensitive")
		}
	}
}

func TestLoad_MissingDir(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing bundle directory")
	}
}
