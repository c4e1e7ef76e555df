package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class tags a bundle file with its reconciliation strategy.
type Class string

const (
	// ClassRoot is generic config copied when absent; a single sensitive
	// root file prompts before overwrite.
	ClassRoot Class = "root"
	// ClassIgnore is an ignore file merged line-wise into the target.
	ClassIgnore Class = "ignore"
	// ClassManifestDependency marks a dependency snippet patched into the
	// project-owned manifest rather than copied.
	ClassManifestDependency Class = "manifest-dependency"
	// ClassHook is a hook script: always overwritten, executable bit set.
	ClassHook Class = "hook"
	// ClassWorkflow is a CI workflow definition: always overwritten.
	ClassWorkflow Class = "workflow"
	// ClassDoc is documentation payload: always overwritten.
	ClassDoc Class = "doc"
)

var validClasses = map[Class]bool{
	ClassRoot:               true,
	ClassIgnore:             true,
	ClassManifestDependency: true,
	ClassHook:               true,
	ClassWorkflow:           true,
	ClassDoc:                true,
}

// ManifestName is the bundle's own file listing, defining the fixed walk
// order the merge engine follows. Prompting order across runs depends on it.
const ManifestName = "bundle.yaml"

// Entry is one bundle file: its path relative to the bundle directory, its
// class, and whether it is the sensitive root file.
type Entry struct {
	Path      string `yaml:"path"`
	Class     Class  `yaml:"class"`
	Sensitive bool   `yaml:"sensitive,omitempty"`
}

// Bundle is the staged template file set for one ecosystem. Immutable once
// loaded; owned by the merge engine for the duration of a run.
type Bundle struct {
	Dir     string
	Entries []Entry
}

type manifest struct {
	Files []Entry `yaml:"files"`
}

// Load reads the staged bundle at dir. When a bundle.yaml manifest is
// present its declared order and classes are authoritative; otherwise every
// file is discovered in sorted order and classified by path convention so
// the walk stays deterministic either way.
func Load(dir string) (*Bundle, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("bundle directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle path %s is not a directory", dir)
	}

	manifestPath := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		return loadFromManifest(dir, manifestPath)
	}
	return loadFromWalk(dir)
}

func loadFromManifest(dir, manifestPath string) (*Bundle, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse bundle manifest: %w", err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("bundle manifest %s declares no files", manifestPath)
	}

	seen := make(map[string]bool)
	for _, entry := range m.Files {
		if entry.Path == "" {
			return nil, fmt.Errorf("bundle manifest entry with empty path")
		}
		// Paths are joined onto both the staged dir and the target root, so
		// anything absolute or escaping via ".." must be rejected here.
		if !filepath.IsLocal(filepath.FromSlash(entry.Path)) {
			return nil, fmt.Errorf("bundle manifest entry %s is not a local relative path", entry.Path)
		}
		if seen[entry.Path] {
			return nil, fmt.Errorf("bundle manifest declares %s twice", entry.Path)
		}
		seen[entry.Path] = true

		if !validClasses[entry.Class] {
			return nil, fmt.Errorf("bundle manifest entry %s has unknown class %q", entry.Path, entry.Class)
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Path)); err != nil {
			return nil, fmt.Errorf("bundle manifest declares %s but the file is missing: %w", entry.Path, err)
		}
	}

	return &Bundle{Dir: dir, Entries: m.Files}, nil
}

func loadFromWalk(dir string) (*Bundle, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover bundle files: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("bundle directory %s contains no files", dir)
	}

	sort.Strings(paths)

	entries := make([]Entry, 0, len(paths))
	for _, rel := range paths {
		entries = append(entries, ClassifyPath(rel))
	}
	return &Bundle{Dir: dir, Entries: entries}, nil
}

// ClassifyPath assigns a class to an undeclared bundle file by convention.
func ClassifyPath(rel string) Entry {
	entry := Entry{Path: rel, Class: ClassRoot}
	base := filepath.Base(rel)

	switch {
	case base == ".gitignore":
		entry.Class = ClassIgnore
	case strings.HasPrefix(rel, "hooks/"):
		entry.Class = ClassHook
	case strings.HasPrefix(rel, ".github/workflows/"):
		entry.Class = ClassWorkflow
	case strings.HasPrefix(rel, "docs/") || strings.HasSuffix(base, ".md"):
		entry.Class = ClassDoc
	case base == "pubspec.yaml" || base == "package.json":
		entry.Class = ClassManifestDependency
	case base == "lefthook.yml":
		entry.Sensitive = true
	}
	return entry
}

// Abs returns the absolute staged path of an entry.
func (b *Bundle) Abs(entry Entry) string {
	return filepath.Join(b.Dir, filepath.FromSlash(entry.Path))
}
