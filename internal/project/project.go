package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DependencySpec describes the single dev dependency an ecosystem's bundle
// injects into the project manifest. Ecosystems whose package manager owns
// the manifest (e.g. npm) carry no spec and rely on the install step instead.
type DependencySpec struct {
	Section string // top-level section header, e.g. "dev_dependencies:"
	Anchor  string // section that conventionally follows, e.g. "flutter:"
}

// Ecosystem describes one supported project type: how to recognize it, which
// bundle serves it, and which downstream commands finish the install.
type Ecosystem struct {
	Name          string
	Markers       []string // all must exist in the project root
	BundleDir     string   // directory name within the bundle root
	ManifestFile  string   // project-owned dependency manifest
	SensitiveFile string   // root bundle file that prompts before overwrite
	Dependency    *DependencySpec
	InstallCmd    []string // package-manager install invocation
	HooksCmd      []string // hook-runtime registration invocation
}

// Ecosystems is the closed registry of supported project types, in detection
// priority order.
var Ecosystems = []Ecosystem{
	{
		Name:          "flutter",
		Markers:       []string{"pubspec.yaml"},
		BundleDir:     "flutter",
		ManifestFile:  "pubspec.yaml",
		SensitiveFile: "lefthook.yml",
		Dependency: &DependencySpec{
			Section: "dev_dependencies:",
			Anchor:  "flutter:",
		},
		InstallCmd: []string{"flutter", "pub", "get"},
		HooksCmd:   []string{"lefthook", "install"},
	},
	{
		Name:          "react-native",
		Markers:       []string{"package.json", "metro.config.js"},
		BundleDir:     "react_native",
		ManifestFile:  "package.json",
		SensitiveFile: "lefthook.yml",
		InstallCmd:    []string{"npm", "install"},
		HooksCmd:      []string{"npx", "lefthook", "install"},
	},
}

// NotAProjectError indicates no recognized ecosystem marker was found.
type NotAProjectError struct {
	Dir string
}

func (e *NotAProjectError) Error() string {
	return fmt.Sprintf("no recognized project found in %s (expected one of: %s)", e.Dir, markerSummary())
}

// markerSummary lists each ecosystem's markers for remediation output.
func markerSummary() string {
	parts := make([]string, 0, len(Ecosystems))
	for _, eco := range Ecosystems {
		parts = append(parts, fmt.Sprintf("%s for %s", strings.Join(eco.Markers, "+"), eco.Name))
	}
	return strings.Join(parts, ", ")
}

// Detect identifies the target project in dir by marker-file presence.
// Ecosystems are checked in registry order; the first whose full marker set
// is satisfied wins. No side effects.
func Detect(dir string) (string, *Ecosystem, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	for i := range Ecosystems {
		eco := &Ecosystems[i]
		if hasMarkers(root, eco.Markers) {
			return root, eco, nil
		}
	}
	return "", nil, &NotAProjectError{Dir: root}
}

// Lookup resolves an ecosystem by name. Unknown names are an explicit error
// rather than a fallback to the raw input as a bundle directory.
func Lookup(name string) (*Ecosystem, error) {
	for i := range Ecosystems {
		if Ecosystems[i].Name == name {
			return &Ecosystems[i], nil
		}
	}
	return nil, fmt.Errorf("unknown ecosystem %q (supported: %s)", name, strings.Join(Names(), ", "))
}

// Names returns the registered ecosystem names in priority order.
func Names() []string {
	names := make([]string, 0, len(Ecosystems))
	for _, eco := range Ecosystems {
		names = append(names, eco.Name)
	}
	return names
}

func hasMarkers(root string, markers []string) bool {
	for _, marker := range markers {
		info, err := os.Stat(filepath.Join(root, marker))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}
