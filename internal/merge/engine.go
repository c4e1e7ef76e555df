package merge

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/stencil-dev/stencil/internal/bundle"
	"github.com/stencil-dev/stencil/internal/patch"
	"github.com/stencil-dev/stencil/internal/project"
)

// Prompter answers a yes/no question. Production wires it to a terminal
// prompt; tests supply a deterministic stub. The engine never reads stdin
// itself.
type Prompter func(question string) (bool, error)

// Options controls a reconcile run.
type Options struct {
	// DryRun computes and logs decisions without writing anything.
	DryRun bool
	// AssumeYes answers every overwrite prompt with yes.
	AssumeYes bool
	// Prompter is consulted for the sensitive root file when it already
	// exists. Without a prompter the existing file is kept.
	Prompter Prompter
}

// Engine applies a staged bundle to a target project, file by file, in the
// bundle's declared order. Re-running against its own output produces zero
// observable diff: every strategy is computed from current on-disk state.
type Engine struct {
	eco    *project.Ecosystem
	logger *slog.Logger
	opts   Options
}

// NewEngine creates a merge engine for one ecosystem.
func NewEngine(eco *project.Ecosystem, logger *slog.Logger, opts Options) *Engine {
	return &Engine{eco: eco, logger: logger, opts: opts}
}

// Reconcile walks the bundle entries in declared order and applies the
// per-class strategy against targetRoot. Per-file errors are collected in
// the report; the run continues past them.
func (e *Engine) Reconcile(b *bundle.Bundle, targetRoot string) *Report {
	report := &Report{}

	for _, entry := range b.Entries {
		result := e.reconcileEntry(b, entry, targetRoot)
		if result.Err != nil {
			e.logger.Warn("file failed", "path", result.Path, "error", result.Err)
		} else {
			e.logger.Info("file reconciled", "path", result.Path, "decision", result.Decision)
		}
		report.add(result)
	}

	return report
}

func (e *Engine) reconcileEntry(b *bundle.Bundle, entry bundle.Entry, targetRoot string) FileResult {
	src := b.Abs(entry)
	dest := filepath.Join(targetRoot, filepath.FromSlash(entry.Path))

	switch entry.Class {
	case bundle.ClassRoot:
		return e.reconcileRoot(entry, src, dest)
	case bundle.ClassIgnore:
		return e.reconcileIgnore(entry, src, dest)
	case bundle.ClassManifestDependency:
		return e.reconcileManifestDependency(entry, src, dest)
	case bundle.ClassHook:
		return e.alwaysOverwrite(entry, src, dest, 0755)
	case bundle.ClassWorkflow, bundle.ClassDoc:
		return e.alwaysOverwrite(entry, src, dest, 0)
	default:
		return FileResult{
			Path:     entry.Path,
			Decision: DecisionFailed,
			Err:      fmt.Errorf("unknown file class %q", entry.Class),
		}
	}
}

// reconcileRoot copies generic config only when absent. The single
// sensitive file additionally prompts before overwriting existing content;
// a declined prompt is a recorded skip.
func (e *Engine) reconcileRoot(entry bundle.Entry, src, dest string) FileResult {
	sensitive := entry.Sensitive || entry.Path == e.eco.SensitiveFile

	if !fileExists(dest) {
		if e.opts.DryRun {
			return FileResult{Path: entry.Path, Decision: DecisionCopied, Note: "dry-run"}
		}
		if err := copyFile(src, dest, 0); err != nil {
			return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
		}
		return FileResult{Path: entry.Path, Decision: DecisionCopied}
	}

	if !sensitive {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "already exists"}
	}

	// An existing copy identical to the bundle file needs no prompt; asking
	// again on every re-run would make accepted state nag forever.
	same, err := filesEqual(src, dest)
	if err != nil {
		return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
	}
	if same {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "already up to date"}
	}

	if e.opts.DryRun {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "dry-run: would prompt before overwrite"}
	}

	overwrite := e.opts.AssumeYes
	if !overwrite && e.opts.Prompter != nil {
		answer, err := e.opts.Prompter(fmt.Sprintf("Overwrite existing %s?", entry.Path))
		if err != nil {
			return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: fmt.Errorf("prompt failed: %w", err)}
		}
		overwrite = answer
	}

	if !overwrite {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "kept existing file"}
	}
	if err := copyFile(src, dest, 0); err != nil {
		return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
	}
	return FileResult{Path: entry.Path, Decision: DecisionOverwritten}
}

// reconcileIgnore merges bundle ignore patterns into an existing target
// file, or copies the bundle file verbatim when the target is absent.
func (e *Engine) reconcileIgnore(entry bundle.Entry, src, dest string) FileResult {
	if !fileExists(dest) {
		if e.opts.DryRun {
			return FileResult{Path: entry.Path, Decision: DecisionCopied, Note: "dry-run"}
		}
		if err := copyFile(src, dest, 0); err != nil {
			return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
		}
		return FileResult{Path: entry.Path, Decision: DecisionCopied}
	}

	if e.opts.DryRun {
		return FileResult{Path: entry.Path, Decision: DecisionMerged, Note: "dry-run: would merge missing patterns"}
	}

	added, err := patch.MergeIgnoreFile(dest, src)
	if err != nil {
		return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
	}
	if added == 0 {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "all patterns already present"}
	}
	return FileResult{Path: entry.Path, Decision: DecisionMerged, Note: fmt.Sprintf("%d patterns appended", added)}
}

// reconcileManifestDependency patches the project-owned manifest with the
// dependency declared by the bundle snippet. The manifest must pre-exist:
// copying the snippet over it would destroy the project's own content, so a
// missing target is a per-file failure, not a copy.
func (e *Engine) reconcileManifestDependency(entry bundle.Entry, src, dest string) FileResult {
	if e.eco.Dependency == nil {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "dependency delivered by package manager"}
	}

	key, valueLine, err := parseDependencySnippet(src)
	if err != nil {
		return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
	}

	if e.opts.DryRun {
		return FileResult{Path: entry.Path, Decision: DecisionMerged, Note: fmt.Sprintf("dry-run: would inject %s", key)}
	}

	result, err := patch.InjectDependency(dest, e.eco.Dependency.Section, key, valueLine, e.eco.Dependency.Anchor)
	if err != nil {
		return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
	}
	if result == patch.AlreadyPresent {
		return FileResult{Path: entry.Path, Decision: DecisionSkipped, Note: "dependency already declared"}
	}
	return FileResult{Path: entry.Path, Decision: DecisionMerged, Note: fmt.Sprintf("injected %s", key)}
}

// alwaysOverwrite copies the bundle file unconditionally. Hook scripts get
// the executable bit via mode 0755; mode 0 preserves the source mode.
func (e *Engine) alwaysOverwrite(entry bundle.Entry, src, dest string, mode os.FileMode) FileResult {
	if e.opts.DryRun {
		note := "dry-run"
		if fileExists(dest) {
			note = "dry-run: would overwrite"
		}
		return FileResult{Path: entry.Path, Decision: DecisionCopied, Note: note}
	}

	if err := copyFile(src, dest, mode); err != nil {
		return FileResult{Path: entry.Path, Decision: DecisionFailed, Err: err}
	}
	return FileResult{Path: entry.Path, Decision: DecisionCopied}
}

// parseDependencySnippet extracts the dependency key and value line from a
// bundle manifest snippet: a section header followed by one indented
// "key: value" line.
func parseDependencySnippet(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read dependency snippet: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			continue // section header
		}
		key, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found {
			continue
		}
		return strings.TrimSpace(key), strings.TrimSpace(value), nil
	}
	return "", "", fmt.Errorf("dependency snippet %s declares no key line", path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func filesEqual(a, b string) (bool, error) {
	dataA, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(dataA, dataB), nil
}

// copyFile copies src to dst atomically: content goes to a temp file in the
// destination directory which is then renamed over dst in one step. A mode
// of 0 keeps the source file's permissions.
func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".stencil-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if mode == 0 {
		srcInfo, err := srcFile.Stat()
		if err != nil {
			_ = tmpFile.Close()
			return err
		}
		mode = srcInfo.Mode()
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
