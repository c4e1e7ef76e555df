package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stencil-dev/stencil/internal/bundle"
	"github.com/stencil-dev/stencil/internal/config"
	"github.com/stencil-dev/stencil/internal/git"
	"github.com/stencil-dev/stencil/internal/merge"
	"github.com/stencil-dev/stencil/internal/project"
	"github.com/stencil-dev/stencil/internal/toolchain"
)

// TemplateRemote is the git remote name the optional end-of-run setup adds,
// pointing the target project at the template repository.
const TemplateRemote = "template"

// Remotes is the slice of git operations the optional remote setup needs.
type Remotes interface {
	IsRepository(ctx context.Context, dir string) bool
	HasRemote(ctx context.Context, dir, name string) bool
	AddRemote(ctx context.Context, dir, name, url string) error
}

// Selector chooses one option by index, e.g. an interactive ecosystem pick
// when detection finds no markers. A nil selector means detection failures
// are fatal.
type Selector func(title string, options []string) (int, error)

// Deps are the installer's external collaborators, injected so tests can
// supply deterministic stubs.
type Deps struct {
	Fetcher  git.Fetcher
	Remotes  Remotes
	Prompter merge.Prompter
	Selector Selector
	// Toolchain builds the downstream command runner for an ecosystem.
	// Nil means the real shell toolchain.
	Toolchain func(eco *project.Ecosystem) toolchain.Toolchain
}

// Result is the outcome of a completed (possibly partially failed) run.
type Result struct {
	Ecosystem string
	Commit    string
	Report    *merge.Report
	// Warnings collects downstream command failures and other non-fatal
	// issues, surfaced at end of run.
	Warnings []string
}

// Installer sequences a full bootstrap run: fetch, detect, reconcile,
// downstream installs, optional remote setup, cleanup. It is a fixed
// sequence, not a state machine; the only branch points are the prompts.
type Installer struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	dryRun bool
}

// New creates an installer.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, dryRun bool) *Installer {
	if deps.Toolchain == nil {
		deps.Toolchain = func(eco *project.Ecosystem) toolchain.Toolchain {
			return toolchain.NewShellToolchain(eco)
		}
	}
	return &Installer{cfg: cfg, deps: deps, logger: logger, dryRun: dryRun}
}

// Run executes the complete install against the project at targetDir.
// Fetch and detection failures are fatal and happen before any target
// mutation; per-file reconcile errors and downstream command failures are
// collected in the result instead. The staging checkout is removed on all
// exit paths unless a fixed staging_dir is configured as a cache.
func (i *Installer) Run(ctx context.Context, targetDir string) (*Result, error) {
	i.logger.Info("starting install",
		"repo", i.cfg.Repo.URL,
		"ref", i.cfg.Repo.Ref,
		"dry_run", i.dryRun)

	stagingDir := i.cfg.Paths.StagingDir
	if stagingDir == "" {
		tmpDir, err := os.MkdirTemp("", "stencil-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		defer func() {
			_ = os.RemoveAll(tmpDir)
		}()
		stagingDir = tmpDir
	}

	checkoutDir := filepath.Join(stagingDir, "repo")
	i.logger.Info("fetching template repository", "dest", checkoutDir)
	commit, err := i.deps.Fetcher.Fetch(ctx, i.cfg.Repo.URL, i.cfg.Repo.Ref, checkoutDir)
	if err != nil {
		return nil, err
	}
	i.logger.Info("template repository checked out", "commit", commit)

	root, eco, err := i.resolveEcosystem(targetDir)
	if err != nil {
		return nil, err
	}
	i.logger.Info("target project resolved", "root", root, "ecosystem", eco.Name)

	bundleDir := filepath.Join(checkoutDir, i.cfg.Repo.BundleRoot, eco.BundleDir)
	b, err := bundle.Load(bundleDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s bundle: %w", eco.Name, err)
	}
	i.logger.Info("bundle loaded", "dir", bundleDir, "files", len(b.Entries))

	engine := merge.NewEngine(eco, i.logger, merge.Options{
		DryRun:    i.dryRun,
		AssumeYes: i.cfg.Install.AssumeYes,
		Prompter:  i.deps.Prompter,
	})
	report := engine.Reconcile(b, root)

	result := &Result{Ecosystem: eco.Name, Commit: commit, Report: report}

	if i.dryRun {
		i.logger.Info("dry-run complete, no changes applied")
		return result, nil
	}

	i.runDownstream(ctx, eco, root, result)
	i.setupRemote(ctx, root, result)

	applied, skipped, failed := report.Counts()
	i.logger.Info("install finished",
		"applied", applied,
		"skipped", skipped,
		"failed", failed,
		"warnings", len(result.Warnings))
	return result, nil
}

// resolveEcosystem validates a configured ecosystem against the detected
// one, or detects from markers, falling back to interactive selection when
// a selector is available.
func (i *Installer) resolveEcosystem(targetDir string) (string, *project.Ecosystem, error) {
	root, detected, detectErr := project.Detect(targetDir)

	if i.cfg.Ecosystem != "" {
		requested, err := project.Lookup(i.cfg.Ecosystem)
		if err != nil {
			return "", nil, err
		}
		if detectErr != nil {
			return "", nil, detectErr
		}
		if detected.Name != requested.Name {
			return "", nil, fmt.Errorf("configured ecosystem %q but %s detected a %s project",
				requested.Name, root, detected.Name)
		}
		return root, requested, nil
	}

	if detectErr == nil {
		return root, detected, nil
	}

	var notProject *project.NotAProjectError
	if errors.As(detectErr, &notProject) && i.deps.Selector != nil {
		names := project.Names()
		idx, err := i.deps.Selector("No project markers found. Which ecosystem is this?", names)
		if err != nil {
			return "", nil, detectErr
		}
		eco, err := project.Lookup(names[idx])
		if err != nil {
			return "", nil, err
		}
		abs, err := filepath.Abs(targetDir)
		if err != nil {
			return "", nil, err
		}
		return abs, eco, nil
	}

	return "", nil, detectErr
}

// runDownstream invokes the package-manager install and hook registration.
// Failures are warnings; they never abort the remaining steps.
func (i *Installer) runDownstream(ctx context.Context, eco *project.Ecosystem, root string, result *Result) {
	tc := i.deps.Toolchain(eco)

	if !i.cfg.Install.SkipPackageInstall {
		i.logger.Info("installing dependencies", "ecosystem", eco.Name)
		if err := tc.InstallDependencies(ctx, root); err != nil {
			i.logger.Warn("dependency install failed", "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("dependency install: %v", err))
		}
	}

	if !i.cfg.Install.SkipHookInstall {
		i.logger.Info("registering git hooks", "ecosystem", eco.Name)
		if err := tc.RegisterHooks(ctx, root); err != nil {
			i.logger.Warn("hook registration failed", "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("hook registration: %v", err))
		}
	}
}

// setupRemote is the optional interactive tail: offer to link the target
// project to the template repository via a named remote.
func (i *Installer) setupRemote(ctx context.Context, root string, result *Result) {
	if i.cfg.Install.SkipRemoteSetup || i.deps.Remotes == nil || i.deps.Prompter == nil {
		return
	}
	if !i.deps.Remotes.IsRepository(ctx, root) {
		return
	}
	if i.deps.Remotes.HasRemote(ctx, root, TemplateRemote) {
		return
	}

	question := fmt.Sprintf("Add a %q git remote pointing at the template repository?", TemplateRemote)
	yes, err := i.deps.Prompter(question)
	if err != nil || !yes {
		return
	}

	if err := i.deps.Remotes.AddRemote(ctx, root, TemplateRemote, i.cfg.Repo.URL); err != nil {
		i.logger.Warn("remote setup failed", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("remote setup: %v", err))
		return
	}
	i.logger.Info("template remote added", "name", TemplateRemote)
}
