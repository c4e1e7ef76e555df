package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/stencil-dev/stencil/internal/project"
)

// Toolchain runs the downstream commands that finish an install: the
// ecosystem's package-manager install and the hook-runtime registration.
// Failures here are reported as warnings, never aborting the run.
type Toolchain interface {
	// InstallDependencies runs the package-manager install in the project root.
	InstallDependencies(ctx context.Context, root string) error
	// RegisterHooks installs the hook runtime's git hooks in the project root.
	RegisterHooks(ctx context.Context, root string) error
}

// CommandError carries the failed downstream command and its exit code so
// the end-of-run warning list can print something actionable.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %s", e.Command, e.ExitCode, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ShellToolchain implements Toolchain by running the ecosystem's commands.
type ShellToolchain struct {
	eco *project.Ecosystem
}

// NewShellToolchain creates a toolchain runner for the given ecosystem.
func NewShellToolchain(eco *project.Ecosystem) *ShellToolchain {
	return &ShellToolchain{eco: eco}
}

// InstallDependencies runs the package-manager install (e.g. "flutter pub
// get", "npm install"). The command runs to completion with no timeout.
func (t *ShellToolchain) InstallDependencies(ctx context.Context, root string) error {
	return t.run(ctx, root, t.eco.InstallCmd)
}

// RegisterHooks runs the hook-runtime registration (e.g. "lefthook install").
func (t *ShellToolchain) RegisterHooks(ctx context.Context, root string) error {
	return t.run(ctx, root, t.eco.HooksCmd)
}

func (t *ShellToolchain) run(ctx context.Context, root string, argv []string) error {
	if len(argv) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = root
	output, err := cmd.CombinedOutput()
	if err != nil {
		cmdErr := &CommandError{
			Command: strings.Join(argv, " "),
			Output:  strings.TrimSpace(string(output)),
			Err:     err,
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		return cmdErr
	}
	return nil
}
