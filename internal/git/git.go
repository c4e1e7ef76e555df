package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Fetcher retrieves a template bundle repository into a local staging
// directory. The caller consumes the result as an opaque directory of files.
type Fetcher interface {
	// Fetch clones or updates the repository at url, checks out ref into
	// destDir, and returns the resolved commit hash.
	Fetch(ctx context.Context, url, ref, destDir string) (string, error)
}

// FetchError indicates the bundle repository could not be retrieved:
// network failure, bad credentials, or a missing ref. It is always fatal
// and occurs before any target project mutation.
type FetchError struct {
	URL string
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s@%s: %v", e.URL, e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ShellClient implements Fetcher by shelling out to the git command.
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string
}

// NewShellClient creates a git client with optional SSH key or HTTPS token
// authentication.
func NewShellClient(sshKeyFile, httpsTokenFile string) *ShellClient {
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
	}
}

// Fetch clones the repository into destDir (or fetches when a checkout is
// already staged there) and checks out ref, trying the remote branch when a
// direct checkout fails so tags, hashes, and branch names all resolve.
func (c *ShellClient) Fetch(ctx context.Context, url, ref, destDir string) (string, error) {
	exists := false
	if _, err := os.Stat(filepath.Join(destDir, ".git")); err == nil {
		exists = true
	}

	var cmd *exec.Cmd
	if !exists {
		if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
			return "", &FetchError{URL: url, Ref: ref, Err: err}
		}

		cmd = exec.CommandContext(ctx, "git", "clone", "--no-checkout", url, destDir)
		if err := c.configureAuth(cmd, url); err != nil {
			return "", &FetchError{URL: url, Ref: ref, Err: err}
		}
		if err := runCommand(cmd); err != nil {
			return "", &FetchError{URL: url, Ref: ref, Err: fmt.Errorf("git clone: %w", err)}
		}
	} else {
		cmd = exec.CommandContext(ctx, "git", "-C", destDir, "fetch", "origin")
		if err := c.configureAuth(cmd, url); err != nil {
			return "", &FetchError{URL: url, Ref: ref, Err: err}
		}
		if err := runCommand(cmd); err != nil {
			return "", &FetchError{URL: url, Ref: ref, Err: fmt.Errorf("git fetch: %w", err)}
		}
	}

	cmd = exec.CommandContext(ctx, "git", "-C", destDir, "checkout", "-f", ref)
	if err := runCommand(cmd); err != nil {
		cmd = exec.CommandContext(ctx, "git", "-C", destDir, "checkout", "-f", "origin/"+ref)
		if err := runCommand(cmd); err != nil {
			return "", &FetchError{URL: url, Ref: ref, Err: fmt.Errorf("checkout failed for ref %q: %w", ref, err)}
		}
	}

	// After a fetch the local branch may be stale; reset picks up new
	// commits. No-op for fresh clones, silently ignored for tags/hashes.
	if exists {
		resetCmd := exec.CommandContext(ctx, "git", "-C", destDir, "reset", "--hard", "origin/"+ref)
		_ = runCommand(resetCmd)
	}

	cmd = exec.CommandContext(ctx, "git", "-C", destDir, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", &FetchError{URL: url, Ref: ref, Err: fmt.Errorf("git rev-parse: %w", err)}
	}
	return strings.TrimSpace(string(output)), nil
}

// HasRemote reports whether the repository at dir has a remote by that name.
func (c *ShellClient) HasRemote(ctx context.Context, dir, name string) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "remote", "get-url", name)
	return cmd.Run() == nil
}

// AddRemote registers a named remote on the repository at dir. Used by the
// optional end-of-run setup to link the target project to the template repo.
func (c *ShellClient) AddRemote(ctx context.Context, dir, name, url string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "remote", "add", name, url)
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("git remote add: %w", err)
	}
	return nil
}

// IsRepository reports whether dir is inside a git work tree.
func (c *ShellClient) IsRepository(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--is-inside-work-tree")
	return cmd.Run() == nil
}

// configureAuth sets up authentication for git operations.
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The key path is shell-quoted to prevent injection via crafted
		// filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		// The token travels via environment into a credential helper
		// rather than being embedded in a shell expression.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "STENCIL_GIT_TOKEN="+strings.TrimSpace(string(token)))
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$STENCIL_GIT_TOKEN"; }; f`,
		)
		return nil
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "fetch").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with output on failure.
func runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
