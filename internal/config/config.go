package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stencil-dev/stencil/internal/project"
)

// Config represents the complete stencil configuration.
type Config struct {
	Repo      RepoConfig    `yaml:"repo"`
	Ecosystem string        `yaml:"ecosystem"`
	Paths     PathsConfig   `yaml:"paths"`
	Auth      AuthConfig    `yaml:"auth"`
	Install   InstallConfig `yaml:"install"`
}

// RepoConfig configures the template bundle source repository.
type RepoConfig struct {
	URL        string `yaml:"url"`
	Ref        string `yaml:"ref"`
	BundleRoot string `yaml:"bundle_root"`
}

// PathsConfig configures local filesystem paths.
type PathsConfig struct {
	// StagingDir holds the fetched checkout. Empty means a fresh temp
	// directory per run, removed on exit.
	StagingDir string `yaml:"staging_dir"`
}

// AuthConfig configures Git authentication.
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// InstallConfig configures run behavior.
type InstallConfig struct {
	AssumeYes          bool `yaml:"assume_yes"`
	SkipPackageInstall bool `yaml:"skip_package_install"`
	SkipHookInstall    bool `yaml:"skip_hook_install"`
	SkipRemoteSetup    bool `yaml:"skip_remote_setup"`
}

// Default returns the configuration used when no config file exists.
// Environment overrides still apply.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file, then layers STENCIL_*
// environment overrides and defaults on top. Validation is the caller's
// responsibility: command-line flags may still fill required fields after
// loading.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields.
func (c *Config) expandEnv() {
	c.Repo.URL = os.ExpandEnv(c.Repo.URL)
	c.Repo.Ref = os.ExpandEnv(c.Repo.Ref)
	c.Repo.BundleRoot = os.ExpandEnv(c.Repo.BundleRoot)
	c.Paths.StagingDir = os.ExpandEnv(c.Paths.StagingDir)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
}

// applyEnv layers STENCIL_* environment variables over file values. A .env
// file in the working directory is honored because main loads it at startup.
func (c *Config) applyEnv() {
	if v := os.Getenv("STENCIL_REPO_URL"); v != "" {
		c.Repo.URL = v
	}
	if v := os.Getenv("STENCIL_REPO_REF"); v != "" {
		c.Repo.Ref = v
	}
	if v := os.Getenv("STENCIL_ECOSYSTEM"); v != "" {
		c.Ecosystem = v
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Ref == "" {
		c.Repo.Ref = "main"
	}
	if c.Repo.BundleRoot == "" {
		c.Repo.BundleRoot = "bundles"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Repo.URL == "" {
		return fmt.Errorf("repo.url is required (a git URL like https://github.com/org/templates.git)")
	}
	if c.Repo.Ref == "" {
		return fmt.Errorf("repo.ref is required")
	}

	if c.Ecosystem != "" {
		if _, err := project.Lookup(c.Ecosystem); err != nil {
			return err
		}
	}

	if c.Paths.StagingDir != "" && !filepath.IsAbs(c.Paths.StagingDir) {
		return fmt.Errorf("paths.staging_dir must be an absolute path: %s", c.Paths.StagingDir)
	}

	// Only one auth method may be configured, and it must match the URL scheme.
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("auth.ssh_key_file is set but repo.url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Auth.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return fmt.Errorf("auth.https_token_file is set but repo.url does not use HTTPS scheme")
	}

	return nil
}

// IsHTTPS returns true if the repo URL uses HTTPS.
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Repo.URL, "https://")
}

// IsSSH returns true if the repo URL uses SSH.
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Repo.URL, "git@") || strings.HasPrefix(c.Repo.URL, "ssh://")
}

// AuthMethod returns a description of the configured auth method.
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}
