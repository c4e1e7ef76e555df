package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/stencil-dev/stencil/internal/config"
	"github.com/stencil-dev/stencil/internal/git"
	"github.com/stencil-dev/stencil/internal/installer"
	"github.com/stencil-dev/stencil/internal/patch"
	"github.com/stencil-dev/stencil/internal/project"
	"github.com/stencil-dev/stencil/internal/tui"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Install command flags
	repoURL     string
	repoRef     string
	ecosystem   string
	assumeYes   bool
	dryRun      bool
	skipInstall bool
	skipHooks   bool
	skipRemote  bool

	// Build-args command flags
	envFile   string
	argFormat string
)

// errPartialFailure maps to exit code 2: the run finished but some
// files could not be applied.
var errPartialFailure = errors.New("some files could not be applied")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartialFailure) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stencil",
	Short: "Bootstrap projects from a shared template repository",
	Long: `stencil fetches language-specific template bundles from a Git repository
and merges them into the current project: config files, git hooks, CI
workflows and tooling dependencies.

Runs are idempotent; files you already have are merged or left alone,
never blindly replaced.`,
	SilenceUsage: true,
}

var installCmd = &cobra.Command{
	Use:   "install [dir]",
	Short: "Fetch the template bundle and merge it into a project",
	Long: `Install detects the project type (or uses --ecosystem), fetches the
matching bundle from the template repository and reconciles each file
into the project directory.

Afterwards it runs the ecosystem's package-manager install and registers
git hooks, and optionally adds the template repository as a git remote.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

var buildArgsCmd = &cobra.Command{
	Use:   "build-args",
	Short: "Print --dart-define flags derived from an env file",
	Long: `Build-args reads a dotenv file and prints one --dart-define=KEY=VALUE
flag per variable, ready to splice into a flutter build invocation:

  flutter build apk $(stencil build-args)`,
	RunE: runBuildArgs,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stencil %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/stencil/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Install command flags
	installCmd.Flags().StringVar(&repoURL, "repo", "", "template repository URL (overrides config)")
	installCmd.Flags().StringVar(&repoRef, "ref", "", "branch or tag to fetch (overrides config)")
	installCmd.Flags().StringVar(&ecosystem, "ecosystem", "", fmt.Sprintf("project type (%s); detected from markers when unset", strings.Join(project.Names(), ", ")))
	installCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to all prompts")
	installCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	installCmd.Flags().BoolVar(&skipInstall, "skip-install", false, "skip the package-manager install step")
	installCmd.Flags().BoolVar(&skipHooks, "skip-hooks", false, "skip git hook registration")
	installCmd.Flags().BoolVar(&skipRemote, "skip-remote", false, "skip the template remote setup")

	// Build-args command flags
	buildArgsCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to read")
	buildArgsCmd.Flags().StringVar(&argFormat, "format", "dart-define", "output format (dart-define, env)")

	// Add commands
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(buildArgsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	// A project-local .env may carry STENCIL_* overrides.
	_ = godotenv.Load()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	targetDir := "."
	if len(args) == 1 {
		targetDir = args[0]
	}

	gitClient := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)

	deps := installer.Deps{
		Fetcher: gitClient,
		Remotes: gitClient,
	}
	if tui.IsInteractive() {
		deps.Prompter = tui.Confirm
		deps.Selector = tui.Select
	}

	inst := installer.New(cfg, deps, logger, dryRun)

	result, err := inst.Run(ctx, targetDir)
	if err != nil {
		logger.Error("install failed", "error", err)
		return err
	}

	printSummary(result)

	if result.Report.HasFailures() {
		return errPartialFailure
	}
	return nil
}

func runBuildArgs(cmd *cobra.Command, args []string) error {
	vars, err := patch.ParseEnvFile(envFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	switch argFormat {
	case "dart-define":
		for _, define := range patch.DartDefines(vars) {
			fmt.Println(define)
		}
	case "env":
		for _, v := range vars {
			fmt.Printf("%s=%s\n", v.Key, v.Value)
		}
	default:
		return fmt.Errorf("unknown format %q (expected dart-define or env)", argFormat)
	}
	return nil
}

// applyFlagOverrides layers install command flags over the loaded config.
func applyFlagOverrides(cfg *config.Config) {
	if repoURL != "" {
		cfg.Repo.URL = repoURL
	}
	if repoRef != "" {
		cfg.Repo.Ref = repoRef
	}
	if ecosystem != "" {
		cfg.Ecosystem = ecosystem
	}
	if assumeYes {
		cfg.Install.AssumeYes = true
	}
	if skipInstall {
		cfg.Install.SkipPackageInstall = true
	}
	if skipHooks {
		cfg.Install.SkipHookInstall = true
	}
	if skipRemote {
		cfg.Install.SkipRemoteSetup = true
	}
}

func printSummary(result *installer.Result) {
	applied, skipped, failed := result.Report.Counts()

	fmt.Println()
	fmt.Printf("%s ecosystem, template commit %s\n", result.Ecosystem, result.Commit)
	fmt.Printf("  %s  %s  %s\n",
		tui.SuccessStyle.Render(fmt.Sprintf("%d applied", applied)),
		tui.HelpDesc.Render(fmt.Sprintf("%d skipped", skipped)),
		tui.FailStyle.Render(fmt.Sprintf("%d failed", failed)))

	for _, fr := range result.Report.Failures() {
		fmt.Printf("  %s %s: %v\n", tui.FailStyle.Render("✗"), fr.Path, fr.Err)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("  %s %s\n", tui.WarnStyle.Render("!"), warning)
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	explicit := configPath != ""
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/stencil/config.yaml", home)
	}

	if !explicit {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			logger.Debug("no config file, using defaults and environment", "path", configPath)
			return config.Default(), nil
		}
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"repo", cfg.Repo.URL,
		"ref", cfg.Repo.Ref,
		"ecosystem", cfg.Ecosystem)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
