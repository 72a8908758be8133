// qna-chatbot - chat with OpenRouter models from the terminal or a browser.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nav0225/qna-chatbot/internal/app"
	"github.com/nav0225/qna-chatbot/internal/cli"
	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/config"
	"github.com/nav0225/qna-chatbot/internal/logging"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/persona"
	"github.com/nav0225/qna-chatbot/internal/ui/styles"
	"github.com/nav0225/qna-chatbot/internal/web"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}

	args, err := cli.Parse(argv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		cli.PrintUsage(stderr)
		return 2
	}

	switch args.Command {
	case cli.CmdHelp:
		cli.PrintUsage(stdout)
		return 0
	case cli.CmdVersion:
		cli.PrintVersion(stdout)
		return 0
	case cli.CmdModels:
		return exitOn(stderr, cli.RunModels(stdout))
	}

	path, err := configPath(args)
	if err != nil {
		return exitOn(stderr, err)
	}

	// config set writes the file back, so it must not pick up values that
	// only came from the environment (the API key in particular).
	if args.Command == cli.CmdConfig {
		cfg, err := loadFileOnly(path)
		if err != nil {
			return exitOn(stderr, err)
		}
		if args.Subcommand != "set" {
			cfg.ApplyEnvOverrides()
		}
		return exitOn(stderr, cli.RunConfig(stdout, cfg, path, args))
	}

	cfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		return exitOn(stderr, err)
	}
	if err := applyFlags(cfg, args); err != nil {
		return exitOn(stderr, err)
	}

	logger, closer, err := logging.Setup(logging.Options{Path: cfg.LogPath(), Verbose: cfg.Log.Verbose})
	if err != nil {
		return exitOn(stderr, err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	switch args.Command {
	case cli.CmdPersonas:
		return exitOn(stderr, cli.RunPersonas(stdout, catalogFor(cfg, logger)))
	case cli.CmdReplay:
		theme := styles.NewTheme(cfg.UI.Theme, stdout)
		return exitOn(stderr, cli.RunReplay(stdout, args.File, theme))
	case cli.CmdExport:
		theme := cfg.Web.Theme
		if args.Theme != "" {
			theme = args.Theme
		}
		return exitOn(stderr, cli.RunExport(stdout, args.File, args.Format, args.OutputDir, theme))
	case cli.CmdSearch:
		return exitOn(stderr, cli.RunSearch(ctx, stdout, cfg, args.Query, args.Limit))
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if errors.Is(err, cloud.ErrMissingCredential) {
			fmt.Fprintln(stderr, "Error: OPENROUTER_API_KEY is not set. Add it to your environment or a .env file.")
			return 1
		}
		return exitOn(stderr, err)
	}
	defer a.Close()

	switch args.Command {
	case cli.CmdWeb:
		// Ctrl+C stops the server; in the terminal chat it is handled per turn
		webCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		defer cancel()
		fmt.Fprintf(stdout, "Serving chat on http://%s\n", cfg.Web.Addr)
		return exitOn(stderr, web.Serve(webCtx, a, cfg.Web.Addr))
	default:
		return exitOn(stderr, cli.RunChat(ctx, a, args))
	}
}

func exitOn(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func configPath(args cli.Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	if err := config.EnsureConfigDir(); err != nil {
		return "", err
	}
	return config.ConfigPathTOML()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// loadFileOnly reads path over the defaults without environment overrides.
// A missing file yields the defaults.
func loadFileOnly(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := config.LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags lets command-line flags win over the file and environment.
func applyFlags(cfg *config.Config, args cli.Args) error {
	if args.Model != "" {
		cfg.Cloud.DefaultModel = model.ResolveModel(args.Model)
	}
	if args.Persona != "" {
		cfg.Chat.Persona = args.Persona
	}
	if args.Lang != "" {
		cfg.Chat.Language = args.Lang
	}
	if args.MaxContext > 0 {
		cfg.Chat.MaxContext = args.MaxContext
	}
	if args.Addr != "" {
		cfg.Web.Addr = args.Addr
	}
	if args.Theme != "" {
		cfg.UI.Theme = args.Theme
	}
	if args.NoMarkdown {
		cfg.UI.Markdown = false
	}
	if args.Verbose {
		cfg.Log.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func catalogFor(cfg *config.Config, logger *slog.Logger) *persona.Catalog {
	if cfg.Persona.CatalogPath == "" {
		return persona.Builtin()
	}
	c, err := persona.LoadFile(cfg.Persona.CatalogPath)
	if err != nil {
		logger.Warn("persona catalog unavailable, using built-in personas", "path", cfg.Persona.CatalogPath, "error", err)
		return persona.Builtin()
	}
	return c
}
