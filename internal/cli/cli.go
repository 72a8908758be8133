// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command represents a CLI command.
type Command int

const (
	CmdChat Command = iota // Default: interactive terminal chat
	CmdWeb                 // Browser front-end (--ui)
	CmdSearch
	CmdReplay
	CmdExport
	CmdModels
	CmdPersonas
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the string representation of a command.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdWeb:
		return "web"
	case CmdSearch:
		return "search"
	case CmdReplay:
		return "replay"
	case CmdExport:
		return "export"
	case CmdModels:
		return "models"
	case CmdPersonas:
		return "personas"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

var commandNames = map[string]Command{
	"chat":     CmdChat,
	"web":      CmdWeb,
	"search":   CmdSearch,
	"replay":   CmdReplay,
	"export":   CmdExport,
	"models":   CmdModels,
	"personas": CmdPersonas,
	"config":   CmdConfig,
	"version":  CmdVersion,
	"help":     CmdHelp,
}

// =============================================================================
// ARGUMENTS
// =============================================================================

// Args holds the parsed command line. Zero values mean "not given"; the
// config file and environment fill them in.
type Args struct {
	Command Command

	// Global flags
	ConfigPath string
	Verbose    bool

	// Session flags
	UI         bool
	Addr       string
	Model      string
	Persona    string
	Lang       string
	MaxContext int
	Theme      string
	NoMarkdown bool

	// search
	Query string
	Limit int

	// replay, export
	File string

	// export
	Format    string
	OutputDir string

	// config show|path|get|set
	Subcommand string
	Key        string
	Value      string
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Args, error) {
	var args Args

	fs := pflag.NewFlagSet("qna-chatbot", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)

	fs.BoolVar(&args.UI, "ui", false, "serve the browser front-end instead of the terminal chat")
	fs.StringVar(&args.Addr, "addr", "", "listen address for --ui")
	fs.StringVarP(&args.Model, "model", "m", "", "model id or catalog number")
	fs.StringVarP(&args.Persona, "persona", "p", "", "persona name or catalog number")
	fs.StringVarP(&args.Lang, "lang", "l", "", "persona language code")
	fs.IntVar(&args.MaxContext, "max-context", 0, "context token budget")
	fs.StringVar(&args.Theme, "theme", "", "terminal theme: auto, light or dark")
	fs.BoolVar(&args.NoMarkdown, "no-markdown", false, "print replies as plain text")
	fs.StringVarP(&args.ConfigPath, "config", "c", "", "config file path")
	fs.BoolVarP(&args.Verbose, "verbose", "v", false, "log debug output to stderr")
	fs.IntVarP(&args.Limit, "limit", "n", 0, "maximum search results")
	fs.StringVarP(&args.Format, "format", "f", "", "export format: md, html, json or txt")
	fs.StringVarP(&args.OutputDir, "output", "o", "", "export output directory")
	help := fs.BoolP("help", "h", false, "show help")
	version := fs.Bool("version", false, "show version")

	if err := fs.Parse(argv); err != nil {
		return args, err
	}
	if *help {
		args.Command = CmdHelp
		return args, nil
	}
	if *version {
		args.Command = CmdVersion
		return args, nil
	}
	if args.MaxContext < 0 {
		return args, fmt.Errorf("--max-context must be positive, got %d", args.MaxContext)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		if args.UI {
			args.Command = CmdWeb
		}
		return args, nil
	}

	cmd, ok := commandNames[strings.ToLower(rest[0])]
	if !ok {
		return args, fmt.Errorf("unknown command %q", rest[0])
	}
	args.Command = cmd
	rest = rest[1:]

	switch cmd {
	case CmdChat:
		if args.UI {
			args.Command = CmdWeb
		}
	case CmdSearch:
		args.Query = strings.Join(rest, " ")
	case CmdReplay:
		if len(rest) != 1 {
			return args, errors.New("replay needs exactly one journal file")
		}
		args.File = rest[0]
	case CmdExport:
		if len(rest) != 1 {
			return args, errors.New("export needs exactly one journal file")
		}
		args.File = rest[0]
	case CmdConfig:
		args.Subcommand = "show"
		if len(rest) > 0 {
			args.Subcommand = strings.ToLower(rest[0])
		}
		switch args.Subcommand {
		case "show", "path":
		case "get":
			if len(rest) != 2 {
				return args, errors.New("usage: config get <key>")
			}
			args.Key = rest[1]
		case "set":
			if len(rest) != 3 {
				return args, errors.New("usage: config set <key> <value>")
			}
			args.Key, args.Value = rest[1], rest[2]
		default:
			return args, fmt.Errorf("unknown config subcommand %q", args.Subcommand)
		}
	}
	return args, nil
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `qna-chatbot - chat with OpenRouter models from the terminal or a browser

Usage:
  qna-chatbot [flags]                 Interactive terminal chat
  qna-chatbot --ui [--addr HOST:PORT] Browser front-end
  qna-chatbot <command> [args]

Commands:
  chat                 Interactive terminal chat (default)
  web                  Browser front-end (same as --ui)
  search <query>       Search past turns in the turn index
  replay <file.jsonl>  Print a session journal as a transcript
  export <file.jsonl>  Write a session journal as md, html, json or txt
  models               List the model catalog
  personas             List the persona catalog
  config [show|path|get <key>|set <key> <value>]
  version              Show version information

Flags:
  -m, --model ID        Model id or catalog number (default openrouter/auto)
  -p, --persona NAME    Persona name or catalog number
  -l, --lang CODE       Persona language (en, hi, es, ...)
      --max-context N   Context token budget (default 2048)
      --theme MODE      auto, light or dark
      --no-markdown     Print replies as plain text
      --ui              Serve the browser front-end
      --addr HOST:PORT  Listen address for --ui (default 127.0.0.1:8501)
  -n, --limit N         Maximum search results
  -f, --format FMT      Export format: md, html, json or txt (default md)
  -o, --output DIR      Export output directory (default .)
  -c, --config PATH     Config file (default ~/.qna-chatbot/config.toml)
  -v, --verbose         Log debug output to stderr
  -h, --help            Show this help

In-chat commands:
  exit, quit, :exit, :quit   Leave the chat
  :clear                     Forget the conversation context
  :save [file]               Save this session's transcript
  :tokens                    Show context token usage
  :help, :commands           List commands

Environment:
  OPENROUTER_API_KEY   Required. Also read from .env
  QNA_MODEL, QNA_PERSONA, QNA_LANG, QNA_MAX_CONTEXT, QNA_LOG_DIR,
  QNA_TRANSLATE_URL, QNA_TRANSLATE_KEY, QNA_ADDR, DEBUG
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "qna-chatbot %s\n", Version)
	fmt.Fprintf(w, "  Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:  %s\n", BuildDate)
}
