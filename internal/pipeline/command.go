// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"strings"
)

// CommandKind identifies an interactive command.
type CommandKind int

const (
	CmdExit CommandKind = iota + 1
	CmdClear
	CmdSave
	CmdTokens
	CmdHelp
)

// String returns the canonical command name.
func (k CommandKind) String() string {
	switch k {
	case CmdExit:
		return ":exit"
	case CmdClear:
		return ":clear"
	case CmdSave:
		return ":save"
	case CmdTokens:
		return ":tokens"
	case CmdHelp:
		return ":help"
	default:
		return "unknown"
	}
}

// Command is a parsed command line.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand recognizes a command line, case-insensitively. Arguments keep
// their case. Anything else is a chat message.
func ParseCommand(line string) (Command, bool) {
	trimmed := strings.TrimSpace(line)
	name, arg, _ := strings.Cut(trimmed, " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "exit", "quit", ":exit", ":quit":
		if arg == "" {
			return Command{Kind: CmdExit}, true
		}
	case ":clear":
		if arg == "" {
			return Command{Kind: CmdClear}, true
		}
	case ":save":
		return Command{Kind: CmdSave, Arg: arg}, true
	case ":tokens":
		if arg == "" {
			return Command{Kind: CmdTokens}, true
		}
	case ":help", ":commands":
		if arg == "" {
			return Command{Kind: CmdHelp}, true
		}
	}
	return Command{}, false
}

// CommandResult is what a command did.
type CommandResult struct {
	Kind    CommandKind
	Message string
	Path    string // CmdSave
	Tokens  int    // CmdTokens
	Budget  int    // CmdTokens
	Err     error
	Exit    bool
}

// HelpText lists the commands.
const HelpText = `Commands:
    :exit, :quit......Exit the chat
    :clear............Clear in-memory chat context
    :save [file]......Save session history to file
    :tokens...........Show context token usage
    :help.............Show this help
`
