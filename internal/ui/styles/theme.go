// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the terminal styles built from one palette.
type Theme struct {
	Palette Palette
	IsDark  bool

	// Banner and section titles
	Title    lipgloss.Style
	Subtitle lipgloss.Style

	// Speaker labels
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style

	// Message bodies
	UserText      lipgloss.Style
	AssistantText lipgloss.Style

	// Meta line under a reply (model, tokens, language)
	Meta lipgloss.Style

	// Notices: command output, truncation markers, failures
	Notice lipgloss.Style
	Error  lipgloss.Style

	// Menu rows in the picker
	MenuItem         lipgloss.Style
	MenuItemSelected lipgloss.Style
	MenuDescription  lipgloss.Style
}

// NewTheme builds a theme. mode is "light", "dark" or "auto"; auto asks
// the terminal behind out for its background color.
func NewTheme(mode string, out io.Writer) *Theme {
	var p Palette
	switch strings.ToLower(mode) {
	case "dark":
		p = Dark
	case "light":
		p = Light
	default:
		if out != nil && termenv.NewOutput(out).HasDarkBackground() {
			p = Dark
		} else {
			p = Light
		}
	}
	return ThemeFor(p)
}

// ThemeFor builds a theme from an explicit palette.
func ThemeFor(p Palette) *Theme {
	t := &Theme{Palette: p, IsDark: p.Name == Dark.Name}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	p := t.Palette

	// Bubble tints are too pale for text on a light terminal.
	userFg, assistantFg := lipgloss.Color(p.Primary), lipgloss.Color("#7b1fa2")
	if t.IsDark {
		userFg, assistantFg = lipgloss.Color("#90caf9"), lipgloss.Color("#ce93d8")
	}

	t.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(p.Primary)).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(p.Primary)).
		Padding(0, 2)
	if t.IsDark {
		t.Title = t.Title.Foreground(lipgloss.Color(p.UserText)).BorderForeground(lipgloss.Color(p.Assistant))
	}

	t.Subtitle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.Muted)).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(userFg)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(assistantFg)

	t.UserText = lipgloss.NewStyle()
	t.AssistantText = lipgloss.NewStyle().PaddingLeft(2)

	t.Meta = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.Muted)).
		Italic(true).
		PaddingLeft(2)

	t.Notice = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted))
	t.Error = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Error))

	t.MenuItem = lipgloss.NewStyle().PaddingLeft(2)
	t.MenuItemSelected = lipgloss.NewStyle().
		PaddingLeft(1).
		Bold(true).
		Foreground(userFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(userFg)
	t.MenuDescription = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.Muted)).
		PaddingLeft(4)
}

// PersonaLabel renders "<emoji> <name>" in the persona's color. An empty
// color falls back to the assistant label style.
func (t *Theme) PersonaLabel(name, emoji, color string) string {
	style := t.AssistantLabel
	if color != "" {
		style = style.Foreground(lipgloss.Color(color))
	}
	label := name
	if emoji != "" {
		label = emoji + " " + name
	}
	return style.Render(label)
}

// GlamourStyle names the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
