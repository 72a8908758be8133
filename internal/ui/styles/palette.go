// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette is a named set of chat colors, as hex strings.
type Palette struct {
	Name          string `json:"name"`
	Primary       string `json:"primary"`
	Background    string `json:"bg"`
	User          string `json:"user"`
	Assistant     string `json:"ai"`
	UserText      string `json:"user_text"`
	AssistantText string `json:"ai_text"`
	Muted         string `json:"muted"`
	Error         string `json:"error"`
}

// Light is the default palette: an off-white, blue-tinted page with blue
// user bubbles and lavender assistant bubbles.
var Light = Palette{
	Name:          "light",
	Primary:       "#4267b2",
	Background:    "#f6f8ff",
	User:          "#d1e7ff",
	Assistant:     "#f3e5f5",
	UserText:      "#222222",
	AssistantText: "#222222",
	Muted:         "#888888",
	Error:         "#c62828",
}

// Dark is the dark palette.
var Dark = Palette{
	Name:          "dark",
	Primary:       "#282828",
	Background:    "#181818",
	User:          "#232c36",
	Assistant:     "#36314c",
	UserText:      "#efefef",
	AssistantText: "#efefef",
	Muted:         "#9e9e9e",
	Error:         "#ef9a9a",
}

var palettes = map[string]Palette{
	Light.Name: Light,
	Dark.Name:  Dark,
}

// PaletteByName returns the named palette, or Light for an unknown name.
func PaletteByName(name string) Palette {
	if p, ok := palettes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return Light
}

// PaletteNames lists the palette names in order.
func PaletteNames() []string {
	names := make([]string, 0, len(palettes))
	for n := range palettes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// STATUS COLORS
// =============================================================================

// Status colors adapt to the terminal background.
var (
	SuccessColor = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#22C55E"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	InfoColor    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}
)

// StatusIndicators are ASCII shape cues that accompany the status colors.
var StatusIndicators = struct {
	Success string
	Error   string
	Warning string
	Info    string
}{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
}

// RenderSuccess renders a success message with its indicator.
func RenderSuccess(message string) string {
	return lipgloss.NewStyle().Foreground(SuccessColor).Bold(true).Render(StatusIndicators.Success + " " + message)
}

// RenderError renders an error message with its indicator.
func RenderError(message string) string {
	return lipgloss.NewStyle().Foreground(ErrorColor).Bold(true).Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a warning with its indicator.
func RenderWarning(message string) string {
	return lipgloss.NewStyle().Foreground(WarningColor).Bold(true).Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders an informational message with its indicator.
func RenderInfo(message string) string {
	return lipgloss.NewStyle().Foreground(InfoColor).Render(StatusIndicators.Info + " " + message)
}
