// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nav0225/qna-chatbot/internal/ui/styles"
	"github.com/nav0225/qna-chatbot/internal/util"
)

// ErrPickCancelled is returned when the user leaves a menu without choosing.
var ErrPickCancelled = errors.New("selection cancelled")

// pickerItem is one menu row.
type pickerItem struct {
	Label       string
	Description string
	// Match is compared case-insensitively with typed answers in the
	// numeric prompt, in addition to the menu number.
	Match string
}

// =============================================================================
// KEY BINDINGS
// =============================================================================

type pickerKeys struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Quit   key.Binding
}

var defaultPickerKeys = pickerKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j", "tab"),
		key.WithHelp("↓/j", "down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c", "q"),
		key.WithHelp("esc", "cancel"),
	),
}

func (k pickerKeys) help() string {
	parts := make([]string, 0, 4)
	for _, b := range []key.Binding{k.Up, k.Down, k.Choose, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ") + " • 1-9 jump"
}

// =============================================================================
// BUBBLE TEA MODEL
// =============================================================================

type pickerModel struct {
	title  string
	items  []pickerItem
	cursor int
	chosen int
	theme  *styles.Theme
	keys   pickerKeys
	width  int
}

func newPickerModel(title string, items []pickerItem, def int, theme *styles.Theme) pickerModel {
	if def < 0 || def >= len(items) {
		def = 0
	}
	return pickerModel{
		title:  title,
		items:  items,
		cursor: def,
		chosen: -1,
		theme:  theme,
		keys:   defaultPickerKeys,
		width:  DefaultTerminalWidth,
	}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.chosen = -1
			return m, tea.Quit
		case key.Matches(msg, m.keys.Choose):
			m.chosen = m.cursor
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.cursor = (m.cursor - 1 + len(m.items)) % len(m.items)
		case key.Matches(msg, m.keys.Down):
			m.cursor = (m.cursor + 1) % len(m.items)
		default:
			if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(m.items) {
				m.cursor = n - 1
				m.chosen = m.cursor
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.theme.Title.Render(m.title))
	sb.WriteString("\n\n")

	for i, it := range m.items {
		row := fmt.Sprintf("%d. %s", i+1, it.Label)
		if i == m.cursor {
			sb.WriteString(m.theme.MenuItemSelected.Render(row))
		} else {
			sb.WriteString(m.theme.MenuItem.Render(row))
		}
		sb.WriteString("\n")
		if it.Description != "" {
			desc := util.TruncateWidth(it.Description, m.width-8)
			sb.WriteString(m.theme.MenuDescription.Render(desc))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(m.theme.Subtitle.Render(m.keys.help()))
	sb.WriteString("\n")
	return sb.String()
}

// pickTUI shows an arrow-key menu and returns the chosen index.
func pickTUI(in io.Reader, out io.Writer, title string, items []pickerItem, def int, theme *styles.Theme) (int, error) {
	if len(items) == 0 {
		return 0, errors.New("nothing to choose from")
	}
	p := tea.NewProgram(newPickerModel(title, items, def, theme), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("menu failed: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok || m.chosen < 0 {
		return 0, ErrPickCancelled
	}
	return m.chosen, nil
}

// =============================================================================
// NUMERIC PROMPT
// =============================================================================

// maxPromptAttempts bounds re-asking on bad answers before taking the default.
const maxPromptAttempts = 3

// pickNumbered lists items and reads a menu number (or a name) from r. A
// blank answer picks def.
func pickNumbered(r lineReader, out io.Writer, title, noun string, items []pickerItem, def int) (int, error) {
	if len(items) == 0 {
		return 0, errors.New("nothing to choose from")
	}
	if def < 0 || def >= len(items) {
		def = 0
	}

	fmt.Fprintf(out, "\n%s:\n", title)
	for i, it := range items {
		if it.Description != "" {
			fmt.Fprintf(out, "  %d. %s - %s\n", i+1, it.Label, it.Description)
		} else {
			fmt.Fprintf(out, "  %d. %s\n", i+1, it.Label)
		}
	}

	prompt := fmt.Sprintf("Choose %s (number, Enter for %d): ", noun, def+1)
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		answer, err := r.ReadInput(prompt)
		if err != nil {
			return 0, err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return def, nil
		}
		if i, ok := matchItem(items, answer); ok {
			return i, nil
		}
		fmt.Fprintf(out, "Please enter a number between 1 and %d.\n", len(items))
	}
	return def, nil
}

func matchItem(items []pickerItem, answer string) (int, bool) {
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(items) {
			return n - 1, true
		}
		return 0, false
	}
	for i, it := range items {
		if it.Match != "" && strings.EqualFold(it.Match, answer) {
			return i, true
		}
	}
	return 0, false
}
