// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/nav0225/qna-chatbot/internal/app"
	"github.com/nav0225/qna-chatbot/internal/lang"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/persona"
	"github.com/nav0225/qna-chatbot/internal/pipeline"
	"github.com/nav0225/qna-chatbot/internal/ui/styles"
)

// TruncationNotice follows a reply that was cut for display.
const TruncationNotice = "[truncated, see session log for full text]"

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader is the REPL's input side. *ChatCLI implements it.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor. An empty historyFile keeps history in
// memory only.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history, owner read/write only.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// Chat drives one terminal session.
type Chat struct {
	session  *pipeline.Session
	input    lineReader
	out      io.Writer
	theme    *styles.Theme
	renderer Renderer
	logger   *slog.Logger

	// interrupts delivers Ctrl+C while a turn is in flight.
	interrupts <-chan os.Signal

	// spinner animates on spinnerOut while waiting; nil disables it.
	spinnerOut io.Writer
	spinner    styles.SpinnerConfig
}

// RunChat runs the interactive terminal chat until the user leaves.
func RunChat(ctx context.Context, a *app.App, args Args) error {
	cfg := a.Config
	theme := styles.NewTheme(firstNonEmpty(args.Theme, cfg.UI.Theme), os.Stdout)

	input := NewChatCLI(cfg.HistoryPath())
	defer input.Close()

	printBanner(os.Stdout, theme)

	modelChoice, personaChoice, err := chooseSession(a, args, input, os.Stdout, theme)
	if err != nil {
		if errors.Is(err, ErrPickCancelled) || errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println("Exiting. Goodbye!")
			return nil
		}
		return err
	}

	s, err := a.NewSession(app.SessionSpec{
		Model:    modelChoice,
		Persona:  personaChoice,
		Language: args.Lang,
		Budget:   args.MaxContext,
	})
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	c := &Chat{
		session:    s,
		input:      input,
		out:        os.Stdout,
		theme:      theme,
		renderer:   NewRenderer(theme, cfg.UI.Markdown && !args.NoMarkdown && IsStdoutTTY(), wrapWidth(), a.Logger),
		logger:     a.Logger,
		interrupts: sigs,
		spinner:    styles.DotsSpinner,
	}
	if IsStdoutTTY() {
		c.spinnerOut = os.Stderr
	}
	return c.Run(ctx)
}

// chooseSession settles model and persona: flags win, then an interactive
// menu on a terminal, then a numbered prompt.
func chooseSession(a *app.App, args Args, input lineReader, out io.Writer, theme *styles.Theme) (string, string, error) {
	modelChoice, personaChoice := args.Model, args.Persona

	pick := func(title, noun string, items []pickerItem, def int) (int, error) {
		if CanPrompt() {
			return pickTUI(os.Stdin, out, title, items, def, theme)
		}
		return pickNumbered(input, out, title, noun, items, def)
	}

	if modelChoice == "" {
		models := model.ListModels()
		items := make([]pickerItem, len(models))
		def := 0
		for i, m := range models {
			items[i] = pickerItem{Label: m.Label(), Description: m.Description, Match: m.ID}
			if m.ID == a.Config.Cloud.DefaultModel {
				def = i
			}
		}
		i, err := pick("Available Models", "model", items, def)
		if err != nil {
			return "", "", err
		}
		modelChoice = models[i].ID
	}

	if personaChoice == "" {
		personas := a.Personas.Catalog().All()
		items := make([]pickerItem, len(personas))
		def := 0
		for i, p := range personas {
			items[i] = pickerItem{Label: personaLabel(p), Description: p.Description, Match: p.Name}
			if strings.EqualFold(p.Name, a.Config.Chat.Persona) {
				def = i
			}
		}
		i, err := pick("Available Personas", "persona", items, def)
		if err != nil {
			return "", "", err
		}
		personaChoice = personas[i].Name
	}
	return modelChoice, personaChoice, nil
}

func personaLabel(p persona.Persona) string {
	if p.Style.Emoji == "" {
		return p.Name
	}
	return p.Name + " [" + p.Style.Emoji + "]"
}

// Run reads input until exit, end of input or an interrupt.
func (c *Chat) Run(ctx context.Context) error {
	s := c.session
	s.Start(ctx)
	defer s.End(ctx)

	c.printSessionInfo()

	for {
		line, err := c.input.ReadInput("\nYou: ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(c.out, "\nInterrupted. Exiting chat.")
			} else {
				fmt.Fprintln(c.out)
			}
			c.printExitSummary()
			return nil
		}

		reply, interrupted, err := c.handle(ctx, line)
		if interrupted {
			fmt.Fprintln(c.out, "\nInterrupted. Exiting chat.")
			c.printExitSummary()
			return nil
		}
		if err != nil {
			if errors.Is(err, pipeline.ErrAborted) {
				c.printExitSummary()
				return nil
			}
			c.logger.Error("turn failed", "error", err)
			fmt.Fprintln(c.out, c.theme.Error.Render("Error occurred. Check logs for details."))
			continue
		}

		if reply.Command != nil {
			c.printCommand(reply.Command)
			if reply.Command.Exit {
				c.printExitSummary()
				return nil
			}
			continue
		}
		if reply.Turn != nil {
			c.printTurn(reply.Turn)
		}
	}
}

type handled struct {
	reply pipeline.Reply
	err   error
}

// handle runs one line in the background so an interrupt can end the loop
// without waiting for the network. The interrupted turn is dropped by the
// session once its response arrives.
func (c *Chat) handle(ctx context.Context, line string) (pipeline.Reply, bool, error) {
	done := make(chan handled, 1)
	go func() {
		r, err := c.session.Handle(ctx, line)
		done <- handled{reply: r, err: err}
	}()

	var tick <-chan time.Time
	if c.spinnerOut != nil {
		t := time.NewTicker(c.spinner.Duration())
		defer t.Stop()
		tick = t.C
	}
	start := time.Now()
	defer c.clearSpinner()

	for {
		select {
		case h := <-done:
			return h.reply, false, h.err
		case <-c.interrupts:
			c.session.Abort()
			return pipeline.Reply{}, true, nil
		case <-tick:
			fmt.Fprintf(c.spinnerOut, "\r%s thinking", c.spinner.Frame(time.Since(start)))
		}
	}
}

func (c *Chat) clearSpinner() {
	if c.spinnerOut != nil {
		fmt.Fprint(c.spinnerOut, "\r\033[K")
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func printBanner(out io.Writer, theme *styles.Theme) {
	fmt.Fprintln(out, theme.Title.Render("QnA Bot - Terminal"))
	fmt.Fprintln(out, theme.Subtitle.Render("Type :help for commands and tips."))
}

func (c *Chat) printSessionInfo() {
	s := c.session
	p := s.Persona()
	fmt.Fprintf(c.out, "\nPersona: %s (%s, language %s)\n", p.Name, p.Style.Emoji, lang.DisplayName(s.Language()))
	fmt.Fprintf(c.out, "Model: %s\n", s.Model())
	fmt.Fprintln(c.out, c.theme.Notice.Render(fmt.Sprintf("Tokenizer: %s", s.Window().Estimator().Name())))
}

func (c *Chat) printCommand(res *pipeline.CommandResult) {
	switch {
	case res.Err != nil:
		fmt.Fprintln(c.out, c.theme.Error.Render(res.Message))
	case res.Kind == pipeline.CmdHelp:
		fmt.Fprint(c.out, res.Message)
	case res.Kind == pipeline.CmdExit:
		fmt.Fprintln(c.out, res.Message)
	default:
		fmt.Fprintln(c.out, c.theme.Notice.Render(res.Message))
	}
}

func (c *Chat) printTurn(t *pipeline.Turn) {
	p := c.session.Persona()
	text, cut := t.Display(c.session.MaxDisplayChars())

	fmt.Fprintf(c.out, "\n%s:\n", c.theme.PersonaLabel(p.Name, p.Style.Emoji, p.Style.Color))
	if t.OK() {
		fmt.Fprintln(c.out, c.renderer.Render(text))
	} else {
		fmt.Fprintln(c.out, c.theme.Error.Render(text))
	}
	if cut {
		fmt.Fprintln(c.out, c.theme.Notice.Render(TruncationNotice))
	}
	fmt.Fprintln(c.out, c.theme.Meta.Render(turnMeta(t)))
	if t.PersistErr != nil {
		fmt.Fprintln(c.out, c.theme.Error.Render("[Journal write failed] "+t.PersistErr.Error()))
	}
}

// turnMeta is the line under a reply: model, tokens, language.
func turnMeta(t *pipeline.Turn) string {
	meta := t.Entry().Meta
	parts := make([]string, 0, 4)
	if meta.Model != "" {
		parts = append(parts, meta.Model)
	}
	if n := meta.TotalTokens(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", n))
	}
	if t.Language != "" {
		parts = append(parts, lang.DisplayName(t.Language))
	}
	if t.Translated {
		parts = append(parts, "translated")
	}
	return strings.Join(parts, " · ")
}

func (c *Chat) printExitSummary() {
	s := c.session
	fmt.Fprintln(c.out, c.theme.Notice.Render(
		fmt.Sprintf("[Session %s: %d turns, journal %s]", s.ID(), s.Turns(), s.Journal().Path())))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
