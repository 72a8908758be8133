// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nav0225/qna-chatbot/internal/config"
	"github.com/nav0225/qna-chatbot/internal/export"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/persona"
	"github.com/nav0225/qna-chatbot/internal/storage"
	"github.com/nav0225/qna-chatbot/internal/ui/styles"
	"github.com/nav0225/qna-chatbot/internal/util"
)

// These commands need no API key.

// ErrIndexDisabled is returned by search when storage.index_path is empty.
var ErrIndexDisabled = errors.New("turn index is disabled (storage.index_path is empty)")

// RunModels prints the model menu.
func RunModels(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tDESCRIPTION")
	for i, m := range model.ListModels() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, m.ID, m.Name, m.Description)
	}
	return tw.Flush()
}

// RunPersonas prints the persona menu with each persona's languages.
func RunPersonas(w io.Writer, c *persona.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tLANGUAGES\tDESCRIPTION")
	for i, p := range c.All() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, personaLabel(p), strings.Join(p.LanguageCodes(), ","), p.Description)
	}
	return tw.Flush()
}

// RunReplay prints a structured journal as a transcript. Entries before a
// corrupt line are still printed.
func RunReplay(w io.Writer, path string, theme *styles.Theme) error {
	entries, loadErr := journal.Load(path)
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s\n", theme.Meta.Render(e.TS), theme.Subtitle.Render(e.Persona+" · "+e.Meta.Model))
		fmt.Fprintf(w, "%s %s\n", theme.UserLabel.Render("You:"), e.User)
		answer := e.Assistant
		if e.Status == journal.StatusError {
			answer = theme.Error.Render(answer)
		}
		fmt.Fprintf(w, "%s %s\n\n", theme.AssistantLabel.Render("Bot:"), answer)
	}
	if loadErr != nil {
		return fmt.Errorf("failed to replay journal: %w", loadErr)
	}
	fmt.Fprintf(w, "%d turns\n", len(entries))
	return nil
}

// RunExport renders a structured journal into dir in the given format and
// prints the written path. A journal with a corrupt line is exported up to
// that line and the error is still returned.
func RunExport(w io.Writer, path, format, dir, theme string) error {
	opts := export.DefaultOptions()
	if theme != "" {
		opts.Theme = theme
	}
	if format == "" {
		format = "md"
	}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}
	t, loadErr := export.Load(path)
	if t == nil {
		return fmt.Errorf("failed to read journal: %w", loadErr)
	}
	out, err := export.ExportToFile(t, exporter, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Exported %d turns to %s\n", len(t.Entries), out)
	if loadErr != nil {
		return fmt.Errorf("journal partially unreadable: %w", loadErr)
	}
	return nil
}

// RunSearch queries the turn index. An empty query lists recent turns.
func RunSearch(ctx context.Context, w io.Writer, cfg *config.Config, query string, limit int) error {
	path := cfg.IndexPath()
	if path == "" {
		return ErrIndexDisabled
	}
	idx, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	recs, err := idx.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No matching turns.")
		return nil
	}
	for _, r := range recs {
		status := ""
		if !r.OK {
			status = " [" + r.Failure + "]"
		}
		fmt.Fprintf(w, "[%s] %s (%s)%s\n  Q: %s\n  A: %s\n",
			r.TS, r.Persona, r.Model, status,
			util.TruncateRunes(r.User, journal.ReadableUserRunes),
			util.TruncateRunes(r.Assistant, journal.ReadableAssistantRunes))
	}
	return nil
}

// RunConfig implements config show|path|get|set. set writes the file at
// path after validating the change.
func RunConfig(w io.Writer, cfg *config.Config, path string, args Args) error {
	switch args.Subcommand {
	case "", "show":
		fmt.Fprintln(w, cfg.String())
		return nil

	case "path":
		fmt.Fprintln(w, path)
		return nil

	case "get":
		v, err := cfg.Get(args.Key)
		if err != nil {
			return err
		}
		if isSecretKey(args.Key) && v != "" {
			v = "[REDACTED]"
		}
		fmt.Fprintln(w, v)
		return nil

	case "set":
		if err := cfg.Set(args.Key, args.Value); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveTOML(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s updated in %s\n", args.Key, path)
		return nil
	}
	return fmt.Errorf("unknown config subcommand %q", args.Subcommand)
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), "api_key")
}
