package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/peterh/liner"

	"obi.dev/obi"
	"obi.dev/obi/internal/config"
	"obi.dev/obi/internal/history"
)

const historyLoadLimit = 1000

// Input is incomplete when every static error it produces was raised at
// end of input, such as an open block or an unterminated string.
func incomplete(source string) bool {
	errs := obi.Check(source, "<repl>")
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !err.AtEnd() {
			return false
		}
	}
	return true
}

type prompter interface {
	Prompt(prompt string) (string, error)
}

// Reads lines until they form a complete unit. ok is false at end of input.
func readUnit(p prompter, prompt string, continuation string) (source string, ok bool) {
	var b strings.Builder
	for {
		current := prompt
		if b.Len() > 0 {
			current = continuation
		}
		line, err := p.Prompt(current)
		if errors.Is(err, io.EOF) {
			return b.String(), b.Len() > 0
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

func openHistory(ln *liner.State, path string, logger *slog.Logger) *history.Store {
	if path == "" {
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("history unavailable", "path", path, "error", err)
		return nil
	}
	entries, err := store.Last(historyLoadLimit)
	if err != nil {
		logger.Warn("history unreadable", "path", path, "error", err)
	}
	for _, entry := range entries {
		ln.AppendHistory(entry)
	}
	return store
}

// Evaluates one unit and echoes its value. Errors are already reported to
// the diagnostics sink.
func evalUnit(ctx *obi.Context, source string) {
	value, err := ctx.Run(source, "<repl>")
	if err != nil {
		return
	}
	if _, null := value.(*obi.Null); value == nil || null {
		return
	}
	fmt.Fprintln(ctx.Stdout, value.String())
}

func repl(ctx *obi.Context, cfg config.Config, logger *slog.Logger) int {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	store := openHistory(ln, cfg.HistoryFile, logger)
	if store != nil {
		defer store.Close()
	}

	for {
		source, ok := readUnit(ln, cfg.Prompt, cfg.ContinuationPrompt)
		if !ok {
			fmt.Fprintln(ctx.Stdout)
			return exitOK
		}
		if strings.TrimSpace(source) == "" {
			continue
		}

		evalUnit(ctx, source)

		entry := strings.ReplaceAll(source, "\n", " ")
		ln.AppendHistory(entry)
		if store != nil {
			if _, err := store.Add(entry); err != nil {
				logger.Warn("history write failed", "error", err)
			}
		}
	}
}
