// Package logging builds the structured loggers handed to the other packages.
//
// Packages accept a *slog.Logger in their options and fall back to Discard.
// The args of every log call are key-value pairs:
//
//	log.Info("resuming job", "id", id, "cursor", cursor)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	// Verbose enables debug output.
	Verbose bool

	// Format is text or json. Default: text.
	Format Format
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if opts.Format == FormatJSON {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}
	return slog.New(h).With("app", "scanfetch")
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("logging: unknown format %q", s)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
