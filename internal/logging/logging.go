// Package logging builds the structured loggers shared by the CLI, the
// server and the simulation.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New returns a logger writing to opts.Writer (stderr when nil). Level
// defaults to info and Format to text.
func New(opts Options) (*log.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = log.ParseLevel(strings.ToLower(opts.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	var formatter log.Formatter
	switch opts.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
