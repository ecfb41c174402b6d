package common

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger from the log section. JSON is the
// default; "text" is easier to read on a terminal.
func NewLogger(c *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
