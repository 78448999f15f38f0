// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package logger provides the structured logging facility for waybar-locate. Since STDOUT
// is reserved for the waybar JSON protocol, all log output is written to STDERR by default.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger for structured log output.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing to STDERR with the given minimum log level.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger returns a Logger writing to the given io.Writer with the given minimum log level.
func NewLogger(level slog.Level, w io.Writer) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog.New(handler)}
}

// Err returns a slog.Attr carrying the given error under the "error" key.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
