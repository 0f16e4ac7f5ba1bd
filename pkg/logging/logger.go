// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the slog loggers used by federate.
//
// A Logger writes human-readable records to a console writer (stderr by
// default) and, when a log directory is configured, JSON records to a
// dated file in that directory. Library packages take a plain *slog.Logger;
// only the CLI owns a Logger and hands out Slog().
//
// # Usage
//
//	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "federate"})
//	defer logger.Close()
//	logger.Info("config resolved", "source", "federation.config.json")
//
// # Thread Safety
//
// Logger is safe for concurrent use. Children created with With share the
// parent's log file; closing any of them closes it for all.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a log severity. Its values match slog's.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// String returns the slog name of the level, e.g. "WARN".
func (l Level) String() string {
	return slog.Level(l).String()
}

var levelNames = map[string]Level{
	"":        LevelInfo,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps a settings or flag value to a Level. Matching ignores
// case and surrounding space; an empty value means info.
func ParseLevel(s string) (Level, error) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return level, nil
}

// Config describes where a Logger writes.
type Config struct {
	// Level is the minimum level written to every destination.
	Level Level

	// LogDir enables file logging when non-empty. A leading "~/" is
	// expanded to the home directory.
	LogDir string

	// Service is added to every record and names the log file.
	// Defaults to "federate".
	Service string

	// JSON switches the console output from text to JSON.
	JSON bool

	// Quiet disables console output. File output is unaffected.
	Quiet bool

	// Output is the console writer. Defaults to os.Stderr.
	Output io.Writer
}

// Logger is a slog.Logger bound to its destinations.
type Logger struct {
	*slog.Logger
	sink    *fileSink
	fileErr error
}

// New builds a Logger from cfg.
//
// A log directory that cannot be created or opened does not fail New: the
// logger falls back to the console and FileErr reports what went wrong.
func New(cfg Config) *Logger {
	service := cfg.Service
	if service == "" {
		service = "federate"
	}
	opts := &slog.HandlerOptions{Level: slog.Level(cfg.Level)}

	var handlers fanout
	if !cfg.Quiet {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	l := &Logger{}
	if cfg.LogDir != "" {
		sink, err := openFileSink(expandHome(cfg.LogDir), service, time.Now())
		if err != nil {
			l.fileErr = err
		} else {
			l.sink = sink
			handlers = append(handlers, slog.NewJSONHandler(sink, opts))
		}
	}

	var h slog.Handler = handlers
	if len(handlers) == 1 {
		h = handlers[0]
	}
	l.Logger = slog.New(h).With(slog.String("service", service))
	return l
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(fanout(nil))
}

// FileErr reports why file logging is off despite a configured LogDir.
func (l *Logger) FileErr() error {
	return l.fileErr
}

// With returns a child Logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), sink: l.sink, fileErr: l.fileErr}
}

// Slog returns the underlying slog.Logger for library packages.
func (l *Logger) Slog() *slog.Logger {
	return l.Logger
}

// Close flushes and closes the log file, if any. It is safe to call more
// than once.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// fileSink is a log file shared by a Logger and its children.
type fileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func openFileSink(dir, service string, now time.Time) (*fileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", service, now.Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &fileSink{f: f, path: path}, nil
}

// Write drops records once the sink is closed.
func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return len(p), nil
	}
	return s.f.Write(p)
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := errors.Join(s.f.Sync(), s.f.Close())
	s.f = nil
	return err
}

// fanout sends each record to every handler enabled for its level. An
// empty fanout drops everything.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
