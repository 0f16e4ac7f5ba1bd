// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mutate applies batches of file operations to a project.
//
// # Apply Protocol
//
//	┌──────────────┐   ┌──────────────┐   ┌──────────────┐   ┌──────────────┐
//	│  pre-create  │──►│    stage     │──►│    commit    │──►│    delete    │
//	│ parent dirs  │   │ <path>.X.tmp │   │ rename/...   │   │ rm if exists │
//	└──────────────┘   └──────┬───────┘   └──────────────┘   └──────────────┘
//	                          │ any failure
//	                          ▼
//	                   remove staged temps, one aggregate error, nothing applied
//
// Staging is all-or-nothing. Once staging succeeds each file commits on its
// own through the strategy chain, so one failed commit does not block the
// rest. Every operation ends up in exactly one of Result.Applied or
// Result.Errors.
//
// # Thread Safety
//
// An Engine holds no per-call state and may be shared. It does not lock the
// target files; callers that need mutual exclusion take a project lock
// first.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/federate/pkg/logging"
)

// DeletedPrefix marks deletions in Result.Applied.
const DeletedPrefix = "(deleted) "

// processToken makes temp names unique to this process.
var processToken = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

// Phase names an engine phase.
type Phase string

const (
	PhasePrecreate Phase = "precreate"
	PhaseStage     Phase = "stage"
	PhaseCommit    Phase = "commit"
	PhaseDelete    Phase = "delete"
)

// EventKind classifies a progress Event.
type EventKind string

const (
	EventStaged    EventKind = "staged"
	EventCommitted EventKind = "committed"
	EventFallback  EventKind = "fallback"
	EventDeleted   EventKind = "deleted"
	EventFailed    EventKind = "failed"
	EventAborted   EventKind = "aborted"
)

// Event reports progress for one file.
type Event struct {
	Kind EventKind
	Path string

	// Strategy is the commit strategy involved, for committed and fallback
	// events.
	Strategy string

	Err error
}

// Reporter receives progress events. It is called synchronously from Apply.
type Reporter func(Event)

// Result partitions the operations of one Apply call.
type Result struct {
	// Applied holds paths relative to the base dir, in commit order.
	// Deletions are prefixed with DeletedPrefix.
	Applied []string `json:"applied"`

	// Errors holds one message per failed file, or a single aggregate
	// message when staging aborted.
	Errors []string `json:"errors"`
}

// OK reports whether no operation failed.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Engine applies file operations.
type Engine struct {
	logger     *slog.Logger
	reporter   Reporter
	strategies []CommitStrategy
	tracer     *Tracer
	metrics    *Metrics
	token      string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the debug logger. Nil discards.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithReporter sets the progress callback.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithStrategies replaces the commit fallback chain.
func WithStrategies(strategies ...CommitStrategy) Option {
	return func(e *Engine) {
		if len(strategies) > 0 {
			e.strategies = strategies
		}
	}
}

// WithTracing enables spans on provider. A nil provider uses the global one.
func WithTracing(provider trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = NewTracer(provider, true) }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithToken overrides the temp-name token.
func WithToken(token string) Option {
	return func(e *Engine) {
		if token != "" {
			e.token = token
		}
	}
}

// NewEngine creates an Engine with the default commit strategies.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:     logging.Discard(),
		strategies: DefaultStrategies(),
		tracer:     NewTracer(nil, false),
		token:      processToken,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs ops against baseDir.
//
// # Description
//
// Relative operation paths resolve against baseDir. Writes are staged to
// sibling temp files and committed; deletes run after every write. Apply
// never panics and never returns an error: failures land in Result.Errors.
// A cancelled ctx before or during staging aborts the batch like a staging
// failure.
//
// # Outputs
//
//   - Result: Applied and failed paths.
func (e *Engine) Apply(ctx context.Context, ops []FileOperation, baseDir string) (result Result) {
	start := time.Now()
	b := partition(ops)
	b.writes = e.collapse(b.writes, baseDir)

	ctx, span := e.tracer.StartApply(ctx, baseDir, len(b.writes), len(b.deletes))
	defer func() {
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("internal error: %v", r))
		}
		result = normalizeResult(result)
		e.tracer.EndApply(span, result)
		e.metrics.observeDuration(time.Since(start).Seconds())
	}()

	e.logger.Debug("applying operations",
		slog.String("base_dir", baseDir),
		slog.Int("writes", len(b.writes)),
		slog.Int("deletes", len(b.deletes)),
	)

	e.precreate(ctx, b.writes, baseDir)

	staged, err := e.stage(ctx, b.writes, baseDir)
	if err != nil {
		e.metrics.aborted()
		for _, w := range b.writes {
			e.metrics.failed(KindWrite)
			e.report(Event{Kind: EventAborted, Path: e.resolve(baseDir, w.Path), Err: err})
		}
		return Result{Errors: []string{err.Error()}}
	}

	e.commit(ctx, staged, baseDir, &result)
	e.deletePhase(ctx, b.deletes, baseDir, &result)
	return result
}

// collapse keeps only the last write to each destination, in the position
// of that last write. Writes to one path share a temp name, so staging
// more than one of them would clobber the earlier staged file.
func (e *Engine) collapse(writes []WriteOp, baseDir string) []WriteOp {
	last := make(map[string]int, len(writes))
	for i, w := range writes {
		last[e.resolve(baseDir, w.Path)] = i
	}
	if len(last) == len(writes) {
		return writes
	}
	out := make([]WriteOp, 0, len(last))
	for i, w := range writes {
		dest := e.resolve(baseDir, w.Path)
		if last[dest] != i {
			e.logger.Debug("superseded write dropped", slog.String("path", dest))
			continue
		}
		out = append(out, w)
	}
	return out
}

// stagedFile pairs a destination with its temp file.
type stagedFile struct {
	dest string
	tmp  string
}

func (e *Engine) precreate(ctx context.Context, writes []WriteOp, baseDir string) {
	_, span := e.tracer.StartPhase(ctx, PhasePrecreate, len(writes))
	defer e.tracer.EndPhase(span, nil)

	for _, w := range writes {
		dir := filepath.Dir(e.resolve(baseDir, w.Path))
		// Failures resurface as staging errors.
		if err := os.MkdirAll(dir, 0755); err != nil {
			e.logger.Debug("parent directory not created", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) stage(ctx context.Context, writes []WriteOp, baseDir string) (staged []stagedFile, err error) {
	_, span := e.tracer.StartPhase(ctx, PhaseStage, len(writes))
	defer func() { e.tracer.EndPhase(span, err) }()

	for _, w := range writes {
		dest := e.resolve(baseDir, w.Path)
		tmp := e.tempPath(dest)

		var stageErr error
		if ctxErr := ctx.Err(); ctxErr != nil {
			stageErr = ctxErr
		} else {
			stageErr = os.WriteFile(tmp, []byte(w.Content), fileMode(dest))
		}

		if stageErr != nil {
			for _, s := range staged {
				_ = os.Remove(s.tmp)
			}
			_ = os.Remove(tmp)
			err = fmt.Errorf("staging failed at %s: %v; no files were changed", e.relative(baseDir, dest), stageErr)
			e.logger.Debug("staging aborted", slog.String("path", dest), slog.String("error", stageErr.Error()))
			return nil, err
		}

		staged = append(staged, stagedFile{dest: dest, tmp: tmp})
		e.metrics.staged()
		e.report(Event{Kind: EventStaged, Path: dest})
	}
	return staged, nil
}

func (e *Engine) commit(ctx context.Context, staged []stagedFile, baseDir string, result *Result) {
	_, span := e.tracer.StartPhase(ctx, PhaseCommit, len(staged))
	var failures int
	defer func() {
		var err error
		if failures > 0 {
			err = fmt.Errorf("%d of %d commits failed", failures, len(staged))
		}
		e.tracer.EndPhase(span, err)
	}()

	for _, s := range staged {
		rel := e.relative(baseDir, s.dest)
		strategy, err := e.commitOne(s)
		if err != nil {
			failures++
			_ = os.Remove(s.tmp)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: commit failed: %v", rel, err))
			e.metrics.failed(KindWrite)
			e.report(Event{Kind: EventFailed, Path: s.dest, Err: err})
			continue
		}
		result.Applied = append(result.Applied, rel)
		e.metrics.applied(KindWrite)
		e.metrics.committed(strategy)
		e.report(Event{Kind: EventCommitted, Path: s.dest, Strategy: strategy})
	}
}

// commitOne tries each strategy in order and returns the name of the one
// that succeeded, or the joined errors of all of them.
func (e *Engine) commitOne(s stagedFile) (string, error) {
	var errs []error
	for i, strategy := range e.strategies {
		err := runStrategy(strategy, s.tmp, s.dest)
		if err == nil {
			return strategy.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name, err))
		if i+1 < len(e.strategies) {
			e.logger.Debug("commit strategy failed, falling back",
				slog.String("path", s.dest),
				slog.String("strategy", strategy.Name),
				slog.String("error", err.Error()),
			)
			e.report(Event{Kind: EventFallback, Path: s.dest, Strategy: strategy.Name, Err: err})
		}
	}
	if len(errs) == 0 {
		return "", errors.New("no commit strategies configured")
	}
	return "", errors.Join(errs...)
}

func (e *Engine) deletePhase(ctx context.Context, deletes []DeleteOp, baseDir string, result *Result) {
	_, span := e.tracer.StartPhase(ctx, PhaseDelete, len(deletes))
	var failures int
	defer func() {
		var err error
		if failures > 0 {
			err = fmt.Errorf("%d of %d deletes failed", failures, len(deletes))
		}
		e.tracer.EndPhase(span, err)
	}()

	for _, d := range deletes {
		path := e.resolve(baseDir, d.Path)
		rel := e.relative(baseDir, path)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: delete failed: %v", rel, err))
			e.metrics.failed(KindDelete)
			e.report(Event{Kind: EventFailed, Path: path, Err: err})
			continue
		}
		result.Applied = append(result.Applied, DeletedPrefix+rel)
		e.metrics.applied(KindDelete)
		e.report(Event{Kind: EventDeleted, Path: path})
	}
}

func (e *Engine) report(ev Event) {
	if e.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("reporter panicked", slog.Any("panic", r))
		}
	}()
	e.reporter(ev)
}

func (e *Engine) tempPath(dest string) string {
	return TempPath(dest, e.token)
}

func (e *Engine) resolve(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

func (e *Engine) relative(baseDir, abs string) string {
	if baseDir == "" {
		return abs
	}
	rel, err := filepath.Rel(baseDir, abs)
	if err != nil {
		return abs
	}
	return rel
}

// TempPath returns the staging path for dest under token.
func TempPath(dest, token string) string {
	return dest + "." + token + ".tmp"
}

// fileMode keeps an existing file's permissions; new files get 0644.
func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0644
}

func normalizeResult(r Result) Result {
	if r.Applied == nil {
		r.Applied = []string{}
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	return r
}
