// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// Helpers
// =============================================================================

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// tempFiles lists leftover staging files under dir.
func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".tmp") {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

func failing(name string) CommitStrategy {
	return CommitStrategy{Name: name, Commit: func(string, string) error {
		return errors.New(name + " refused")
	}}
}

// =============================================================================
// Apply Tests
// =============================================================================

func TestApply_MixedBatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "c.txt", "old")

	ops := []FileOperation{
		WriteOp{Path: "a.txt", Content: "X"},
		WriteOp{Path: filepath.Join("sub", "deep", "b.txt"), Content: "Y"},
		DeleteOp{Path: "c.txt"},
	}

	result := NewEngine().Apply(context.Background(), ops, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{
		"a.txt",
		filepath.Join("sub", "deep", "b.txt"),
		DeletedPrefix + "c.txt",
	}, result.Applied)

	assert.Equal(t, "X", readFile(t, filepath.Join(dir, "a.txt")))
	assert.Equal(t, "Y", readFile(t, filepath.Join(dir, "sub", "deep", "b.txt")))
	assert.NoFileExists(t, filepath.Join(dir, "c.txt"))
	assert.DirExists(t, filepath.Join(dir, "sub", "deep"))
	assert.Empty(t, tempFiles(t, dir))
}

func TestApply_Idempotent(t *testing.T) {
	dir := t.TempDir()
	ops := []FileOperation{
		WriteOp{Path: "federation.config.json", Content: `{"role":"remote"}`},
		WriteOp{Path: filepath.Join("src", "bootstrap.tsx"), Content: "import('./main')\n"},
	}
	engine := NewEngine()

	first := engine.Apply(context.Background(), ops, dir)
	second := engine.Apply(context.Background(), ops, dir)

	assert.Empty(t, first.Errors)
	assert.Empty(t, second.Errors)
	assert.Equal(t, first.Applied, second.Applied)
	assert.Equal(t, `{"role":"remote"}`, readFile(t, filepath.Join(dir, "federation.config.json")))
}

func TestApply_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "vite.config.ts", "old")

	result := NewEngine().Apply(context.Background(), []FileOperation{WriteOp{Path: "vite.config.ts", Content: "new"}}, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, "new", readFile(t, path))
}

func TestApply_EmptyBatch(t *testing.T) {
	result := NewEngine().Apply(context.Background(), nil, t.TempDir())
	assert.NotNil(t, result.Applied)
	assert.NotNil(t, result.Errors)
	assert.Empty(t, result.Applied)
	assert.Empty(t, result.Errors)
	assert.True(t, result.OK())
}

func TestApply_AbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "abs.txt")

	result := NewEngine().Apply(context.Background(), []FileOperation{WriteOp{Path: abs, Content: "A"}}, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"abs.txt"}, result.Applied)
}

func TestApply_DeleteMissingIsNoop(t *testing.T) {
	dir := t.TempDir()

	result := NewEngine().Apply(context.Background(), []FileOperation{DeleteOp{Path: "ghost.txt"}}, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{DeletedPrefix + "ghost.txt"}, result.Applied)
}

func TestApply_DeleteFailureIsPerFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, filepath.Join("full", "keep.txt"), "x")
	writeFixture(t, dir, "gone.txt", "x")

	ops := []FileOperation{
		DeleteOp{Path: "full"},
		DeleteOp{Path: "gone.txt"},
	}
	result := NewEngine().Apply(context.Background(), ops, dir)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "full")
	assert.Equal(t, []string{DeletedPrefix + "gone.txt"}, result.Applied)
}

func TestApply_StagingFailureAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "blocker", "file, not a directory")
	writeFixture(t, dir, "c.txt", "keep")

	ops := []FileOperation{
		WriteOp{Path: "a.txt", Content: "X"},
		WriteOp{Path: filepath.Join("blocker", "b.txt"), Content: "Y"},
		DeleteOp{Path: "c.txt"},
	}
	var events []Event
	engine := NewEngine(WithReporter(func(ev Event) { events = append(events, ev) }))

	result := engine.Apply(context.Background(), ops, dir)

	assert.Empty(t, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no files were changed")

	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	assert.FileExists(t, filepath.Join(dir, "c.txt"), "deletes must not run after an abort")
	assert.Empty(t, tempFiles(t, dir))

	var aborted int
	for _, ev := range events {
		if ev.Kind == EventAborted {
			aborted++
		}
	}
	assert.Equal(t, 2, aborted)
}

func TestApply_CancelledContextAborts(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewEngine().Apply(ctx, []FileOperation{WriteOp{Path: "a.txt", Content: "X"}}, dir)

	assert.Empty(t, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], context.Canceled.Error())
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
}

// =============================================================================
// Commit Strategy Tests
// =============================================================================

func TestApply_CommitFallsBack(t *testing.T) {
	dir := t.TempDir()
	var events []Event
	engine := NewEngine(
		WithStrategies(failing("rename"), failing("replace"), CopyStrategy),
		WithReporter(func(ev Event) { events = append(events, ev) }),
	)

	result := engine.Apply(context.Background(), []FileOperation{WriteOp{Path: "a.txt", Content: "X"}}, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"a.txt"}, result.Applied)
	assert.Equal(t, "X", readFile(t, filepath.Join(dir, "a.txt")))
	assert.Empty(t, tempFiles(t, dir), "copy strategy must remove the temp file")

	var fallbacks []string
	var committedWith string
	for _, ev := range events {
		switch ev.Kind {
		case EventFallback:
			fallbacks = append(fallbacks, ev.Strategy)
		case EventCommitted:
			committedWith = ev.Strategy
		}
	}
	assert.Equal(t, []string{"rename", "replace"}, fallbacks)
	assert.Equal(t, "copy", committedWith)
}

func TestApply_CommitFailureIsPerFile(t *testing.T) {
	dir := t.TempDir()
	token := "testtoken"

	// Refuse only b.txt; everything else renames normally.
	picky := CommitStrategy{Name: "picky", Commit: func(tmp, dest string) error {
		if filepath.Base(dest) == "b.txt" {
			return errors.New("locked")
		}
		return os.Rename(tmp, dest)
	}}
	engine := NewEngine(WithStrategies(picky), WithToken(token))

	ops := []FileOperation{
		WriteOp{Path: "a.txt", Content: "A"},
		WriteOp{Path: "b.txt", Content: "B"},
		WriteOp{Path: "c.txt", Content: "C"},
	}
	result := engine.Apply(context.Background(), ops, dir)

	assert.Equal(t, []string{"a.txt", "c.txt"}, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "b.txt")
	assert.Contains(t, result.Errors[0], "locked")

	assert.NoFileExists(t, filepath.Join(dir, "b.txt"))
	assert.NoFileExists(t, TempPath(filepath.Join(dir, "b.txt"), token), "orphaned temp file must be removed")
}

func TestApply_PanickingStrategyIsContained(t *testing.T) {
	dir := t.TempDir()
	boom := CommitStrategy{Name: "boom", Commit: func(string, string) error { panic("boom") }}

	result := NewEngine(WithStrategies(boom, RenameStrategy)).
		Apply(context.Background(), []FileOperation{WriteOp{Path: "a.txt", Content: "X"}}, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"a.txt"}, result.Applied)
}

func TestApply_PanickingReporterIsContained(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(WithReporter(func(Event) { panic("reporter") }))

	result := engine.Apply(context.Background(), []FileOperation{WriteOp{Path: "a.txt", Content: "X"}}, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"a.txt"}, result.Applied)
}

func TestReplaceStrategy(t *testing.T) {
	dir := t.TempDir()
	tmp := writeFixture(t, dir, "a.txt.x.tmp", "new")
	dest := writeFixture(t, dir, "a.txt", "old")

	require.NoError(t, runStrategy(ReplaceStrategy, tmp, dest))
	assert.Equal(t, "new", readFile(t, dest))
	assert.NoFileExists(t, tmp)
}

func TestReplaceStrategy_MissingStagedFileKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	dest := writeFixture(t, dir, "a.txt", "orig")

	err := runStrategy(ReplaceStrategy, filepath.Join(dir, "a.txt.gone.tmp"), dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "orig", readFile(t, dest))
}

func TestApply_DuplicateTargetsLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.txt", "orig")

	ops := []FileOperation{
		WriteOp{Path: "a.txt", Content: "one"},
		WriteOp{Path: "b.txt", Content: "B"},
		WriteOp{Path: filepath.Join(dir, "a.txt"), Content: "two"},
	}
	result := NewEngine().Apply(context.Background(), ops, dir)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"b.txt", "a.txt"}, result.Applied)
	assert.Equal(t, "two", readFile(t, filepath.Join(dir, "a.txt")))
	assert.Empty(t, tempFiles(t, dir))
}

func TestRunStrategy_NilCommit(t *testing.T) {
	err := runStrategy(CommitStrategy{Name: "empty"}, "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestTempPath(t *testing.T) {
	assert.Equal(t, "/p/vite.config.ts.abc.tmp", TempPath("/p/vite.config.ts", "abc"))
	assert.Len(t, processToken, 12)
}

// =============================================================================
// Observability Tests
// =============================================================================

func TestApply_Metrics(t *testing.T) {
	dir := t.TempDir()
	metrics, err := NewMetrics()
	require.NoError(t, err)

	ops := []FileOperation{
		WriteOp{Path: "a.txt", Content: "X"},
		DeleteOp{Path: "missing.txt"},
	}
	NewEngine(WithMetrics(metrics)).Apply(context.Background(), ops, dir)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(KindWrite, "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(KindDelete, "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StagedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommitStrategyTotal.WithLabelValues("rename")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.AbortsTotal))

	out := filepath.Join(dir, "federate.prom")
	require.NoError(t, metrics.WriteTextfile(out))
	assert.Contains(t, readFile(t, out), "federate_mutate_operations_total")
}

func TestApply_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	dir := t.TempDir()
	ops := []FileOperation{WriteOp{Path: "a.txt", Content: "X"}, DeleteOp{Path: "b.txt"}}
	NewEngine(WithTracing(provider)).Apply(context.Background(), ops, dir)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"mutate.apply", "mutate.precreate", "mutate.stage", "mutate.commit", "mutate.delete",
	}, names)
}

func TestApply_TracingDisabledByDefault(t *testing.T) {
	tracer := NewTracer(nil, false)
	ctx, span := tracer.StartApply(context.Background(), "/tmp", 1, 0)
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
}
