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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const mutateTracerName = "federate.mutate"

// Tracer wraps an OpenTelemetry tracer with engine-specific spans.
//
// When disabled every Start method returns a noop span.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	enabled bool
}

// NewTracer creates a Tracer on provider. A nil provider uses the global
// one from otel.GetTracerProvider.
func NewTracer(provider trace.TracerProvider, enabled bool) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer:  provider.Tracer(mutateTracerName),
		enabled: enabled,
	}
}

// StartApply starts the root span for an Apply call.
func (t *Tracer) StartApply(ctx context.Context, baseDir string, writes, deletes int) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "mutate.apply",
		trace.WithAttributes(
			attribute.String("mutate.base_dir", baseDir),
			attribute.Int("mutate.writes", writes),
			attribute.Int("mutate.deletes", deletes),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartPhase starts a child span for one engine phase.
func (t *Tracer) StartPhase(ctx context.Context, phase Phase, count int) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "mutate."+string(phase),
		trace.WithAttributes(attribute.Int("mutate.count", count)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndApply records the outcome on the root span and ends it.
func (t *Tracer) EndApply(span trace.Span, result Result) {
	if span == nil {
		return
	}
	defer span.End()

	span.SetAttributes(
		attribute.Int("mutate.applied", len(result.Applied)),
		attribute.Int("mutate.errors", len(result.Errors)),
	)
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, result.Errors[0])
		return
	}
	span.SetStatus(codes.Ok, "")
}

// EndPhase ends a phase span, marking it failed when err is non-nil.
func (t *Tracer) EndPhase(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
