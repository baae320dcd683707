/*
Package tracing provides lightweight span logging for multi-step operations.

# Overview

A handoff touches several processes: the browser is stopped, the transition
screen shown, the desktop manager spawned and watched. Each step is a span
under a trace identified by the handoff ID, so one grep of the log shows the
whole sequence with timings. Inbound HTTP requests and outbound task API
calls carry the same trace context through X-Trace-ID and X-Span-ID headers.

# Usage

	tracer := tracing.New("launcher", logger.Logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	ctx = tracing.WithTraceID(ctx, handoffID.String())
	span, ctx := tracer.Start(ctx, "spawn-desktop")
	defer span.End()
	span.SetTag("target", path)

Spans are buffered and written by a single collector goroutine. When the
buffer is full new spans are dropped with a warning.
*/
package tracing
