package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
)

// Propagation headers
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// TraceID identifies one logical operation, e.g. a single handoff
type TraceID string

// SpanID identifies one step within a trace
type SpanID string

// Span represents a single step in a trace
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Err       error

	tracer *Tracer
	once   sync.Once
}

// Tracer records spans through the structured logger
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}
	wg      sync.WaitGroup
	closed  sync.Once
}

// New creates a tracer and starts its collector
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 256),
		done:    make(chan struct{}),
	}

	t.wg.Add(1)
	go t.collect()

	return t
}

// Start opens a span. A new trace is started if ctx does not carry one;
// use WithTraceID to reuse an existing identifier such as a handoff ID.
func (t *Tracer) Start(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.Default().GenerateString()),
		ParentID:  SpanIDFrom(ctx),
		Name:      name,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
		tracer:    t,
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records an error on the span
func (s *Span) SetError(err error) {
	s.Err = err
}

// End completes the span and hands it to the collector. Safe to call twice.
func (s *Span) End() {
	s.once.Do(func() {
		s.Duration = time.Since(s.StartTime)
		if s.tracer != nil {
			s.tracer.submit(s)
		}
	})
}

func (t *Tracer) submit(span *Span) {
	select {
	case <-t.done:
		return
	default:
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("operation", span.Name),
		)
	}
}

func (t *Tracer) collect() {
	defer t.wg.Done()
	for {
		select {
		case span := <-t.spans:
			t.emit(span)
		case <-t.done:
			for {
				select {
				case span := <-t.spans:
					t.emit(span)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracer) emit(span *Span) {
	fields := []zap.Field{
		zap.String("service", t.service),
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Err != nil {
		t.logger.Warn("span failed", append(fields, zap.Error(span.Err))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

// Close drains buffered spans and stops the collector
func (t *Tracer) Close() {
	t.closed.Do(func() {
		close(t.done)
		t.wg.Wait()
	})
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithTraceID returns ctx carrying traceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, TraceID(traceID))
}

// TraceIDFrom returns the trace ID carried by ctx, if any
func TraceIDFrom(ctx context.Context) TraceID {
	if v, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return v
	}
	return ""
}

// SpanIDFrom returns the current span ID carried by ctx, if any
func SpanIDFrom(ctx context.Context) SpanID {
	if v, ok := ctx.Value(spanIDKey).(SpanID); ok {
		return v
	}
	return ""
}

// Inject copies trace context into outbound request headers
func Inject(ctx context.Context, h http.Header) {
	if traceID := TraceIDFrom(ctx); traceID != "" {
		h.Set(HeaderTraceID, string(traceID))
	}
	if spanID := SpanIDFrom(ctx); spanID != "" {
		h.Set(HeaderSpanID, string(spanID))
	}
}
