package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "taskboard/api"
	requestSpanName    = "api.request"
	requestEventName   = "taskboard.request"
	requestEventDomain = "taskboard.api"
	observabilityEvent = "observability.event"
	attrPrefix         = "taskboard.request."
)

// requestMetrics collects per-request timings and emits them once as a span
// event and a structured log entry.
type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	route  string
	start  time.Time

	authDuration   time.Duration
	boardDuration  time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	batchSize      int
	errorStage     string
	cause          error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &requestMetrics{
		logger:        logger,
		span:          span,
		route:         route,
		start:         time.Now(),
		tasksReturned: -1,
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration += d
	}
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration += d
	}
}

// TimeBoard runs fn and adds its duration to the board timing.
func (m *requestMetrics) TimeBoard(fn func() error) error {
	start := time.Now()
	err := fn()
	m.boardDuration += time.Since(start)
	return err
}

func (m *requestMetrics) SetTasksReturned(n int) {
	if n < 0 {
		n = 0
	}
	m.tasksReturned = n
}

func (m *requestMetrics) SetBatchSize(n int) {
	m.batchSize = n
}

// Fail records the stage that failed and its cause.
func (m *requestMetrics) Fail(stage string, cause error) {
	if stage != "" {
		m.errorStage = stage
	}
	if cause != nil {
		m.cause = cause
	}
}

// Log ends the span and writes the observability event. It must be called
// exactly once per request.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.cause
	}
	text, number := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.boardDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"board_ms", durationToMillis(m.boardDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.tasksReturned >= 0 {
		attrs = append(attrs, attribute.Int(attrPrefix+"tasks_returned", m.tasksReturned))
	}
	if m.batchSize > 0 {
		attrs = append(attrs, attribute.Int(attrPrefix+"batch_size", m.batchSize))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	m.span.SetAttributes(attrs...)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", text),
		attribute.Int("severity_number", number),
	}, attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	if text == "ERROR" {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		if desc == "" {
			desc = "request failed"
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	logged := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		logged[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      logged,
		"severity_text":   text,
		"severity_number": number,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	switch text {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus maps a response to OpenTelemetry severity text and
// number.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
