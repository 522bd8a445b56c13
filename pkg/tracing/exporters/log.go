package exporters

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans to the service logger at debug level.
type LogExporter struct {
	logger ectologger.Logger
}

func NewLogExporter(logger ectologger.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (l *LogExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	for _, span := range spans {
		l.logger.WithContext(ctx).WithFields(map[string]any{
			"trace_id":    span.SpanContext().TraceID().String(),
			"span_id":     span.SpanContext().SpanID().String(),
			"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
			"status":      span.Status().Code.String(),
		}).Debugf("span %s", span.Name())
	}
	return nil
}

func (l *LogExporter) Shutdown(ctx context.Context) error {
	return nil
}
