package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/poppy/pkg/tracing/exporters"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects the span exporter
type Config struct {
	ServiceName string
	// Exporter is "otlp", "log" or "none"
	Exporter     string
	OTLP         exporters.OTLPConfig
	SampleRatio  float64
	ShutdownWait time.Duration
}

// Setup installs a global tracer provider and returns its shutdown func.
// With the "none" exporter spans are never started.
func Setup(ctx context.Context, cfg Config, logger ectologger.Logger) (func(context.Context) error, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exp, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporter = exp
	case "log":
		exporter = exporters.NewLogExporter(logger)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s (use 'otlp', 'log' or 'none')", cfg.Exporter)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(tp.Tracer(cfg.ServiceName))

	logger.Infof("Tracing enabled with %s exporter", cfg.Exporter)

	return tp.Shutdown, nil
}
