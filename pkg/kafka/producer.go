package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

// Job lifecycle event types
const (
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
)

// Config holds Kafka configuration
type Config struct {
	Brokers  []string
	JobTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, jobTopic string) Config {
	var brokerList []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}

	return Config{
		Brokers:  brokerList,
		JobTopic: jobTopic,
	}
}

// Enabled reports whether any broker is configured
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.JobTopic != ""
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes batch job lifecycle events
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.JobTopic,
		Balancer:     &kafka.Hash{},
		BatchSize:    10,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		// dev brokers create the topic on first publish
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.JobTopic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// JobEventMessage is a lifecycle event for a batch job. Downstream consumers use
// job.completed to refresh anything derived from the venue tables.
type JobEventMessage struct {
	Type           string    `json:"type"`
	BatchID        string    `json:"batch_id"`
	JobType        string    `json:"job_type"`
	Status         string    `json:"status"`
	TotalCount     int       `json:"total_count"`
	ProcessedCount int       `json:"processed_count"`
	SuccessCount   int       `json:"success_count"`
	ErrorCount     int       `json:"error_count"`
	Message        string    `json:"message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishJobEvent writes evt keyed by batch id so events of one job stay ordered
func (p *Producer) PublishJobEvent(ctx context.Context, evt *JobEventMessage) error {
	if evt == nil {
		return fmt.Errorf("job event is nil")
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishJobEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("batch_id", evt.BatchID),
		attribute.String("event_type", evt.Type),
	)

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal job event")
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "batch_id", Value: []byte(evt.BatchID)},
		{Key: "job_type", Value: []byte(evt.JobType)},
		{Key: "type", Value: []byte(evt.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.BatchID),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish job event")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish job event to Kafka topic %s", p.topic)
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "job event published")
	p.logger.WithContext(ctx).Debugf("Published %s for batch %s (%s)", evt.Type, evt.BatchID, evt.Status)
	return nil
}
