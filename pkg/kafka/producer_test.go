package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig(" broker-1:9092, ,broker-2:9092 ", "poppy.jobs")
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.True(t, cfg.Enabled())

	assert.False(t, ParseConfig("", "poppy.jobs").Enabled())
	assert.False(t, ParseConfig("broker:9092", "").Enabled())
}

func TestPublishJobEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "poppy.jobs", noopLogger())

	err := p.PublishJobEvent(context.Background(), &JobEventMessage{
		Type:         EventJobCompleted,
		BatchID:      "20260101000000-abcdef",
		JobType:      "COLLECT_RAW_DATA",
		Status:       "PARTIAL_SUCCESS",
		SuccessCount: 5,
		ErrorCount:   1,
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "20260101000000-abcdef", string(msg.Key))

	var evt JobEventMessage
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	assert.Equal(t, EventJobCompleted, evt.Type)
	assert.Equal(t, 5, evt.SuccessCount)
	assert.False(t, evt.Timestamp.IsZero())

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "COLLECT_RAW_DATA", headers["job_type"])
	assert.Equal(t, EventJobCompleted, headers["type"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishJobEvent_Errors(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker down")}, "poppy.jobs", noopLogger())

	assert.Error(t, p.PublishJobEvent(context.Background(), nil))
	assert.EqualError(t, p.PublishJobEvent(context.Background(), &JobEventMessage{BatchID: "b"}), "broker down")
}
