package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	apperrors "github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

func newTestProducer(w WriterInterface) *Producer {
	cfg := ProducerConfig{Brokers: []string{"localhost:9092"}}
	applyProducerDefaults(&cfg)
	return &Producer{
		writer:  w,
		config:  cfg,
		logger:  logging.NewNopLogger(),
		metrics: &ProducerMetrics{},
	}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}))
}

func TestNewProducer_UnsupportedSASL(t *testing.T) {
	_, err := NewProducer(ProducerConfig{
		Brokers:       []string{"b:9092"},
		SASLEnabled:   true,
		SASLMechanism: "GSSAPI",
	}, logging.NewNopLogger())
	assert.True(t, apperrors.IsValidation(err))
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		captured = append(captured, msgs...)
		return nil
	}})

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic:   "reminder.due",
		Key:     []byte("acme"),
		Value:   []byte(`{"a":1}`),
		Headers: map[string]string{"event_type": "reminder.due"},
	})
	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, "acme", string(captured[0].Key))
	assert.False(t, captured[0].Time.IsZero())
	assert.Equal(t, "event_type", captured[0].Headers[0].Key)

	sent, failed, bytes := p.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Zero(t, failed)
	assert.Equal(t, int64(7), bytes)
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.True(t, apperrors.IsValidation(p.Publish(ctx, &ProducerMessage{Value: []byte("x")})))
	assert.True(t, apperrors.IsValidation(p.Publish(ctx, &ProducerMessage{Topic: "t"})))

	big := make([]byte, p.config.MaxMessageBytes+1)
	assert.True(t, apperrors.IsValidation(p.Publish(ctx, &ProducerMessage{Topic: "t", Value: big})))
}

func TestPublish_WriteError(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker down")
	}})
	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
	_, failed, _ := p.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestPublishBatch_PartialFailure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		return kafka.WriteErrors{nil, errors.New("leader not available"), nil}
	}})
	msgs := []*ProducerMessage{
		{Topic: "t", Value: []byte("1")},
		{Topic: "t", Value: []byte("2")},
		{Topic: "t", Value: []byte("3")},
	}

	res, err := p.PublishBatch(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Errors[0].Index)
}

func TestPublishBatch_GenericFailure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return context.DeadlineExceeded
	}})
	res, err := p.PublishBatch(context.Background(), []*ProducerMessage{{Topic: "t", Value: []byte("1")}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, -1, res.Errors[0].Index)
}

func TestProducer_Close(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.Equal(t, ErrProducerClosed, err)
}
