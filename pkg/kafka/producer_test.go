package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestProducerEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")

	err := p.PublishBatch(context.Background(), "ticks", []Message{
		{Key: []byte("a"), Value: map[string]int{"n": 1}},
		{Key: []byte("b"), Value: "raw", Headers: map[string]string{"run_id": "r1"}},
		{Key: []byte("c"), Value: []byte("bytes")},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 3)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "bytes", string(w.msgs[2].Value))
	assert.Equal(t, "ticks", w.msgs[0].Topic)
	require.Len(t, w.msgs[1].Headers, 1)
	assert.Equal(t, "run_id", w.msgs[1].Headers[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerEmptyBatchIsNoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("unreachable")}
	p := NewProducerWithWriter(w, "gzip")
	assert.NoError(t, p.PublishBatch(context.Background(), "t", nil))
}

func TestProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducerWithWriter(&fakeWriter{err: boom}, "gzip")
	err := p.Publish(context.Background(), "feed", nil, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "feed")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestGuardHook(t *testing.T) {
	h := GuardHook{MaxBytes: 8}
	ctx := context.Background()

	_, _, _, err := h.BeforeHandle(ctx, "orders", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_EMPTY", he.Code)

	_, _, _, err = h.BeforeHandle(ctx, "orders", kafka.Message{}, []byte("123456789"))
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_TOO_LARGE", he.Code)

	km := kafka.Message{Headers: []kafka.Header{{Key: "run_id", Value: []byte("run-7")}}}
	out, _, data, err := h.BeforeHandle(ctx, "orders", km, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Equal(t, "run-7", RunIDFrom(out))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Greater(t, d, time.Duration(0))
	}
}
