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

func TestEncode(t *testing.T) {
	b, err := encode([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encode("text")
	require.NoError(t, err)
	assert.Equal(t, "text", string(b))

	b, err = encode(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, err = encode(make(chan int))
	assert.Error(t, err)
}

func TestBackoffWithJitter(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	first := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, first, min/2)
	assert.LessOrEqual(t, first, min)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestNewProducerAndConsumerRequireBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer()
	assert.Error(t, err)
}

func TestHookChainOrder(t *testing.T) {
	var calls []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				calls = append(calls, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				calls = append(calls, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	ctx, km, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data))
	chain.AfterHandle(ctx, "t", km, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)
}

func TestHookChainPanicBecomesError(t *testing.T) {
	var reported error
	chain := NewHookChain(
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		}},
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { reported = err }},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, err, reported)
}

func TestTraceID(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx := WithTraceID(context.Background(), ExtractTraceID(km))
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Equal(t, "", TraceID(WithTraceID(context.Background(), "")))
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducerHeadersAndBatch(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "none", map[string]string{"content-type": "application/json", "schema": "v0"})

	require.NoError(t, p.Publish(context.Background(), "snaps", Message{
		Key:     []byte("NIFTY"),
		Value:   map[string]float64{"hv": 0.2},
		Headers: map[string]string{"schema": "v1"},
	}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "snaps", w.msgs[0].Topic)
	assert.Equal(t, "application/json", header(w.msgs[0], "content-type"))
	assert.Equal(t, "v1", header(w.msgs[0], "schema"))
	assert.JSONEq(t, `{"hv":0.2}`, string(w.msgs[0].Value))

	err := p.PublishBatch(context.Background(), "snaps", []Message{{Value: "ok"}, {Value: make(chan int)}})
	assert.Error(t, err)
	assert.Len(t, w.msgs, 1, "a batch with an unencodable value is not written")

	require.NoError(t, p.PublishBatch(context.Background(), "snaps", nil))

	w.err = errors.New("broker down")
	err = p.Publish(context.Background(), "snaps", Message{Value: "x"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewProducerNeedsBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}
