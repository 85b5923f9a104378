package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"MarketSim/pkg/logger"
)

// ConsumerHook wraps message handling. An error from BeforeHandle skips the
// handler and counts as a failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError classifies a hook failure, e.g. ERR_EMPTY or ERR_TOO_LARGE.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

type ctxKey string

// CtxRunID carries the run_id header of an inbound record, when present.
const CtxRunID ctxKey = "kafka_run_id"

// RunIDFrom returns the run id a GuardHook stored in ctx.
func RunIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(CtxRunID).(string)
	return v
}

// GuardHook rejects empty or oversized payloads before they reach a handler,
// copies the run_id header into the context and logs failures.
type GuardHook struct {
	MaxBytes int
	Log      *logger.Logger
}

func (h GuardHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if len(data) == 0 {
		return ctx, km, data, &HookError{Code: "ERR_EMPTY"}
	}
	if h.MaxBytes > 0 && len(data) > h.MaxBytes {
		return ctx, km, data, &HookError{Code: "ERR_TOO_LARGE", Err: fmt.Errorf("%d bytes", len(data))}
	}
	for _, hd := range km.Headers {
		if hd.Key == "run_id" && len(hd.Value) > 0 {
			ctx = context.WithValue(ctx, CtxRunID, string(hd.Value))
		}
	}
	return ctx, km, data, nil
}

func (GuardHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (h GuardHook) OnError(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
	if h.Log == nil {
		return
	}
	h.Log.Warn("kafka message rejected",
		logger.String("topic", topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.Error(err))
}

var (
	_ ConsumerHook = NoopHook{}
	_ ConsumerHook = GuardHook{}
)
