package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"MarketSim/internal/domain/models"
	domrepo "MarketSim/internal/domain/repository"
	"MarketSim/internal/middleware"
	pkgkafka "MarketSim/pkg/kafka"
)

// OrderSubmitter is the intake side of the simulator.
type OrderSubmitter interface {
	Submit(ctx context.Context, source string, o models.TradeOrder) error
}

// KafkaTradesHandler consumes player orders from Kafka and queues them for the next tick.
type KafkaTradesHandler struct {
	topic   string
	sink    OrderSubmitter
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, sink OrderSubmitter, metrics domrepo.Metrics) *KafkaTradesHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaTradesHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

// incoming message schema: {asset, side, qty, price}
func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Asset string  `json:"asset"`
		Side  string  `json:"side"`
		Qty   int64   `json:"qty"`
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	order := models.TradeOrder{
		AssetID:  strings.TrimSpace(m.Asset),
		Side:     models.Side(strings.ToLower(strings.TrimSpace(m.Side))),
		Quantity: m.Qty,
		Price:    m.Price,
	}
	err := h.sink.Submit(ctx, "kafka", order)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, middleware.ErrThrottled):
		// dropped orders are not redelivered
		return nil
	default:
		return fmt.Errorf("queue kafka order: %w", err)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
