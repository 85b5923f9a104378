package repository

import (
	"context"
	"fmt"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	pkgkafka "MarketSim/pkg/kafka"
)

// BatchProducer is what the publisher needs from pkg/kafka.Producer.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaFeedPublisher writes narrative entries keyed by run and prints keyed by
// asset so each stream keeps its order within a partition.
type KafkaFeedPublisher struct {
	producer   BatchProducer
	feedTopic  string
	ticksTopic string
}

func NewKafkaFeedPublisher(producer BatchProducer, feedTopic, ticksTopic string) *KafkaFeedPublisher {
	return &KafkaFeedPublisher{producer: producer, feedTopic: feedTopic, ticksTopic: ticksTopic}
}

func (p *KafkaFeedPublisher) PublishFeed(ctx context.Context, runID string, entries []models.FeedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, pkgkafka.Message{
			Key:     []byte(runID),
			Value:   e,
			Headers: map[string]string{"run_id": runID, "kind": string(e.Kind)},
		})
	}
	if err := p.producer.PublishBatch(ctx, p.feedTopic, msgs); err != nil {
		return fmt.Errorf("publish feed: %w", err)
	}
	return nil
}

func (p *KafkaFeedPublisher) PublishTicks(ctx context.Context, prints []models.TickPrint) error {
	if len(prints) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(prints))
	for _, t := range prints {
		msgs = append(msgs, pkgkafka.Message{
			Key:     []byte(t.RunID + "/" + t.AssetID),
			Value:   t,
			Headers: map[string]string{"run_id": t.RunID},
		})
	}
	if err := p.producer.PublishBatch(ctx, p.ticksTopic, msgs); err != nil {
		return fmt.Errorf("publish ticks: %w", err)
	}
	return nil
}

func (p *KafkaFeedPublisher) Close() error {
	return p.producer.Close()
}

var _ repository.FeedPublisher = (*KafkaFeedPublisher)(nil)
