package repository

import (
	"context"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	pkgkafka "VolLens/pkg/kafka"
)

// producer is the slice of pkg/kafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, m pkgkafka.Message) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// SnapshotSchema versions the snapshot payload for consumers.
const SnapshotSchema = "analysis_snapshot.v1"

// KafkaPublisher emits analysis snapshots keyed by symbol, so one symbol's
// snapshots stay ordered on a single partition.
type KafkaPublisher struct {
	producer producer
	topic    string
}

func NewKafkaPublisher(p *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (p *KafkaPublisher) PublishSnapshot(ctx context.Context, s *models.AnalysisSnapshot) error {
	if s == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, snapshotMessage(s))
}

func (p *KafkaPublisher) PublishSnapshots(ctx context.Context, ss []*models.AnalysisSnapshot) error {
	msgs := make([]pkgkafka.Message, 0, len(ss))
	for _, s := range ss {
		if s == nil {
			continue
		}
		msgs = append(msgs, snapshotMessage(s))
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func snapshotMessage(s *models.AnalysisSnapshot) pkgkafka.Message {
	return pkgkafka.Message{
		Key:   []byte(s.Symbol),
		Value: s,
		Headers: map[string]string{
			"schema":    SnapshotSchema,
			"timeframe": s.Timeframe,
		},
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops snapshots; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishSnapshot(context.Context, *models.AnalysisSnapshot) error { return nil }

func (NopPublisher) PublishSnapshots(context.Context, []*models.AnalysisSnapshot) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

var (
	_ domrepo.Publisher = (*KafkaPublisher)(nil)
	_ domrepo.Publisher = NopPublisher{}
)
