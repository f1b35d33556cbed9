package repository

import (
	"context"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// Event is the envelope written to every StockPulse topic.
type Event struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	EmittedAt time.Time   `json:"emitted_at"`
	Data      interface{} `json:"data"`
}

// KafkaEventPublisher fans predictions, anomalies and ticks out to Kafka
// keyed by symbol.
type KafkaEventPublisher struct {
	producer producer
	topics   pkgkafka.Topics
	now      func() time.Time
}

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.TickPublisher  = (*KafkaEventPublisher)(nil)
)

func NewKafkaEventPublisher(p *pkgkafka.Producer, topics pkgkafka.Topics) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, topics: topics, now: time.Now}
}

func (p *KafkaEventPublisher) event(kind, symbol string, data interface{}) Event {
	return Event{Type: kind, Symbol: symbol, EmittedAt: p.now().UTC(), Data: data}
}

func (p *KafkaEventPublisher) PublishPrediction(ctx context.Context, rec models.PredictionRecord) error {
	return p.producer.Publish(ctx, p.topics.Predictions, []byte(rec.Symbol), p.event("prediction", rec.Symbol, rec))
}

func (p *KafkaEventPublisher) PublishAnomalies(ctx context.Context, anomalies []models.MarketAnomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(anomalies))
	for i, a := range anomalies {
		msgs[i] = pkgkafka.Message{Key: []byte(a.Symbol), Value: p.event("anomaly", a.Symbol, a)}
	}
	return p.producer.PublishBatch(ctx, p.topics.Anomalies, msgs)
}

// PublishTick writes the bare tick so KafkaTicksHandler can decode it directly.
func (p *KafkaEventPublisher) PublishTick(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topics.Ticks, []byte(t.Symbol), t)
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }
