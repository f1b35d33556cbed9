package repository

import (
	"context"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	pkgkafka "StockPulse/pkg/kafka"
)

type sent struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct{ out []sent }

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.out = append(f.out, sent{topic, string(key), value})
	return nil
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	for _, m := range msgs {
		f.out = append(f.out, sent{topic, string(m.Key), m.Value})
	}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaEventPublisherRoutesByTopic(t *testing.T) {
	fp := &fakeProducer{}
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	p := &KafkaEventPublisher{
		producer: fp,
		topics:   pkgkafka.Topics{Predictions: "p", Anomalies: "a", Ticks: "t"},
		now:      func() time.Time { return now },
	}
	ctx := context.Background()

	_ = p.PublishPrediction(ctx, models.PredictionRecord{Symbol: "AAPL", Confidence: 80})
	_ = p.PublishAnomalies(ctx, []models.MarketAnomaly{{Symbol: "AAPL"}, {Symbol: "MSFT"}})
	_ = p.PublishAnomalies(ctx, nil)
	_ = p.PublishTick(ctx, &models.Tick{Symbol: "NVDA", Price: 1})

	if len(fp.out) != 4 {
		t.Fatalf("sent %d messages", len(fp.out))
	}
	ev, ok := fp.out[0].value.(Event)
	if fp.out[0].topic != "p" || !ok || ev.Type != "prediction" || !ev.EmittedAt.Equal(now) {
		t.Errorf("prediction message = %+v", fp.out[0])
	}
	if fp.out[2].topic != "a" || fp.out[2].key != "MSFT" {
		t.Errorf("anomaly message = %+v", fp.out[2])
	}
	if _, isTick := fp.out[3].value.(*models.Tick); fp.out[3].topic != "t" || !isTick {
		t.Errorf("tick message = %+v", fp.out[3])
	}
}
