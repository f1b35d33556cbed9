package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

// KafkaTicksHandler stores ticks published by a TickWriter in kafka mode.
type KafkaTicksHandler struct {
	topic   string
	writer  *TickWriter
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, store domrepo.MarketStore, metrics domrepo.Metrics) (*KafkaTicksHandler, error) {
	w, err := NewTickWriter(TickBackendStore, store, nil, metrics)
	if err != nil {
		return nil, err
	}
	return &KafkaTicksHandler{topic: topic, writer: w, metrics: metrics}, nil
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Timestamp > 0 && t.Timestamp < 1e11 {
		t.Timestamp *= 1000
	}
	if t.Symbol == "" || t.Price <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid tick %q", b)
	}
	if err := h.writer.Store(ctx, &t); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
