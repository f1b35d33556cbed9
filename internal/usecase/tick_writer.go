package usecase

import (
	"context"
	"errors"
	"fmt"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
)

const (
	TickBackendStore = "store"
	TickBackendKafka = "kafka"
)

// TickWriter routes live ticks either straight into the market store or onto
// the tick topic, from which KafkaTicksHandler stores them.
type TickWriter struct {
	backend string
	store   domrepo.MarketStore
	pub     domrepo.TickPublisher
	metrics domrepo.Metrics
}

func NewTickWriter(backend string, store domrepo.MarketStore, pub domrepo.TickPublisher, metrics domrepo.Metrics) (*TickWriter, error) {
	switch backend {
	case TickBackendStore:
		if store == nil {
			return nil, errors.New("tick writer: store backend needs a store")
		}
	case TickBackendKafka:
		if pub == nil {
			return nil, errors.New("tick writer: kafka backend needs a publisher")
		}
	default:
		return nil, fmt.Errorf("tick writer: unknown backend %q", backend)
	}
	return &TickWriter{backend: backend, store: store, pub: pub, metrics: metrics}, nil
}

func (w *TickWriter) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return errors.New("tick is nil")
	}
	var err error
	if w.backend == TickBackendKafka {
		err = w.pub.PublishTick(ctx, t)
	} else {
		err = w.Store(ctx, t)
	}
	if err != nil {
		w.metrics.RecordError("tick_write")
		return fmt.Errorf("write tick %s: %w", t.Symbol, err)
	}
	return nil
}

// Store records the tick as the symbol's latest price. Change is measured
// against the previous close carried by the last stored quote.
func (w *TickWriter) Store(ctx context.Context, t *models.Tick) error {
	rec := models.PriceRecord{
		Symbol:    t.Symbol,
		Price:     t.Price,
		Volume:    t.Volume,
		Source:    "stream",
		Timestamp: t.Time(),
	}
	last, err := w.store.GetLatestPrice(ctx, t.Symbol)
	if err != nil {
		return err
	}
	if last != nil && last.PrevClose > 0 {
		rec.PrevClose = last.PrevClose
		rec.ChangePercent = (t.Price - last.PrevClose) / last.PrevClose * 100
	}
	if err := w.store.InsertPrices(ctx, []models.PriceRecord{rec}); err != nil {
		return err
	}
	w.metrics.RecordLastPrice(t.Symbol, t.Price)
	return nil
}
