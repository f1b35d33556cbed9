package usecase

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/repository"
	"StockPulse/pkg/metrics"
)

type tickSpy struct {
	ticks []*models.Tick
	err   error
}

func (s *tickSpy) PublishTick(_ context.Context, t *models.Tick) error {
	if s.err != nil {
		return s.err
	}
	s.ticks = append(s.ticks, t)
	return nil
}

func TestTickWriterStoreCarriesPrevClose(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMarketStore(testClock())
	_ = store.InsertPrices(ctx, []models.PriceRecord{{
		Symbol: "AAPL", Price: 100, PrevClose: 98, Timestamp: testNow.Add(-time.Minute),
	}})
	w, err := NewTickWriter(TickBackendStore, store, nil, metrics.Nop{})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Process(ctx, &models.Tick{Symbol: "AAPL", Price: 99.96, Volume: 5, Timestamp: testNow.UnixMilli()}); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := store.GetLatestPrice(ctx, "AAPL")
	if got == nil || got.Price != 99.96 || got.Source != "stream" {
		t.Fatalf("latest = %+v", got)
	}
	if got.ChangePercent < 1.99 || got.ChangePercent > 2.01 {
		t.Errorf("change = %v, want 2%%", got.ChangePercent)
	}
}

func TestTickWriterKafkaBackend(t *testing.T) {
	spy := &tickSpy{}
	w, err := NewTickWriter(TickBackendKafka, nil, spy, metrics.Nop{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Process(context.Background(), &models.Tick{Symbol: "MSFT", Price: 1, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if len(spy.ticks) != 1 {
		t.Fatalf("published %d", len(spy.ticks))
	}

	spy.err = errors.New("broker down")
	if err := w.Process(context.Background(), &models.Tick{Symbol: "MSFT", Price: 1, Timestamp: 1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTickWriterRejectsBadBackend(t *testing.T) {
	if _, err := NewTickWriter("clickhouse", nil, nil, metrics.Nop{}); err == nil {
		t.Fatal("expected unknown backend error")
	}
	if _, err := NewTickWriter(TickBackendKafka, nil, nil, metrics.Nop{}); err == nil {
		t.Fatal("expected missing publisher error")
	}
}

func TestKafkaTicksHandlerStoresSecondsTimestamps(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMarketStore(testClock())
	h, err := NewKafkaTicksHandler("ticks", store, metrics.Nop{})
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte(`{"s":" nvda ","p":120.5,"v":3,"t":` + strconv.FormatInt(testNow.Unix(), 10) + `}`)
	if err := h.Handle(ctx, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := store.GetLatestPrice(ctx, "NVDA")
	if got == nil || !got.Timestamp.Equal(testNow) {
		t.Fatalf("latest = %+v", got)
	}
	if err := h.Handle(ctx, []byte(`{bad`)); err == nil {
		t.Fatal("expected decode error")
	}
}
