package mockfeed

import (
	"context"
	"testing"
	"time"
)

var fixed = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func TestHistoryDeterministic(t *testing.T) {
	ctx := context.Background()
	a := New(42, WithNow(func() time.Time { return fixed }))
	b := New(42, WithNow(func() time.Time { return fixed }))

	ha, err := a.History(ctx, "aapl", fixed.Add(-72*time.Hour), fixed)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	hb, _ := b.History(ctx, "AAPL", fixed.Add(-72*time.Hour), fixed)
	if len(ha) != 73 || len(hb) != len(ha) {
		t.Fatalf("len = %d/%d, want 73", len(ha), len(hb))
	}
	for i := range ha {
		if ha[i] != hb[i] {
			t.Fatalf("bar %d differs: %+v vs %+v", i, ha[i], hb[i])
		}
		if i > 0 && !ha[i].Timestamp.After(ha[i-1].Timestamp) {
			t.Fatalf("history not ascending at %d", i)
		}
	}
}

func TestQuoteMatchesLatestBar(t *testing.T) {
	ctx := context.Background()
	p := New(7, WithBasePrice("MSFT", 400), WithNow(func() time.Time { return fixed }))
	q, err := p.Quote(ctx, "MSFT")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	hist, _ := p.History(ctx, "MSFT", fixed.Add(-time.Hour), fixed)
	if q.Price != hist[len(hist)-1].Price {
		t.Fatalf("quote %v != last bar %v", q.Price, hist[len(hist)-1].Price)
	}
	if q.Price < 400*0.9 || q.Price > 400*1.1 {
		t.Fatalf("price %v drifted outside band around base", q.Price)
	}
}

func TestNewsAndInsiders(t *testing.T) {
	ctx := context.Background()
	p := New(1, WithNow(func() time.Time { return fixed }))
	news, err := p.News(ctx, "AAPL", fixed.Add(-24*time.Hour), fixed)
	if err != nil || len(news) == 0 {
		t.Fatalf("news = %v, err = %v", news, err)
	}
	trades, err := p.InsiderTrades(ctx, "AAPL", fixed.AddDate(0, 0, -30), fixed)
	if err != nil || len(trades) == 0 {
		t.Fatalf("trades = %v, err = %v", trades, err)
	}
	for _, tr := range trades {
		if (tr.Change < 0) != (tr.TransactionCode == "S") {
			t.Errorf("code %q inconsistent with change %d", tr.TransactionCode, tr.Change)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(1).Quote(ctx, "AAPL"); err == nil {
		t.Fatal("expected context error")
	}
}
