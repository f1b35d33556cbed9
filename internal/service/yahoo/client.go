package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
)

const providerName = "yahoo"

// Client serves quotes, daily history and fundamentals from Yahoo Finance.
// Yahoo has no news or insider endpoint; those calls return no data.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Name() string { return providerName }

func (c *Client) Quote(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	q, err := quote.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return nil, nil
	}
	ts := time.Now().UTC()
	if q.RegularMarketTime > 0 {
		ts = time.Unix(int64(q.RegularMarketTime), 0).UTC()
	}
	return &models.PriceRecord{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		Open:          q.RegularMarketOpen,
		High:          q.RegularMarketDayHigh,
		Low:           q.RegularMarketDayLow,
		PrevClose:     q.RegularMarketPreviousClose,
		ChangePercent: q.RegularMarketChangePercent,
		Volume:        float64(q.RegularMarketVolume),
		Source:        providerName,
		Timestamp:     ts,
	}, nil
}

func (c *Client) History(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	})
	var out []models.PriceRecord
	for iter.Next() {
		bar := iter.Bar()
		out = append(out, models.PriceRecord{
			Symbol:    symbol,
			Price:     bar.Close.InexactFloat64(),
			Open:      bar.Open.InexactFloat64(),
			High:      bar.High.InexactFloat64(),
			Low:       bar.Low.InexactFloat64(),
			Volume:    float64(bar.Volume),
			Source:    providerName,
			Timestamp: time.Unix(int64(bar.Timestamp), 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo history %s: %w", symbol, err)
	}
	return out, nil
}

func (c *Client) News(context.Context, string, time.Time, time.Time) ([]models.NewsItem, error) {
	return nil, nil
}

func (c *Client) InsiderTrades(context.Context, string, time.Time, time.Time) ([]models.InsiderTrade, error) {
	return nil, nil
}

func (c *Client) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	e, err := equity.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("yahoo fundamentals %s: %w", symbol, err)
	}
	if e == nil {
		return nil, nil
	}
	return &models.Fundamentals{
		Symbol:        symbol,
		MarketCap:     float64(e.MarketCap),
		PERatio:       e.TrailingPE,
		EPS:           e.EpsTrailingTwelveMonths,
		DividendYield: e.TrailingAnnualDividendYield * 100,
		High52W:       e.FiftyTwoWeekHigh,
		Low52W:        e.FiftyTwoWeekLow,
		Timestamp:     time.Now().UTC(),
	}, nil
}
