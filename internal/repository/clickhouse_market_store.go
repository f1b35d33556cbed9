package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	pkgch "StockPulse/pkg/clickhouse"
	xlogger "StockPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CHMarketStore persists market state in ClickHouse. Tables use
// ReplacingMergeTree so re-ingesting the same bar or article is idempotent;
// reads use FINAL where a duplicate would change the answer.
type CHMarketStore struct {
	client *pkgch.Client
	db     *sql.DB
	dbName string
	logger *xlogger.Logger
	now    func() time.Time
}

var _ domrepo.MarketStore = (*CHMarketStore)(nil)

func NewCHMarketStore(client *pkgch.Client, database string, lgr *xlogger.Logger) *CHMarketStore {
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	return &CHMarketStore{
		client: client,
		db:     client.DB(),
		dbName: database,
		logger: lgr.With(xlogger.String("component", "clickhouse_store")),
		now:    time.Now,
	}
}

func (s *CHMarketStore) table(name string) string { return s.dbName + "." + name }

// SchemaStatements returns the DDL for every table the store touches.
func SchemaStatements(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.prices (
			symbol LowCardinality(String), ts DateTime64(3, 'UTC'),
			price Float64, open Float64, high Float64, low Float64, prev_close Float64,
			change_percent Float64, volume Float64, source LowCardinality(String)
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.indicators (
			symbol LowCardinality(String), ts DateTime64(3, 'UTC'),
			rsi Float64, macd Float64, macd_signal Float64, sma_20 Float64, sma_50 Float64,
			ema_12 Float64, ema_26 Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.fundamentals (
			symbol LowCardinality(String), ts DateTime64(3, 'UTC'),
			market_cap Float64, pe_ratio Float64, eps Float64, dividend_yield Float64,
			beta Float64, high_52w Float64, low_52w Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.news (
			id String, symbol LowCardinality(String), headline String, summary String,
			source LowCardinality(String), url String, sentiment Float64, relevance Float64,
			published_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, id)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.insider_trades (
			symbol LowCardinality(String), name String, shares Int64, change Int64, price Float64,
			transaction_code LowCardinality(String), transaction_date DateTime64(3, 'UTC'),
			filed_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, transaction_date, name, change)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.anomalies (
			symbol LowCardinality(String), ts DateTime64(3, 'UTC'), type LowCardinality(String),
			severity Float64, ret Float64, volatility Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts, type)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.predictions (
			id String, symbol LowCardinality(String), model LowCardinality(String),
			current_price Float64, predicted_price String, range_low Float64, range_high Float64,
			target_price Float64, horizon_days UInt16, confidence Float64, rating Int32,
			recommendation LowCardinality(String), risk_level LowCardinality(String),
			reasoning String, stability_score Float64, data_quality Float64,
			created_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree ORDER BY (symbol, model, created_at)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.api_call_logs (
			provider LowCardinality(String), endpoint LowCardinality(String), success UInt8,
			latency_ms Int64, error String, created_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree ORDER BY (provider, created_at) TTL toDateTime(created_at) + INTERVAL 30 DAY`, db),
	}
}

func (s *CHMarketStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, SchemaStatements(s.dbName))
}

func (s *CHMarketStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *CHMarketStore) Close() error { return s.client.Close() }

// price4 rounds to four decimal places so float noise from providers does
// not defeat ReplacingMergeTree deduplication.
func price4(v float64) float64 { return decimal.NewFromFloat(v).Round(4).InexactFloat64() }

// batch runs one prepared insert per row inside a transaction; the driver
// turns this into a single block write.
func (s *CHMarketStore) batch(ctx context.Context, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *CHMarketStore) InsertPrices(ctx context.Context, prices []models.PriceRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, ts, price, open, high, low, prev_close, change_percent, volume, source)`, s.table("prices"))
	err := s.batch(ctx, q, len(prices), func(i int) []any {
		p := prices[i]
		return []any{symbolKey(p.Symbol), p.Timestamp.UTC(), price4(p.Price), price4(p.Open), price4(p.High),
			price4(p.Low), price4(p.PrevClose), p.ChangePercent, p.Volume, p.Source}
	})
	return s.wrap("insert prices", err)
}

func (s *CHMarketStore) InsertIndicators(ctx context.Context, ind models.Indicators) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, ts, rsi, macd, macd_signal, sma_20, sma_50, ema_12, ema_26)`, s.table("indicators"))
	err := s.batch(ctx, q, 1, func(int) []any {
		return []any{symbolKey(ind.Symbol), ind.Timestamp.UTC(), ind.RSI, ind.MACD, ind.MACDSignal,
			ind.SMA20, ind.SMA50, ind.EMA12, ind.EMA26}
	})
	return s.wrap("insert indicators", err)
}

func (s *CHMarketStore) InsertFundamentals(ctx context.Context, f models.Fundamentals) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, ts, market_cap, pe_ratio, eps, dividend_yield, beta, high_52w, low_52w)`, s.table("fundamentals"))
	err := s.batch(ctx, q, 1, func(int) []any {
		return []any{symbolKey(f.Symbol), f.Timestamp.UTC(), f.MarketCap, f.PERatio, f.EPS,
			f.DividendYield, f.Beta, f.High52W, f.Low52W}
	})
	return s.wrap("insert fundamentals", err)
}

func (s *CHMarketStore) InsertNews(ctx context.Context, items []models.NewsItem) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, symbol, headline, summary, source, url, sentiment, relevance, published_at)`, s.table("news"))
	err := s.batch(ctx, q, len(items), func(i int) []any {
		n := items[i]
		return []any{n.ID, symbolKey(n.Symbol), n.Headline, n.Summary, n.Source, n.URL,
			n.Sentiment, n.Relevance, n.PublishedAt.UTC()}
	})
	return s.wrap("insert news", err)
}

func (s *CHMarketStore) InsertInsiderTrades(ctx context.Context, trades []models.InsiderTrade) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, name, shares, change, price, transaction_code, transaction_date, filed_at)`, s.table("insider_trades"))
	err := s.batch(ctx, q, len(trades), func(i int) []any {
		t := trades[i]
		return []any{symbolKey(t.Symbol), t.Name, t.Shares, t.Change, price4(t.Price),
			t.TransactionCode, t.TransactionDate.UTC(), t.FiledAt.UTC()}
	})
	return s.wrap("insert insider trades", err)
}

func (s *CHMarketStore) InsertAnomalies(ctx context.Context, anomalies []models.MarketAnomaly) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, ts, type, severity, ret, volatility)`, s.table("anomalies"))
	err := s.batch(ctx, q, len(anomalies), func(i int) []any {
		a := anomalies[i]
		return []any{symbolKey(a.Symbol), a.Timestamp.UTC(), a.Type, a.Severity, a.Return, a.Volatility}
	})
	return s.wrap("insert anomalies", err)
}

func (s *CHMarketStore) InsertPredictionRecord(ctx context.Context, rec models.PredictionRecord) (models.PredictionRecord, error) {
	rec.Symbol = symbolKey(rec.Symbol)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, symbol, model, current_price, predicted_price, range_low, range_high,
		target_price, horizon_days, confidence, rating, recommendation, risk_level, reasoning,
		stability_score, data_quality, created_at)`, s.table("predictions"))
	err := s.batch(ctx, q, 1, func(int) []any {
		return []any{rec.ID, rec.Symbol, rec.ModelUsed, price4(rec.CurrentPrice), rec.PredictedPrice,
			price4(rec.PriceRangeLow), price4(rec.PriceRangeHigh), price4(rec.TargetPrice), uint16(rec.HorizonDays),
			rec.Confidence, int32(rec.Rating), string(rec.Recommendation), string(rec.RiskLevel),
			rec.ReasoningText(), rec.StabilityScore, rec.DataQuality, rec.CreatedAt}
	})
	if err != nil {
		return models.PredictionRecord{}, s.wrap("insert prediction", err)
	}
	return rec, nil
}

func (s *CHMarketStore) InsertAPICallLog(ctx context.Context, provider, endpoint string, success bool, latencyMs int64, errMsg string) error {
	q := fmt.Sprintf(`INSERT INTO %s (provider, endpoint, success, latency_ms, error, created_at)`, s.table("api_call_logs"))
	var ok uint8
	if success {
		ok = 1
	}
	err := s.batch(ctx, q, 1, func(int) []any {
		return []any{provider, endpoint, ok, latencyMs, errMsg, s.now().UTC()}
	})
	return s.wrap("insert api call log", err)
}

func (s *CHMarketStore) GetLatestPrice(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, price, open, high, low, prev_close, change_percent, volume, source
		FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, s.table("prices"))
	var p models.PriceRecord
	err := s.db.QueryRowContext(ctx, q, symbolKey(symbol)).Scan(&p.Symbol, &p.Timestamp, &p.Price, &p.Open,
		&p.High, &p.Low, &p.PrevClose, &p.ChangePercent, &p.Volume, &p.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("latest price", err)
	}
	return &p, nil
}

func (s *CHMarketStore) GetLatestTechnicalIndicators(ctx context.Context, symbol string) (*models.Indicators, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, rsi, macd, macd_signal, sma_20, sma_50, ema_12, ema_26
		FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, s.table("indicators"))
	var ind models.Indicators
	err := s.db.QueryRowContext(ctx, q, symbolKey(symbol)).Scan(&ind.Symbol, &ind.Timestamp, &ind.RSI, &ind.MACD,
		&ind.MACDSignal, &ind.SMA20, &ind.SMA50, &ind.EMA12, &ind.EMA26)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("latest indicators", err)
	}
	return &ind, nil
}

func (s *CHMarketStore) GetLatestFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, market_cap, pe_ratio, eps, dividend_yield, beta, high_52w, low_52w
		FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, s.table("fundamentals"))
	var f models.Fundamentals
	err := s.db.QueryRowContext(ctx, q, symbolKey(symbol)).Scan(&f.Symbol, &f.Timestamp, &f.MarketCap, &f.PERatio,
		&f.EPS, &f.DividendYield, &f.Beta, &f.High52W, &f.Low52W)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("latest fundamentals", err)
	}
	return &f, nil
}

func (s *CHMarketStore) GetRecentNews(ctx context.Context, symbol string, hours int) ([]models.NewsItem, error) {
	q := fmt.Sprintf(`SELECT id, symbol, headline, summary, source, url, sentiment, relevance, published_at
		FROM %s FINAL WHERE symbol = ? AND published_at >= ? ORDER BY published_at DESC`, s.table("news"))
	rows, err := s.db.QueryContext(ctx, q, symbolKey(symbol), s.since(hours))
	if err != nil {
		return nil, s.wrap("recent news", err)
	}
	defer rows.Close()

	var out []models.NewsItem
	for rows.Next() {
		var n models.NewsItem
		if err := rows.Scan(&n.ID, &n.Symbol, &n.Headline, &n.Summary, &n.Source, &n.URL,
			&n.Sentiment, &n.Relevance, &n.PublishedAt); err != nil {
			return nil, s.wrap("scan news", err)
		}
		out = append(out, n)
	}
	return out, s.wrap("recent news rows", rows.Err())
}

func (s *CHMarketStore) GetPriceHistory(ctx context.Context, symbol string, hours int) ([]models.PriceRecord, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, price, open, high, low, prev_close, change_percent, volume, source
		FROM %s FINAL WHERE symbol = ? AND ts >= ? ORDER BY ts ASC`, s.table("prices"))
	rows, err := s.db.QueryContext(ctx, q, symbolKey(symbol), s.since(hours))
	if err != nil {
		return nil, s.wrap("price history", err)
	}
	defer rows.Close()

	var out []models.PriceRecord
	for rows.Next() {
		var p models.PriceRecord
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.Price, &p.Open, &p.High, &p.Low,
			&p.PrevClose, &p.ChangePercent, &p.Volume, &p.Source); err != nil {
			return nil, s.wrap("scan price", err)
		}
		out = append(out, p)
	}
	return out, s.wrap("price history rows", rows.Err())
}

func (s *CHMarketStore) GetRecentInsiderTrades(ctx context.Context, symbol string, limit int) ([]models.InsiderTrade, error) {
	if limit <= 0 {
		limit = 10
	}
	q := fmt.Sprintf(`SELECT symbol, name, shares, change, price, transaction_code, transaction_date, filed_at
		FROM %s FINAL WHERE symbol = ? ORDER BY transaction_date DESC LIMIT ?`, s.table("insider_trades"))
	rows, err := s.db.QueryContext(ctx, q, symbolKey(symbol), limit)
	if err != nil {
		return nil, s.wrap("insider trades", err)
	}
	defer rows.Close()

	var out []models.InsiderTrade
	for rows.Next() {
		var t models.InsiderTrade
		if err := rows.Scan(&t.Symbol, &t.Name, &t.Shares, &t.Change, &t.Price,
			&t.TransactionCode, &t.TransactionDate, &t.FiledAt); err != nil {
			return nil, s.wrap("scan insider trade", err)
		}
		out = append(out, t)
	}
	return out, s.wrap("insider trade rows", rows.Err())
}

func (s *CHMarketStore) GetLatestPrediction(ctx context.Context, symbol, model string) (*models.PredictionRecord, error) {
	q := fmt.Sprintf(`SELECT id, symbol, model, current_price, predicted_price, range_low, range_high,
		target_price, horizon_days, confidence, rating, recommendation, risk_level, reasoning,
		stability_score, data_quality, created_at
		FROM %s WHERE symbol = ? AND (? = '' OR model = ?) ORDER BY created_at DESC LIMIT 1`, s.table("predictions"))
	var (
		rec       models.PredictionRecord
		horizon   uint16
		rating    int32
		reco      string
		risk      string
		reasoning string
	)
	err := s.db.QueryRowContext(ctx, q, symbolKey(symbol), model, model).Scan(&rec.ID, &rec.Symbol, &rec.ModelUsed,
		&rec.CurrentPrice, &rec.PredictedPrice, &rec.PriceRangeLow, &rec.PriceRangeHigh, &rec.TargetPrice,
		&horizon, &rec.Confidence, &rating, &reco, &risk, &reasoning,
		&rec.StabilityScore, &rec.DataQuality, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("latest prediction", err)
	}
	rec.HorizonDays = int(horizon)
	rec.Rating = int(rating)
	rec.Recommendation = models.Recommendation(reco)
	rec.RiskLevel = models.RiskLevel(risk)
	rec.Reasoning = splitReasoning(reasoning)
	return &rec, nil
}

func (s *CHMarketStore) since(hours int) time.Time {
	return s.now().UTC().Add(-time.Duration(hours) * time.Hour)
}

func (s *CHMarketStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	s.logger.Error("clickhouse "+op+" failed", xlogger.Error(err))
	return fmt.Errorf("clickhouse %s: %w", op, err)
}

func splitReasoning(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "; ")
}
