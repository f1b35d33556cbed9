package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"StockPulse/internal/scheduler"
	"StockPulse/internal/usecase"
	pkgch "StockPulse/pkg/clickhouse"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	"StockPulse/pkg/logger"
	"StockPulse/pkg/queue"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

type Config struct {
	Environment string             `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Mode        string             `yaml:"mode" default:"mock" validate:"oneof=mock live"`
	Log         logger.Config      `yaml:"log"`
	Server      xhttp.ServerConfig `yaml:"server"`
	Market      MarketConfig       `yaml:"market"`
	Jobs        usecase.JobsConfig `yaml:"jobs"`
	Schedule    scheduler.Cadences `yaml:"schedule"`
	Prediction  PredictionConfig   `yaml:"prediction"`
	Finnhub     FinnhubConfig      `yaml:"finnhub"`
	Yahoo       YahooConfig        `yaml:"yahoo"`
	Mock        MockConfig         `yaml:"mock"`
	Stream      StreamConfig       `yaml:"stream"`
	Redis       RedisConfig        `yaml:"redis"`
	Queue       queue.Config       `yaml:"queue"`
	ClickHouse  pkgch.Config       `yaml:"clickhouse"`
	Kafka       pkgkafka.Config    `yaml:"kafka"`
}

type MarketConfig struct {
	Timezone string   `yaml:"timezone" default:"America/New_York"`
	Holidays []string `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
}

type PredictionConfig struct {
	MinConfidence    float64       `yaml:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	OpenTTL          time.Duration `yaml:"open_ttl" default:"30m"`
	ClosedTTL        time.Duration `yaml:"closed_ttl" default:"60m"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" default:"5s"`
	NewsHours        int           `yaml:"news_hours" default:"24" validate:"gte=1"`
	HistoryHours     int           `yaml:"history_hours" default:"72" validate:"gte=1"`
	SnapshotTTL      time.Duration `yaml:"snapshot_ttl" default:"15s"`
	RefreshPerMinute float64       `yaml:"refresh_per_minute" default:"6"`
	RefreshBurst     int           `yaml:"refresh_burst" default:"3"`
	AnomalyWindow    int           `yaml:"anomaly_window" default:"30" validate:"gte=5"`
	AnomalyZScore    float64       `yaml:"anomaly_zscore" default:"3" validate:"gt=0"`
	SchedulerLockTTL time.Duration `yaml:"scheduler_lock_ttl" default:"2m"`
}

type FinnhubConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
	StreamURL  string        `yaml:"stream_url" default:"wss://ws.finnhub.io"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	PerSecond  float64       `yaml:"per_second" default:"1"`
	Burst      int           `yaml:"burst" default:"30"`
	Retries    int           `yaml:"retries" default:"2"`
	PingPeriod time.Duration `yaml:"ping_interval" default:"30s"`
	Reconnect  time.Duration `yaml:"reconnect_delay" default:"5s"`
}

type YahooConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

type MockConfig struct {
	Seed       int64              `yaml:"seed" default:"42"`
	BasePrices map[string]float64 `yaml:"base_prices"`
}

// StreamConfig controls the live tick path. Backend "store" writes ticks
// directly; "kafka" publishes them and lets the consumer store them.
type StreamConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Backend    string  `yaml:"backend" default:"store" validate:"oneof=store kafka"`
	MaxPerSec  float64 `yaml:"max_per_second" default:"20"`
	BufferSize int     `yaml:"buffer_size" default:"2000"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"stockpulse"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// Load reads .env (if present), then the YAML file, then environment
// overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv(os.LookupEnv)

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	str("STOCKPULSE_ENV", &c.Environment)
	str("STOCKPULSE_MODE", &c.Mode)
	str("LOG_LEVEL", &c.Log.Level)
	list("STOCKPULSE_SYMBOLS", &c.Jobs.Symbols)
	str("FINNHUB_API_KEY", &c.Finnhub.APIKey)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	if v, ok := lookup("HTTP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := xhttp.Validate(c); err != nil {
		return err
	}
	if c.Mode == ModeLive && c.Finnhub.APIKey == "" {
		return errors.New("finnhub.api_key is required in live mode")
	}
	if c.Stream.Enabled && c.Mode != ModeLive {
		return errors.New("stream.enabled requires live mode")
	}
	if c.Stream.Backend == "kafka" && !c.Kafka.Enabled() {
		return errors.New("stream.backend kafka requires kafka.brokers")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	return nil
}
