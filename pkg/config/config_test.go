package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
jobs:
  symbols: [AAPL, MSFT]
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Mode != ModeMock || c.Environment != "development" {
		t.Errorf("mode/env = %s/%s", c.Mode, c.Environment)
	}
	if c.Prediction.OpenTTL != 30*time.Minute || c.Prediction.ClosedTTL != time.Hour || c.Prediction.MinConfidence != 60 {
		t.Errorf("prediction defaults = %+v", c.Prediction)
	}
	if c.Schedule.PriceRefresh != time.Minute || c.Schedule.Insider != 24*time.Hour {
		t.Errorf("schedule defaults = %+v", c.Schedule)
	}
	if c.Server.Port != 8080 || c.Log.Level != "info" || c.Kafka.Topics.Predictions != "stockpulse.predictions" {
		t.Errorf("ambient defaults: port %d level %s topic %s", c.Server.Port, c.Log.Level, c.Kafka.Topics.Predictions)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STOCKPULSE_SYMBOLS", "nvda, amd ,")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CH_DB", "analytics")
	path := writeConfig(t, `
jobs:
  symbols: [AAPL]
clickhouse:
  database: ${CH_DB}
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Jobs.Symbols) != 2 || c.Jobs.Symbols[1] != "AMD" {
		t.Errorf("symbols = %v", c.Jobs.Symbols)
	}
	if c.Server.Port != 9090 || len(c.Kafka.Brokers) != 2 || c.ClickHouse.Database != "analytics" {
		t.Errorf("overrides not applied: %+v", c)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := map[string]string{
		"no symbols":        "mode: mock\n",
		"live without key":  "mode: live\njobs:\n  symbols: [AAPL]\n",
		"bad mode":          "mode: paper\njobs:\n  symbols: [AAPL]\n",
		"kafka ticks alone": "mode: live\nfinnhub:\n  api_key: k\nstream:\n  enabled: true\n  backend: kafka\njobs:\n  symbols: [AAPL]\n",
		"bad holiday":       "market:\n  holidays: [2025-13-01]\njobs:\n  symbols: [AAPL]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
