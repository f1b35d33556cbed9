package clickhouse

import (
	"context"
	"net/url"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{}
	for _, opt := range (Config{
		Host:        "ch.local",
		Port:        9440,
		Database:    "stockpulse",
		User:        "svc",
		Password:    "p@ss",
		AsyncInsert: true,
		DialTimeout: 3 * time.Second,
		MaxExecTime: 30 * time.Second,
	}).Options() {
		opt(&cfg)
	}

	u, err := url.Parse(buildDSN(cfg))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9440" || u.Path != "/stockpulse" {
		t.Fatalf("dsn = %s", u)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Errorf("password = %q", pw)
	}
	q := u.Query()
	if q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" {
		t.Errorf("async params = %v", q)
	}
	if q.Get("max_execution_time") != "30" || q.Get("dial_timeout") != "3s" {
		t.Errorf("timeouts = %v", q)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(context.Background()); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty config should be disabled")
	}
}
