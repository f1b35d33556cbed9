package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	xlogger "StockPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

const DefaultStreamURL = "wss://ws.finnhub.io"

var ErrNotConnected = errors.New("finnhub stream not connected")

// Stream is a live trade feed over Finnhub's websocket.
type Stream struct {
	apiKey         string
	streamURL      string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	logger         *xlogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

type StreamConfig struct {
	APIKey         string
	URL            string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

func NewStream(cfg StreamConfig, lgr *xlogger.Logger) *Stream {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	return &Stream{
		apiKey:         cfg.APIKey,
		streamURL:      cfg.URL,
		symbols:        cfg.Symbols,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		dialer:         websocket.DefaultDialer,
		logger:         lgr.With(xlogger.String("component", "finnhub_stream")),
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	u, err := url.Parse(s.streamURL)
	if err != nil {
		return fmt.Errorf("finnhub stream url: %w", err)
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("token", s.apiKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.logger.Info("connected", xlogger.String("url", u.Host))
	return nil
}

type subscribeMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return ErrNotConnected
	}
	for _, sym := range s.symbols {
		sym = strings.ToUpper(sym)
		if err := s.conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbol: sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.logger.Info("subscribed", xlogger.Strings("symbols", s.symbols))
	return nil
}

type tradeMessage struct {
	Type string        `json:"type"`
	Data []models.Tick `json:"data"`
}

// Read pumps trade prints until the connection fails or ctx ends. Ticks are
// dropped rather than blocking the socket when the consumer falls behind.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.conn != nil {
					_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		if conn == nil {
			errs <- ErrNotConnected
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var m tradeMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for i := range m.Data {
				t := m.Data[i]
				select {
				case ticks <- &t:
				default:
				}
			}
		}
	}()

	return ticks, errs
}

func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
