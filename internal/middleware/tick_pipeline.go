package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/service/ratelimit"
	xlogger "StockPulse/pkg/logger"
)

// Sink is the downstream stage the pipeline forwards ticks to.
type Sink interface {
	Process(ctx context.Context, t *models.Tick) error
}

// TickPipeline sits between a live stream and its sink. It validates ticks,
// throttles each symbol, and holds ticks in a bounded buffer while the sink
// is failing.
type TickPipeline struct {
	sink      Sink
	metrics   domrepo.Metrics
	logger    *xlogger.Logger
	limiter   *ratelimit.Limiter
	perSecond float64
	bufSize   int
	buf       chan *models.Tick
	transform func(*models.Tick) *models.Tick

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

type PipelineOption func(*TickPipeline)

// WithMaxPerSecond caps accepted ticks per symbol.
func WithMaxPerSecond(n float64) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.perSecond = n
		}
	}
}

func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *TickPipeline) { p.transform = fn }
}

func WithPipelineLogger(l *xlogger.Logger) PipelineOption {
	return func(p *TickPipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewTickPipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:      sink,
		metrics:   metrics,
		logger:    xlogger.Nop(),
		perSecond: 20,
		bufSize:   1000,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.limiter = ratelimit.New(p.perSecond, int(p.perSecond))
	p.buf = make(chan *models.Tick, p.bufSize)
	return p
}

// Start drains the buffer in the background until Stop.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.drain(ctx, p.stop, p.done)
}

func (p *TickPipeline) drain(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	const minBackoff = 50 * time.Millisecond
	backoff := minBackoff
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case t := <-p.buf:
			if err := p.sink.Process(ctx, t); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if backoff < 2*time.Second {
					backoff *= 2
				}
				select {
				case p.buf <- t:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				select {
				case <-time.After(backoff):
				case <-stop:
					return
				}
				continue
			}
			backoff = minBackoff
		}
	}
}

func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()
	<-done
}

// Buffered reports how many ticks are waiting for the sink.
func (p *TickPipeline) Buffered() int { return len(p.buf) }

// Process forwards one tick. Throttled ticks are dropped without error; a
// sink failure buffers the tick and is returned wrapped.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTick(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.limiter.Allow(t.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.buf <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			p.logger.Warn("tick buffer full, dropping", xlogger.Symbol(t.Symbol))
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	return nil
}

func validateTick(t *models.Tick) error {
	switch {
	case t == nil:
		return errors.New("tick nil")
	case t.Symbol == "":
		return errors.New("symbol empty")
	case t.Timestamp <= 0:
		return errors.New("timestamp invalid")
	case t.Price <= 0 || t.Volume < 0:
		return errors.New("price or volume out of range")
	}
	return nil
}
