package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StockPulse/pkg/logger"
)

var ErrQueueFull = errors.New("queue full")

// LocalQueue runs jobs in process on a bounded channel. It is used when no
// Redis is configured; messages do not survive a restart.
type LocalQueue struct {
	logger *logger.Logger
	config Config
	mu     sync.RWMutex
	jobs   map[string]Job
	ch     chan Message
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewLocalQueue(lgr *logger.Logger, config Config, jobs ...Job) *LocalQueue {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &LocalQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job, len(jobs)),
		ch:     make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		q.jobs[j.Type()] = j
	}
	return q
}

// RegisterJob adds a handler; a type already registered keeps its first job.
func (q *LocalQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.Type()]; !exists {
		q.jobs[job.Type()] = job
	}
}

func (q *LocalQueue) job(msgType string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[msgType]
	return j, ok
}

func (q *LocalQueue) Start() error {
	q.once.Do(func() {
		for i := 0; i < q.config.Workers; i++ {
			q.wg.Add(1)
			go q.worker()
		}
	})
	return nil
}

func (q *LocalQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	if _, ok := q.job(msgType); !ok {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return "", err
	}
	select {
	case q.ch <- msg:
		return msg.ID, nil
	default:
		return "", ErrQueueFull
	}
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			q.handle(msg)
		}
	}
}

func (q *LocalQueue) handle(msg Message) {
	job, ok := q.job(msg.Type)
	if !ok {
		return
	}
	for {
		err := job.Handle(q.ctx, msg.Payload)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		msg.Attempts++
		q.logger.Error("local job failed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.Error(err))
		if msg.Attempts > q.config.RetryLimit {
			return
		}
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(q.config.RetryDelay):
		}
	}
}

func (q *LocalQueue) Stop(ctx context.Context) error {
	q.cancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}
