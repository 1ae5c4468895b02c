package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// Handler processes one task. A returned error triggers the retry policy.
type Handler func(ctx context.Context, t Task) error

// ExhaustedFunc runs once when a task fails its final attempt.
type ExhaustedFunc func(ctx context.Context, t Task, err error)

// Policy bounds the retries of one task kind.
type Policy struct {
	MaxRetries  int
	Delay       time.Duration
	OnExhausted ExhaustedFunc
}

// ErrNoRetry wraps errors that must not be retried.
var ErrNoRetry = errors.New("do not retry")

// NoRetry marks err as permanent; the exhausted hook still runs.
func NoRetry(err error) error { return fmt.Errorf("%w: %w", ErrNoRetry, err) }

type route struct {
	handler Handler
	policy  Policy
}

// Runner pulls tasks from a broker and routes them by kind.
type Runner struct {
	broker      Broker
	concurrency int
	batch       int

	mu     sync.RWMutex
	routes map[string]route
}

// NewRunner creates a runner with the given number of concurrent loops.
func NewRunner(broker Broker, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{broker: broker, concurrency: concurrency, batch: 1, routes: make(map[string]route)}
}

// Handle registers the handler and retry policy for kind.
func (r *Runner) Handle(kind string, h Handler, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[kind] = route{handler: h, policy: p}
}

// Run consumes until ctx is cancelled. In-flight tasks finish first.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		deliveries, err := r.broker.Receive(ctx, r.batch)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			logger.Warn("queue receive failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, d := range deliveries {
			r.Process(context.WithoutCancel(ctx), d)
		}
	}
}

// Process handles one delivery: run the handler, re-enqueue on failure
// while attempts remain, and acknowledge the delivery in every case except
// a failed re-enqueue, which leaves it for broker redelivery.
func (r *Runner) Process(ctx context.Context, d Delivery) {
	r.mu.RLock()
	rt, ok := r.routes[d.Task.Kind]
	r.mu.RUnlock()
	if !ok {
		logger.Warn("queue task with no handler dropped", "kind", d.Task.Kind, "task_id", d.Task.ID)
		r.ack(ctx, d)
		return
	}

	err := rt.handler(ctx, d.Task)
	if err == nil {
		r.ack(ctx, d)
		return
	}

	if !errors.Is(err, ErrNoRetry) && d.Task.Attempt < rt.policy.MaxRetries {
		next := d.Task.Retry()
		if qerr := r.broker.Enqueue(ctx, next, rt.policy.Delay); qerr != nil {
			logger.Error("queue retry enqueue failed", "kind", d.Task.Kind, "ref_id", d.Task.RefID, "error", qerr)
			return
		}
		logger.Info("queue task retry scheduled", "kind", d.Task.Kind, "ref_id", d.Task.RefID,
			"attempt", next.Attempt, "delay", rt.policy.Delay.String(), "error", err)
		r.ack(ctx, d)
		return
	}

	logger.Warn("queue task exhausted", "kind", d.Task.Kind, "ref_id", d.Task.RefID,
		"attempt", d.Task.Attempt, "error", err)
	if rt.policy.OnExhausted != nil {
		rt.policy.OnExhausted(ctx, d.Task, err)
	}
	r.ack(ctx, d)
}

func (r *Runner) ack(ctx context.Context, d Delivery) {
	if d.Ack == nil {
		return
	}
	if err := d.Ack(ctx); err != nil {
		logger.Warn("queue ack failed", "task_id", d.Task.ID, "error", err)
	}
}
