// Package scheduler runs periodic sweeps on a cron schedule. Each sweep
// holds a distributed lock so only one worker instance runs it at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jadidihosein68/osaconnect/internal/pkg/distlock"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// DueEnqueuer enqueues messages whose schedule has arrived.
type DueEnqueuer interface {
	EnqueueDue(ctx context.Context, limit int) (int, error)
}

// LockFactory creates named distributed locks.
type LockFactory interface {
	New(key string) distlock.DistLock
}

// Config controls the sweep schedule.
type Config struct {
	Spec      string
	Timezone  string
	BatchSize int
	Timeout   time.Duration
}

const lockKey = "scheduler:enqueue_due"

// Scheduler sweeps due scheduled messages into the dispatch queue.
type Scheduler struct {
	cfg    Config
	due    DueEnqueuer
	locks  LockFactory
	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

// New creates a scheduler. Start must be called to begin sweeping.
func New(cfg Config, due DueEnqueuer, locks LockFactory) *Scheduler {
	if cfg.Spec == "" {
		cfg.Spec = "@every 30s"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &Scheduler{
		cfg:    cfg,
		due:    due,
		locks:  locks,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Scheduler) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("[Scheduler] unknown timezone %q, using UTC", tz)
		return time.UTC
	}
	return loc
}

// Start registers the sweep and starts the cron loop. Sweeps stop when ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	sched, err := s.parser.Parse(s.cfg.Spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.cfg.Spec, err)
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error("scheduled sweep failed", "error", err)
		}
	}))
	c.Start()
	s.c = c
	log.Printf("[Scheduler] started, spec=%s tz=%s", s.cfg.Spec, s.location())
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		log.Printf("[Scheduler] stopped")
	}
}

// RunOnce performs one sweep under the lock. It returns 0 without error
// when another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var n int
	err := distlock.WithLock(ctx, s.locks.New(lockKey), func(ctx context.Context) error {
		var err error
		n, err = s.due.EnqueueDue(ctx, s.cfg.BatchSize)
		return err
	})
	if errors.Is(err, distlock.ErrLocked) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("enqueue due messages: %w", err)
	}
	if n > 0 {
		logger.Info("scheduled messages enqueued", "count", n)
	}
	return n, nil
}
