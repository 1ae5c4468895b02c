package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task kinds.
const (
	KindDispatchMessage = "dispatch_message"
	KindRunEmailJob     = "run_email_job"
)

// ErrClosed is returned by a broker that has been closed.
var ErrClosed = errors.New("queue closed")

// Task is one unit of queued work referring to a persisted row.
type Task struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	OrganizationID string    `json:"organization_id"`
	RefID          string    `json:"ref_id"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// NewTask creates a first-attempt task.
func NewTask(kind, orgID, refID string) Task {
	return Task{
		ID:             uuid.New().String(),
		Kind:           kind,
		OrganizationID: orgID,
		RefID:          refID,
		EnqueuedAt:     time.Now().UTC(),
	}
}

// Retry returns the next attempt of t.
func (t Task) Retry() Task {
	next := t
	next.Attempt++
	next.EnqueuedAt = time.Now().UTC()
	return next
}

// Delivery is a received task. Ack must be called once the task has been
// handled, including when it was re-enqueued for retry.
type Delivery struct {
	Task Task
	Ack  func(ctx context.Context) error
}

// Enqueuer schedules tasks. Services depend on this narrow interface.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Task, delay time.Duration) error
}

// Broker stores and delivers tasks.
type Broker interface {
	Enqueuer
	// Receive returns up to max ready tasks. It may block briefly and
	// returns an empty slice when nothing is ready.
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Close() error
}
