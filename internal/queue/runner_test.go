package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBroker struct {
	mu       sync.Mutex
	enqueued []Task
	delays   []time.Duration
	acks     int
}

func (m *memBroker) Enqueue(_ context.Context, t Task, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, t)
	m.delays = append(m.delays, delay)
	return nil
}

func (m *memBroker) Receive(context.Context, int) ([]Delivery, error) { return nil, nil }
func (m *memBroker) Close() error                                     { return nil }

func (m *memBroker) delivery(t Task) Delivery {
	return Delivery{Task: t, Ack: func(context.Context) error {
		m.mu.Lock()
		m.acks++
		m.mu.Unlock()
		return nil
	}}
}

func TestRunnerRetriesThenExhausts(t *testing.T) {
	b := &memBroker{}
	r := NewRunner(b, 1)

	var exhausted []Task
	r.Handle(KindDispatchMessage, func(context.Context, Task) error {
		return errors.New("provider timeout")
	}, Policy{
		MaxRetries:  3,
		Delay:       15 * time.Second,
		OnExhausted: func(_ context.Context, t Task, _ error) { exhausted = append(exhausted, t) },
	})

	task := NewTask(KindDispatchMessage, "org-1", "msg-1")
	for i := 0; i < 4; i++ {
		r.Process(context.Background(), b.delivery(task))
		if i < 3 {
			require.Len(t, b.enqueued, i+1)
			task = b.enqueued[i]
			assert.Equal(t, i+1, task.Attempt)
			assert.Equal(t, 15*time.Second, b.delays[i])
		}
	}

	assert.Len(t, b.enqueued, 3)
	require.Len(t, exhausted, 1)
	assert.Equal(t, 3, exhausted[0].Attempt)
	assert.Equal(t, 4, b.acks)
}

func TestRunnerNoRetry(t *testing.T) {
	b := &memBroker{}
	r := NewRunner(b, 1)
	called := 0
	r.Handle(KindRunEmailJob, func(context.Context, Task) error {
		return NoRetry(errors.New("job not found"))
	}, Policy{MaxRetries: 2, OnExhausted: func(context.Context, Task, error) { called++ }})

	r.Process(context.Background(), b.delivery(NewTask(KindRunEmailJob, "org-1", "job-1")))
	assert.Empty(t, b.enqueued)
	assert.Equal(t, 1, called)
	assert.Equal(t, 1, b.acks)
}

func TestRunnerSuccessAndUnknownKind(t *testing.T) {
	b := &memBroker{}
	r := NewRunner(b, 1)
	handled := 0
	r.Handle(KindDispatchMessage, func(context.Context, Task) error { handled++; return nil }, Policy{MaxRetries: 3})

	r.Process(context.Background(), b.delivery(NewTask(KindDispatchMessage, "org-1", "m")))
	r.Process(context.Background(), b.delivery(NewTask("mystery", "org-1", "x")))
	assert.Equal(t, 1, handled)
	assert.Equal(t, 2, b.acks)
	assert.Empty(t, b.enqueued)
}

func TestRunnerRunEndToEndWithRedis(t *testing.T) {
	_, client := setupTestRedis(t)
	b := NewRedisBroker(client, "e2e")
	b.SetPollInterval(5 * time.Millisecond)

	done := make(chan string, 1)
	r := NewRunner(b, 2)
	r.Handle(KindDispatchMessage, func(_ context.Context, t Task) error {
		done <- t.RefID
		return nil
	}, Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.NoError(t, b.Enqueue(ctx, NewTask(KindDispatchMessage, "org-1", "msg-42"), 0))
	select {
	case ref := <-done:
		assert.Equal(t, "msg-42", ref)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}
}
