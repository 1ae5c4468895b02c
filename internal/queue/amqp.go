package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// AMQPChannel is the slice of *amqp.Channel used by AMQPBroker.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPBroker delivers tasks through a durable queue. Delayed tasks are
// parked on "<name>.delay" with a per-message TTL and dead-lettered back
// onto the main queue when it expires.
type AMQPBroker struct {
	ch        AMQPChannel
	conn      *amqp.Connection
	name      string
	delayName string

	once       sync.Once
	deliveries <-chan amqp.Delivery
	consumeErr error
	poll       time.Duration
}

// DialAMQP connects to url and declares the queues for name.
func DialAMQP(url, name string, prefetch int) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open AMQP channel: %w", err)
	}
	b, err := NewAMQPBroker(ch, name, prefetch)
	if err != nil {
		conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

// NewAMQPBroker declares the main and delay queues on ch.
func NewAMQPBroker(ch AMQPChannel, name string, prefetch int) (*AMQPBroker, error) {
	b := &AMQPBroker{ch: ch, name: name, delayName: name + ".delay", poll: time.Second}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": name,
	}
	if _, err := ch.QueueDeclare(b.delayName, true, false, false, false, args); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", b.delayName, err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return b, nil
}

// Enqueue publishes t, routing it through the delay queue when delay > 0.
func (b *AMQPBroker) Enqueue(_ context.Context, t Task, delay time.Duration) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    t.ID,
		Body:         body,
	}
	key := b.name
	if delay > 0 {
		key = b.delayName
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}
	if err := b.ch.Publish("", key, false, false, msg); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Receive returns the next delivered task, or none after one poll interval.
func (b *AMQPBroker) Receive(ctx context.Context, max int) ([]Delivery, error) {
	b.once.Do(func() {
		b.deliveries, b.consumeErr = b.ch.Consume(b.name, "", false, false, false, false, nil)
	})
	if b.consumeErr != nil {
		return nil, fmt.Errorf("register consumer: %w", b.consumeErr)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.poll):
		return nil, nil
	case d, ok := <-b.deliveries:
		if !ok {
			return nil, ErrClosed
		}
		var t Task
		if err := json.Unmarshal(d.Body, &t); err != nil {
			log.Printf("[Queue] AMQP invalid task: %v", err)
			_ = d.Ack(false)
			return nil, nil
		}
		return []Delivery{{
			Task: t,
			Ack:  func(context.Context) error { return d.Ack(false) },
		}}, nil
	}
}

// Close closes the channel and, when dialed here, the connection.
func (b *AMQPBroker) Close() error {
	err := b.ch.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
