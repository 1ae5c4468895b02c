package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// maxSQSDelay is the longest DelaySeconds SQS accepts.
const maxSQSDelay = 15 * time.Minute

// SQSAPI is the slice of the SQS client used by SQSBroker.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSBroker delivers tasks through one SQS queue.
type SQSBroker struct {
	client   SQSAPI
	queueURL string
	wait     int32
}

// NewSQSBroker creates a broker on queueURL using long polling.
func NewSQSBroker(client SQSAPI, queueURL string) *SQSBroker {
	return &SQSBroker{client: client, queueURL: queueURL, wait: 20}
}

// Enqueue sends t with a delivery delay, capped at 15 minutes.
func (b *SQSBroker) Enqueue(ctx context.Context, t Task, delay time.Duration) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(b.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("publishing to SQS: %w", err)
	}
	return nil
}

// Receive long-polls for up to max tasks (at most 10).
func (b *SQSBroker) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 || max > 10 {
		max = 10
	}
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     b.wait,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("SQS receive: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, msg := range out.Messages {
		handle := msg.ReceiptHandle
		ack := func(ctx context.Context) error {
			_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(b.queueURL),
				ReceiptHandle: handle,
			})
			return err
		}
		var t Task
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &t); err != nil {
			log.Printf("[Queue] SQS bad message: %v", err)
			_ = ack(ctx)
			continue
		}
		deliveries = append(deliveries, Delivery{Task: t, Ack: ack})
	}
	return deliveries, nil
}

// Close is a no-op.
func (b *SQSBroker) Close() error { return nil }
