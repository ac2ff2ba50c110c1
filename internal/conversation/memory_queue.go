package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process turn queue for single-node deployments and
// tests. It mirrors the semantics the dispatcher expects from SQS: batched
// receives with a bounded long-poll wait.
type MemoryQueue struct {
	messages chan queueMessage
}

// NewMemoryQueue creates a MemoryQueue holding at most buffer queued turns.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		messages: make(chan queueMessage, buffer),
	}
}

// Send enqueues a payload, blocking until there is room or ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := queueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}

	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to waitSeconds for a message and then drains up to
// maxMessages without blocking further. waitSeconds == 0 waits until ctx
// is done.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	// A nil channel never fires, which gives the unbounded wait.
	var wait <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait:
		return nil, nil
	case msg := <-q.messages:
		return q.drain(msg, maxMessages), nil
	}
}

// Delete is a no-op; an in-memory message is gone once received.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

func (q *MemoryQueue) drain(first queueMessage, max int) []queueMessage {
	batch := make([]queueMessage, 0, max)
	batch = append(batch, first)

	for len(batch) < max {
		select {
		case msg := <-q.messages:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}
