package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// MemoryQueue is an in-process queue for tests and single-binary setups.
// Sends dispatch synchronously to attached consumers and are recorded for
// inspection.
type MemoryQueue struct {
	mu        sync.Mutex
	sent      map[string][][]byte
	consumers map[string][]Handler
	failSend  error
}

// NewMemoryQueue builds an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		sent:      make(map[string][][]byte),
		consumers: make(map[string][]Handler),
	}
}

// FailSends makes subsequent sends return err; nil restores delivery.
func (q *MemoryQueue) FailSends(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failSend = err
}

// Send records and dispatches one payload.
func (q *MemoryQueue) Send(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	q.mu.Lock()
	if q.failSend != nil {
		err := q.failSend
		q.mu.Unlock()
		return err
	}
	q.sent[subject] = append(q.sent[subject], data)
	handlers := append([]Handler(nil), q.consumers[subject]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, data)
	}
	return nil
}

// SendBatch sends payloads in order, stopping at the first failure.
func (q *MemoryQueue) SendBatch(ctx context.Context, subject string, payloads []any) error {
	for _, payload := range payloads {
		if err := q.Send(ctx, subject, payload); err != nil {
			return err
		}
	}
	return nil
}

// Consume attaches a handler. The workers count is ignored; dispatch is
// synchronous.
func (q *MemoryQueue) Consume(subject string, workers int, handler Handler) (func(), error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	q.mu.Lock()
	q.consumers[subject] = append(q.consumers[subject], handler)
	q.mu.Unlock()

	stop := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.consumers[subject] = nil
	}
	return stop, nil
}

// Sent returns the payloads recorded for a subject.
func (q *MemoryQueue) Sent(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.sent[subject]...)
}
