package jobqueue

import "context"

// Queue sends jobs. Implementations must be safe for concurrent senders.
type Queue interface {
	// Send publishes one payload to a subject.
	Send(ctx context.Context, subject string, payload any) error
	// SendBatch publishes several payloads. Batches are not transactional:
	// a mid-batch failure leaves earlier payloads sent.
	SendBatch(ctx context.Context, subject string, payloads []any) error
}

// Handler processes one delivered payload.
type Handler func(ctx context.Context, data []byte)

// Consumer attaches worker pools to subjects.
type Consumer interface {
	// Consume starts workers on a subject and returns a stop function.
	Consume(subject string, workers int, handler Handler) (func(), error)
}
