package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"glot/internal/services"
)

const (
	consumerGroup   = "glot-workers"
	pendingBuffer   = 64
	connectTimeout  = 5 * time.Second
	reconnectWait   = 2 * time.Second
	maxReconnects   = -1
	handlerDeadline = 10 * time.Minute
)

// NATSQueue is the production transport.
type NATSQueue struct {
	conn *nats.Conn
}

// ConnectNATS dials the queue server.
func ConnectNATS(url string) (*NATSQueue, error) {
	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobqueue", "connect", url, err)
	}
	return &NATSQueue{conn: conn}, nil
}

// Close drains and closes the connection.
func (q *NATSQueue) Close() {
	if q == nil || q.conn == nil {
		return
	}
	_ = q.conn.Drain()
}

// Send publishes one payload.
func (q *NATSQueue) Send(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.conn.Publish(subject, data); err != nil {
		return services.Wrap(services.ErrTransient, "jobqueue", "send", subject, err)
	}
	return nil
}

// SendBatch publishes payloads one by one and flushes once.
func (q *NATSQueue) SendBatch(ctx context.Context, subject string, payloads []any) error {
	for _, payload := range payloads {
		if err := q.Send(ctx, subject, payload); err != nil {
			return err
		}
	}
	if err := q.conn.FlushWithContext(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "jobqueue", "flush", subject, err)
	}
	return nil
}

// Consume starts a queue-group subscription fanned out over workers.
func (q *NATSQueue) Consume(subject string, workers int, handler Handler) (func(), error) {
	if workers < 1 {
		workers = 1
	}
	ch := make(chan *nats.Msg, pendingBuffer)
	sub, err := q.conn.ChanQueueSubscribe(subject, consumerGroup, ch)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobqueue", "subscribe", subject, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range ch {
				ctx, cancel := context.WithTimeout(context.Background(), handlerDeadline)
				handler(ctx, msg.Data)
				cancel()
			}
		}()
	}

	stop := func() {
		_ = sub.Unsubscribe()
		close(ch)
		wg.Wait()
	}
	return stop, nil
}
