// Package natsqueue is a queue.Queue backed by nats-io/nats.go core
// pub/sub. Grounded on the pack's JSON-over-NATS publish/subscribe helper
// style (typed Publish/Subscribe wrapping marshal/unmarshal).
package natsqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/yourorg/csv-ingest/internal/queue"
)

type Queue struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

func Connect(url string) (*Queue, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("natsqueue: connect: %w", err)
	}
	return &Queue{conn: conn}, nil
}

func subject(queueName string) string { return "csv-ingest.stage." + queueName }

func (q *Queue) Enqueue(_ context.Context, job queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.conn.Publish(subject(job.Queue), data)
}

// Subscribe registers handler on a NATS queue group named after queueName,
// so multiple worker processes share delivery. Core NATS does not redeliver:
// a message is handled once by one member, with the shared retry policy
// applied in-process. Malformed messages are dropped rather than retried.
func (q *Queue) Subscribe(queueName string, handler queue.Handler) error {
	sub, err := q.conn.QueueSubscribe(subject(queueName), queueName+"-workers", func(msg *nats.Msg) {
		var job queue.Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			return
		}
		_ = queue.RunWithRetry(context.Background(), func(ctx context.Context) error {
			return handler(ctx, job)
		})
	})
	if err != nil {
		return err
	}
	q.subs = append(q.subs, sub)
	return nil
}

func (q *Queue) Close() error {
	for _, sub := range q.subs {
		_ = sub.Unsubscribe()
	}
	q.conn.Close()
	return nil
}

var _ queue.Queue = (*Queue)(nil)
