// Package queue defines the job-queue interface consumed by the
// orchestrator: one queue per stage, idempotency keyed by job ID,
// at-least-once delivery to a single worker callback per queue.
package queue

import "context"

// Job is one unit of work enqueued for a stage worker.
type Job struct {
	ID      string `json:"id"` // idempotency key, "<stage>-<ingestionId>" or "<stage>-resume-<ingestionId>"
	Queue   string `json:"queue"`
	Payload []byte `json:"payload"`
}

// Handler processes one delivered job. A returned error triggers the
// queue's retry policy.
type Handler func(ctx context.Context, job Job) error

// Queue is the orchestrator's abstraction over whatever broker is
// configured. Subscribe registers the sole handler for a named queue.
// Enqueue does not deduplicate on Job.ID in either adapter here; a job
// enqueued twice is delivered twice, and stage handlers skip work whose
// persisted status shows it already done.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Subscribe(queueName string, handler Handler) error
	Close() error
}
