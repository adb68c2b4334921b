// Package queue runs AI evaluation jobs out of the request path, either on
// RabbitMQ or on an in-process worker pool.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by the in-process pool when its buffer is saturated.
var ErrQueueFull = errors.New("evaluation queue full")

// EvaluationJob is the message body published for each evaluation request.
type EvaluationJob struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
}

// Handler processes one evaluation job.
type Handler func(ctx context.Context, assignmentID uuid.UUID) error

// Enqueuer accepts evaluation jobs for later processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, assignmentID uuid.UUID) error
}
