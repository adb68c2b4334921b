package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
)

// Pool is a small in-process worker pool used when no broker is configured.
// Jobs are lost on restart.
type Pool struct {
	wg      sync.WaitGroup
	jobs    chan uuid.UUID
	quit    chan struct{}
	n       int
	handler Handler
	logger  *slog.Logger
}

var _ Enqueuer = (*Pool)(nil)

func NewPool(workers int, handler Handler) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		jobs:    make(chan uuid.UUID, workers*4),
		quit:    make(chan struct{}),
		n:       workers,
		handler: handler,
		logger:  slog.With("component", "evaluation-pool"),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case assignmentID := <-p.jobs:
					p.run(ctx, id, assignmentID)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, worker int, assignmentID uuid.UUID) {
	if err := p.handler(ctx, assignmentID); err != nil {
		metrics.EvaluationJobs.WithLabelValues("failed").Inc()
		p.logger.Warn("evaluation job failed",
			"worker", worker,
			"assignment_id", assignmentID,
			"error", err,
		)
		return
	}
	metrics.EvaluationJobs.WithLabelValues("succeeded").Inc()
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Enqueue never blocks. A saturated pool drops the job with ErrQueueFull;
// the evaluation can be requested again through the API.
func (p *Pool) Enqueue(_ context.Context, assignmentID uuid.UUID) error {
	select {
	case p.jobs <- assignmentID:
		return nil
	default:
		metrics.EvaluationJobs.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}
