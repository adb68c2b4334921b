package ai

import (
	"context"
	"time"

	"github.com/kiranshivaraju/interviewd/internal/metrics"
	"github.com/kiranshivaraju/interviewd/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ models.Scorer = (*limitedScorer)(nil)

type limitedScorer struct {
	inner models.Scorer
	sem   chan struct{}
}

// Limit caps the number of in-flight Score calls. A non-positive
// maxConcurrent returns inner unchanged.
func Limit(inner models.Scorer, maxConcurrent int) models.Scorer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedScorer{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedScorer) Name() string { return l.inner.Name() }

func (l *limitedScorer) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return models.ScoreResult{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Score(ctx, req)
}

var _ models.Scorer = (*instrumentedScorer)(nil)

type instrumentedScorer struct {
	inner models.Scorer
}

// Instrument records a span and latency histogram around every Score call.
func Instrument(inner models.Scorer) models.Scorer {
	return &instrumentedScorer{inner: inner}
}

func (s *instrumentedScorer) Name() string { return s.inner.Name() }

func (s *instrumentedScorer) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	ctx, span := otel.Tracer("interviewd/ai").Start(ctx, "scorer.Score")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", s.inner.Name()),
		attribute.Int("ai.pairs", len(req.Pairs)),
	)

	start := time.Now()
	result, err := s.inner.Score(ctx, req)
	metrics.ScorerDuration.WithLabelValues(s.inner.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.String("ai.model", result.Model),
		attribute.Bool("ai.degraded", result.Degraded),
	)
	return result, nil
}
