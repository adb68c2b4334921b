// Package llm holds what every scorer provider shares: the rubric and prompt,
// tolerant parsing of model output, and error classification.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// All provider failures wrap models.ErrScoringUnavailable.
var (
	ErrProviderUnavailable = fmt.Errorf("%w: provider unavailable", models.ErrScoringUnavailable)
	ErrInferenceTimeout    = fmt.Errorf("%w: inference timeout", models.ErrScoringUnavailable)
	ErrRateLimited         = fmt.Errorf("%w: rate limited", models.ErrScoringUnavailable)
	ErrEmptyResponse       = fmt.Errorf("%w: empty response", models.ErrScoringUnavailable)
)

// ClassifyError maps a transport-level failure from provider to one of the
// sentinel errors above.
func ClassifyError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrInferenceTimeout, provider, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrInferenceTimeout, provider, err)
	}

	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, err)
}

// ClassifyStatus maps an HTTP status returned by provider.
func ClassifyStatus(provider string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %v", ErrRateLimited, provider, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s: %v", ErrInferenceTimeout, provider, err)
	default:
		return fmt.Errorf("%w: %s: status %d: %v", ErrProviderUnavailable, provider, status, err)
	}
}
