// Package sandbox defines the public call interface used by the judge service.
package sandbox

import (
	"context"
	"time"

	"coderush/internal/judge/sandbox/result"
)

// Service is the high-level sandbox entrypoint used by the judge layer.
type Service interface {
	Validate(ctx context.Context, req ValidateRequest) (result.ValidationReport, error)
}

// ValidateRequest contains all data needed to validate one submission.
type ValidateRequest struct {
	// SubmissionID is generated when empty.
	SubmissionID string
	LanguageID   string
	Source       string
	// Tests run in order; outcomes keep the same order.
	Tests []result.TestCase
	// TimeLimit bounds the wall time of each case. Zero uses the run profile default.
	TimeLimit time.Duration
}
