package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coderush/internal/judge/sandbox/result"
	"coderush/pkg/utils/logger"
)

// StatusUpdate carries intermediate judge status data.
type StatusUpdate struct {
	SubmissionID string
	Status       result.JudgeStatus
	Language     string
	TotalTests   int
	DoneTests    int
	ReceivedAt   int64
	FinishedAt   int64
}

// StatusReporter receives intermediate status updates.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate) error
}

// LogStatusReporter writes status updates to the structured log.
type LogStatusReporter struct{}

func (LogStatusReporter) ReportStatus(ctx context.Context, update StatusUpdate) error {
	fields := []zap.Field{
		zap.String("status", string(update.Status)),
		zap.String("language", update.Language),
		zap.Int("done", update.DoneTests),
		zap.Int("total", update.TotalTests),
	}
	if update.FinishedAt > 0 {
		fields = append(fields, zap.Duration("elapsed", time.Duration(update.FinishedAt-update.ReceivedAt)*time.Millisecond))
	}
	logger.Debug(ctx, "submission status", fields...)
	return nil
}

// MultiStatusReporter fans an update out to every reporter in order.
// The first error is returned after all reporters have run.
type MultiStatusReporter []StatusReporter

func (m MultiStatusReporter) ReportStatus(ctx context.Context, update StatusUpdate) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.ReportStatus(ctx, update); err != nil && first == nil {
			first = err
		}
	}
	return first
}
