package service

import (
	"context"

	"go.uber.org/zap"

	"coderush/internal/judge/model"
	"coderush/internal/judge/sandbox"
	"coderush/pkg/utils/logger"
)

func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatusResponse) {
	if s.statusRepo == nil {
		return
	}
	ctxStatus := ctx
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctx, s.statusTimeout)
		defer cancel()
	}
	if err := s.statusRepo.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "update status failed", zap.String("status", string(status.Status)), zap.Error(err))
	}
}

// ReportStatus stores intermediate progress pushed by the validator.
func (s *Service) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: update.SubmissionID,
		Status:       update.Status,
		Language:     update.Language,
		Progress: model.Progress{
			TotalTests: update.TotalTests,
			DoneTests:  update.DoneTests,
		},
		Timestamps: model.Timestamps{
			ReceivedAt: update.ReceivedAt,
			FinishedAt: update.FinishedAt,
		},
	})
	return nil
}
