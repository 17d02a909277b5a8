package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coderush/internal/common/limiter"
	"coderush/internal/judge/exercise"
	"coderush/internal/judge/model"
	"coderush/internal/judge/repository"
	"coderush/internal/judge/sandbox"
	"coderush/internal/judge/sandbox/result"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/contextkey"
	"coderush/pkg/utils/logger"
)

// Service grades submissions against the exercise catalog.
type Service struct {
	validator       sandbox.Service
	catalog         exercise.Catalog
	statusRepo      *repository.StatusRepository
	limiter         *limiter.TokenLimiter
	defaultLanguage string
	defaultExercise int
	maxSourceBytes  int
	queueWait       time.Duration
	timeLimit       time.Duration
	submitTimeout   time.Duration
	statusTimeout   time.Duration

	degraded   atomic.Bool
	degradedMu sync.Mutex
	degradedBy string
}

// Config holds service dependencies and settings.
type Config struct {
	Validator       sandbox.Service
	Catalog         exercise.Catalog
	StatusRepo      *repository.StatusRepository
	DefaultLanguage string
	DefaultExercise int
	MaxSourceBytes  int
	MaxInFlight     int
	QueueWait       time.Duration
	TimeLimit       time.Duration
	SubmitTimeout   time.Duration
	StatusTimeout   time.Duration
}

// SubmitRequest is one learner submission.
type SubmitRequest struct {
	ExerciseID int
	Language   string
	Code       string
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Validator == nil {
		return nil, appErr.ValidationError("validator", "required")
	}
	if cfg.Catalog == nil {
		return nil, appErr.ValidationError("catalog", "required")
	}
	if cfg.DefaultLanguage == "" {
		return nil, appErr.ValidationError("default_language", "required")
	}
	inFlight := cfg.MaxInFlight
	if inFlight <= 0 {
		inFlight = 1
	}
	defaultExercise := cfg.DefaultExercise
	if defaultExercise <= 0 {
		defaultExercise = 1
	}
	return &Service{
		validator:       cfg.Validator,
		catalog:         cfg.Catalog,
		statusRepo:      cfg.StatusRepo,
		limiter:         limiter.NewTokenLimiter(inFlight),
		defaultLanguage: cfg.DefaultLanguage,
		defaultExercise: defaultExercise,
		maxSourceBytes:  cfg.MaxSourceBytes,
		queueWait:       cfg.QueueWait,
		timeLimit:       cfg.TimeLimit,
		submitTimeout:   cfg.SubmitTimeout,
		statusTimeout:   cfg.StatusTimeout,
	}, nil
}

// GetExercise returns the public description of one exercise.
func (s *Service) GetExercise(ctx context.Context, id int) (exercise.Exercise, error) {
	return s.catalog.Get(ctx, id)
}

// SubmitAnswer compiles and grades one submission.
//
// User code problems come back inside the report. An error means the
// submission could not be graded at all.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitRequest) (result.ValidationReport, error) {
	if err := s.checkHealthy(); err != nil {
		return result.ValidationReport{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return result.ValidationReport{}, appErr.ValidationError("code", "required")
	}
	if s.maxSourceBytes > 0 && len(req.Code) > s.maxSourceBytes {
		return result.ValidationReport{}, appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxSourceBytes)
	}
	if req.ExerciseID == 0 {
		req.ExerciseID = s.defaultExercise
	}
	if req.Language == "" {
		req.Language = s.defaultLanguage
	}
	ex, err := s.catalog.Get(ctx, req.ExerciseID)
	if err != nil {
		return result.ValidationReport{}, err
	}

	submissionID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)
	receivedAt := time.Now().UnixMilli()
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: submissionID,
		ExerciseID:   ex.ID,
		Status:       result.StatusPending,
		Language:     req.Language,
		Progress:     model.Progress{TotalTests: len(ex.Tests)},
		Timestamps:   model.Timestamps{ReceivedAt: receivedAt},
	})

	if err := s.limiter.AcquireWithin(ctx, s.queueWait); err != nil {
		return result.ValidationReport{}, s.handleFailure(ctx, submissionID, err)
	}
	defer s.limiter.Release()

	ctxJudge := ctx
	if s.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctxJudge, cancel = context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
	}

	timeLimit := s.timeLimit
	if ex.TimeLimitMs > 0 {
		timeLimit = time.Duration(ex.TimeLimitMs) * time.Millisecond
	}
	report, err := s.validator.Validate(ctxJudge, sandbox.ValidateRequest{
		SubmissionID: submissionID,
		LanguageID:   req.Language,
		Source:       req.Code,
		Tests:        ex.Tests,
		TimeLimit:    timeLimit,
	})
	if err != nil {
		return result.ValidationReport{}, s.handleFailure(ctx, submissionID, err)
	}

	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: submissionID,
		Status:       result.StatusFinished,
		Verdict:      report.Verdict,
		Passed:       report.Summary.Passed,
		Progress:     model.Progress{TotalTests: report.Summary.Total, DoneTests: len(report.Outcomes)},
		Timestamps:   model.Timestamps{FinishedAt: time.Now().UnixMilli()},
	})
	return report, nil
}

// GetStatus returns the latest known status of a submission.
func (s *Service) GetStatus(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if s.statusRepo == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.NotFound).WithMessage("submission status not found")
	}
	return s.statusRepo.Get(ctx, submissionID)
}

// handleFailure records the failure and returns the error shown to the caller.
// Toolchain details are logged here and replaced by a generic message.
func (s *Service) handleFailure(ctx context.Context, submissionID string, err error) error {
	code := appErr.GetCode(err)
	switch code {
	case appErr.ToolchainUnavailable:
		logger.Error(ctx, "toolchain unavailable", zap.Error(err))
		err = appErr.New(appErr.ToolchainUnavailable)
	case appErr.ChannelRestoreFailed:
		s.markDegraded(ctx, err)
		err = appErr.New(appErr.ServiceUnavailable)
	case appErr.JudgeSystemError:
		logger.Error(ctx, "judge system error", zap.Error(err))
		err = appErr.New(appErr.JudgeSystemError)
	}
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: submissionID,
		Status:       result.StatusFailed,
		Verdict:      result.VerdictSE,
		ErrorCode:    int(code),
		ErrorMessage: err.Error(),
		Timestamps:   model.Timestamps{FinishedAt: time.Now().UnixMilli()},
	})
	return err
}
