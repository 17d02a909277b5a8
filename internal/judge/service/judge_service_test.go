package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coderush/internal/judge/exercise"
	"coderush/internal/judge/repository"
	"coderush/internal/judge/sandbox"
	"coderush/internal/judge/sandbox/result"
	appErr "coderush/pkg/errors"
)

type fakeValidator struct {
	mu       sync.Mutex
	requests []sandbox.ValidateRequest
	validate func(ctx context.Context, req sandbox.ValidateRequest) (result.ValidationReport, error)
}

func (f *fakeValidator) Validate(ctx context.Context, req sandbox.ValidateRequest) (result.ValidationReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.validate != nil {
		return f.validate(ctx, req)
	}
	report := result.ValidationReport{SubmissionID: req.SubmissionID, Language: req.LanguageID}
	for _, tc := range req.Tests {
		report.Outcomes = append(report.Outcomes, result.NewOutcome(tc, tc.ExpectedOutput, 1))
	}
	report.Finalize()
	return report, nil
}

func newTestService(t *testing.T, v *fakeValidator, mutate func(*Config)) (*Service, *repository.StatusRepository) {
	t.Helper()
	catalog, err := exercise.NewStaticCatalog(nil)
	if err != nil {
		t.Fatalf("new catalog failed: %v", err)
	}
	repo, err := repository.NewStatusRepository(time.Minute)
	if err != nil {
		t.Fatalf("new status repository failed: %v", err)
	}
	cfg := Config{
		Validator:       v,
		Catalog:         catalog,
		StatusRepo:      repo,
		DefaultLanguage: "go",
		MaxSourceBytes:  1024,
		MaxInFlight:     1,
		QueueWait:       50 * time.Millisecond,
		TimeLimit:       2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	return svc, repo
}

func TestSubmitAnswerUsesDefaults(t *testing.T) {
	v := &fakeValidator{}
	svc, repo := newTestService(t, v, nil)
	report, err := svc.SubmitAnswer(context.Background(), SubmitRequest{Code: "package main"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !report.Success || report.Summary.Total != 16 {
		t.Fatalf("unexpected report: %+v", report.Summary)
	}
	req := v.requests[0]
	if req.LanguageID != "go" || req.TimeLimit != 2*time.Second || len(req.Tests) != 16 || req.SubmissionID == "" {
		t.Fatalf("unexpected validate request: %+v", req)
	}
	status, err := repo.Get(context.Background(), req.SubmissionID)
	if err != nil {
		t.Fatalf("status missing: %v", err)
	}
	if status.Status != result.StatusFinished || status.Verdict != result.VerdictAC || status.Passed != 16 || status.ExerciseID != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSubmitAnswerRejectsInput(t *testing.T) {
	svc, _ := newTestService(t, &fakeValidator{}, nil)
	ctx := context.Background()
	if _, err := svc.SubmitAnswer(ctx, SubmitRequest{Code: "  "}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	if _, err := svc.SubmitAnswer(ctx, SubmitRequest{Code: string(big)}); !appErr.Is(err, appErr.CodeTooLarge) {
		t.Fatalf("expected code too large, got %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, SubmitRequest{Code: "x", ExerciseID: 99}); !appErr.Is(err, appErr.ExerciseNotFound) {
		t.Fatalf("expected exercise not found, got %v", err)
	}
}

func TestSubmitAnswerQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	v := &fakeValidator{validate: func(ctx context.Context, req sandbox.ValidateRequest) (result.ValidationReport, error) {
		close(started)
		<-release
		return result.ValidationReport{}, nil
	}}
	svc, _ := newTestService(t, v, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.SubmitAnswer(context.Background(), SubmitRequest{Code: "a"})
	}()
	<-started
	_, err := svc.SubmitAnswer(context.Background(), SubmitRequest{Code: "b"})
	close(release)
	<-done
	if !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
}

func TestToolchainFaultIsGeneric(t *testing.T) {
	v := &fakeValidator{validate: func(ctx context.Context, req sandbox.ValidateRequest) (result.ValidationReport, error) {
		return result.ValidationReport{}, appErr.Wrapf(errors.New("exec: gcc not found"), appErr.ToolchainUnavailable, "compiler could not be run")
	}}
	svc, repo := newTestService(t, v, nil)
	_, err := svc.SubmitAnswer(context.Background(), SubmitRequest{Code: "a"})
	if !appErr.Is(err, appErr.ToolchainUnavailable) {
		t.Fatalf("expected toolchain unavailable, got %v", err)
	}
	if err.Error() != appErr.ToolchainUnavailable.Message() {
		t.Fatalf("internal detail leaked: %q", err.Error())
	}
	status, _ := repo.Get(context.Background(), v.requests[0].SubmissionID)
	if status.Status != result.StatusFailed || status.Verdict != result.VerdictSE {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !svc.Health().Healthy {
		t.Fatalf("toolchain fault must not degrade the service")
	}
}

func TestChannelRestoreFaultDegradesUntilRecover(t *testing.T) {
	calls := 0
	v := &fakeValidator{validate: func(ctx context.Context, req sandbox.ValidateRequest) (result.ValidationReport, error) {
		calls++
		if calls == 1 {
			return result.ValidationReport{}, appErr.New(appErr.ChannelRestoreFailed)
		}
		report := result.ValidationReport{}
		report.Finalize()
		return report, nil
	}}
	svc, _ := newTestService(t, v, nil)
	ctx := context.Background()
	if _, err := svc.SubmitAnswer(ctx, SubmitRequest{Code: "a"}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	h := svc.Health()
	if h.Healthy || h.DegradedReason == "" {
		t.Fatalf("expected degraded health, got %+v", h)
	}
	if _, err := svc.SubmitAnswer(ctx, SubmitRequest{Code: "a"}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected rejection while degraded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("validator must not run while degraded, calls=%d", calls)
	}
	svc.Recover(ctx)
	if _, err := svc.SubmitAnswer(ctx, SubmitRequest{Code: "a"}); err != nil {
		t.Fatalf("expected success after recover, got %v", err)
	}
	if !svc.Health().Healthy {
		t.Fatalf("expected healthy after recover")
	}
}

func TestExerciseTimeLimitOverridesDefault(t *testing.T) {
	catalog, _ := exercise.NewStaticCatalog([]exercise.Exercise{{
		ID:          7,
		TimeLimitMs: 300,
		Tests:       []result.TestCase{{Input: "1", ExpectedOutput: "1"}},
	}})
	v := &fakeValidator{}
	svc, _ := newTestService(t, v, func(cfg *Config) {
		cfg.Catalog = catalog
		cfg.DefaultExercise = 7
	})
	if _, err := svc.SubmitAnswer(context.Background(), SubmitRequest{Code: "a", Language: "cpp"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := v.requests[0]; got.TimeLimit != 300*time.Millisecond || got.LanguageID != "cpp" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestReportStatusTracksProgress(t *testing.T) {
	svc, repo := newTestService(t, &fakeValidator{}, nil)
	ctx := context.Background()
	_ = svc.ReportStatus(ctx, sandbox.StatusUpdate{SubmissionID: "s1", Status: result.StatusRunning, TotalTests: 3, DoneTests: 2, ReceivedAt: 5})
	status, err := svc.GetStatus(ctx, "s1")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status.Progress.DoneTests != 2 || status.Progress.TotalTests != 3 || status.Timestamps.ReceivedAt != 5 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected one entry, got %d", repo.Len())
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(Config{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
