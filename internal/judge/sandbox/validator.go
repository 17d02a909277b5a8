package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coderush/internal/judge/sandbox/compiler"
	"coderush/internal/judge/sandbox/observer"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/runner"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/contextkey"
	"coderush/pkg/utils/logger"
)

// Validator compiles a submission once and runs it against every test case.
type Validator struct {
	compiler        compiler.Compiler
	runner          runner.Runner
	metrics         observer.MetricsRecorder
	statusReporter  StatusReporter
	caseParallelism int
}

// NewValidator creates a validator with required dependencies.
func NewValidator(c compiler.Compiler, r runner.Runner) *Validator {
	return &Validator{
		compiler:        c,
		runner:          r,
		metrics:         observer.NoopMetricsRecorder{},
		caseParallelism: 1,
	}
}

// SetStatusReporter injects a status reporter for intermediate updates.
func (v *Validator) SetStatusReporter(reporter StatusReporter) {
	v.statusReporter = reporter
}

// SetMetricsRecorder injects metrics hooks.
func (v *Validator) SetMetricsRecorder(metrics observer.MetricsRecorder) {
	if metrics != nil {
		v.metrics = metrics
	}
}

// SetCaseParallelism sets how many cases of one submission may run at once.
// Outcomes keep test order regardless.
func (v *Validator) SetCaseParallelism(n int) {
	if n < 1 {
		n = 1
	}
	v.caseParallelism = n
}

// Validate runs the full pipeline for one submission.
//
// Compile errors and case-local faults are reported in the returned report
// with a nil error. A non-nil error means no verdict could be reached: the
// toolchain or sandbox failed, or ctx was canceled.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) (result.ValidationReport, error) {
	if err := validateRequest(req); err != nil {
		return result.ValidationReport{}, err
	}
	if v.compiler == nil || v.runner == nil {
		return result.ValidationReport{}, appErr.New(appErr.JudgeSystemError).WithMessage("validator dependencies are not initialized")
	}
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, req.SubmissionID)
	receivedAt := time.Now()
	report := result.ValidationReport{SubmissionID: req.SubmissionID, Language: req.LanguageID}

	v.reportStatus(ctx, req, result.StatusCompiling, 0, receivedAt)
	artifact, diags, err := v.compiler.Compile(ctx, req.LanguageID, req.Source)
	report.Diagnostics = diags
	if err != nil {
		v.reportStatus(ctx, req, result.StatusFailed, 0, receivedAt)
		report.Finalize()
		report.Verdict = result.VerdictSE
		return report, err
	}
	defer artifact.Close()

	if result.HasErrors(diags) {
		return v.finish(ctx, req, report, receivedAt), nil
	}

	prog, err := v.runner.Prepare(ctx, artifact)
	if err != nil {
		var fault *result.Fault
		if !errors.As(err, &fault) || fault.Kind.Fatal() {
			v.reportStatus(ctx, req, result.StatusFailed, 0, receivedAt)
			return result.ValidationReport{}, appErr.Wrapf(err, appErr.JudgeSystemError, "prepare program failed")
		}
		// The entry point is shared by every case, so one fault covers them all.
		logger.Info(ctx, "entry point fault", zap.String("kind", string(fault.Kind)), zap.String("reason", fault.Message))
		report.Outcomes = make([]result.ExecutionOutcome, len(req.Tests))
		for i, tc := range req.Tests {
			report.Outcomes[i] = result.NewFaultOutcome(tc, fault)
		}
		return v.finish(ctx, req, report, receivedAt), nil
	}
	defer prog.Close()

	v.reportStatus(ctx, req, result.StatusRunning, 0, receivedAt)
	outcomes, err := v.runCases(ctx, req, prog, receivedAt)
	if err != nil {
		v.reportStatus(ctx, req, result.StatusFailed, 0, receivedAt)
		return result.ValidationReport{}, err
	}
	report.Outcomes = outcomes
	return v.finish(ctx, req, report, receivedAt), nil
}

func (v *Validator) runCases(ctx context.Context, req ValidateRequest, prog runner.Program, receivedAt time.Time) ([]result.ExecutionOutcome, error) {
	outcomes := make([]result.ExecutionOutcome, len(req.Tests))
	var done atomic.Int64
	runCase := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return appErr.Canceled(err)
		}
		tc := req.Tests[i]
		start := time.Now()
		out, err := prog.Execute(ctx, tc.Input, req.TimeLimit)
		if err != nil {
			outcome, caseErr := v.classifyFault(ctx, tc, err)
			if caseErr != nil {
				return caseErr
			}
			outcomes[i] = outcome
		} else {
			outcomes[i] = result.NewOutcome(tc, out, time.Since(start).Milliseconds())
		}
		v.reportStatus(ctx, req, result.StatusRunning, int(done.Add(1)), receivedAt)
		return nil
	}

	if v.caseParallelism <= 1 || len(req.Tests) <= 1 {
		for i := range req.Tests {
			if err := runCase(ctx, i); err != nil {
				return nil, err
			}
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.caseParallelism)
	for i := range req.Tests {
		g.Go(func() error {
			return runCase(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		// A sibling failure cancels gctx; report the caller's own cancellation first.
		if ctx.Err() != nil && !appErr.Is(err, appErr.ChannelRestoreFailed) && !appErr.Is(err, appErr.JudgeSystemError) {
			return nil, appErr.Canceled(ctx.Err())
		}
		return nil, err
	}
	return outcomes, nil
}

// classifyFault turns an execution error into a case outcome, or into an
// error that aborts the whole validation.
func (v *Validator) classifyFault(ctx context.Context, tc result.TestCase, err error) (result.ExecutionOutcome, error) {
	var fault *result.Fault
	if !errors.As(err, &fault) {
		return result.ExecutionOutcome{}, appErr.Wrapf(err, appErr.JudgeSystemError, "execute program failed")
	}
	switch {
	case fault.Kind == result.FaultChannelRestore:
		logger.Error(ctx, "sandbox channel restore failed", zap.Error(fault.Err))
		return result.ExecutionOutcome{}, appErr.Wrapf(fault, appErr.ChannelRestoreFailed, "sandbox channel restore failed")
	case fault.Kind.Fatal():
		logger.Error(ctx, "sandbox failure", zap.Error(fault.Err))
		return result.ExecutionOutcome{}, appErr.Wrapf(fault, appErr.JudgeSystemError, "sandbox failure")
	case fault.Kind == result.FaultCanceled:
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		return result.ExecutionOutcome{}, appErr.Canceled(cause)
	}
	return result.NewFaultOutcome(tc, fault), nil
}

func (v *Validator) finish(ctx context.Context, req ValidateRequest, report result.ValidationReport, receivedAt time.Time) result.ValidationReport {
	report.Finalize()
	v.reportStatus(ctx, req, result.StatusFinished, len(report.Outcomes), receivedAt)
	v.metrics.ObserveValidation(ctx, req.LanguageID, string(report.Verdict), time.Since(receivedAt).Milliseconds())
	logger.Info(ctx, "submission validated",
		zap.String("language", req.LanguageID),
		zap.String("verdict", string(report.Verdict)),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("total", report.Summary.Total),
		zap.Int("diagnostics", len(report.Diagnostics)),
	)
	return report
}

func (v *Validator) reportStatus(ctx context.Context, req ValidateRequest, status result.JudgeStatus, doneTests int, receivedAt time.Time) {
	if v.statusReporter == nil {
		return
	}
	update := StatusUpdate{
		SubmissionID: req.SubmissionID,
		Status:       status,
		Language:     req.LanguageID,
		TotalTests:   len(req.Tests),
		DoneTests:    doneTests,
		ReceivedAt:   receivedAt.UnixMilli(),
	}
	if status == result.StatusFinished || status == result.StatusFailed {
		update.FinishedAt = time.Now().UnixMilli()
	}
	if err := v.statusReporter.ReportStatus(ctx, update); err != nil {
		logger.Warn(ctx, "report status failed", zap.Error(err))
	}
}

func validateRequest(req ValidateRequest) error {
	if req.LanguageID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.TimeLimit < 0 {
		return appErr.ValidationError("time_limit", "must not be negative")
	}
	return nil
}
