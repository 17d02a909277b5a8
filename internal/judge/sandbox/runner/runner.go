// Package runner executes compiled artifacts once per test input.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"coderush/internal/judge/sandbox/compiler"
	"coderush/internal/judge/sandbox/config"
	"coderush/internal/judge/sandbox/engine"
	"coderush/internal/judge/sandbox/observer"
	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/spec"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/contextkey"
)

const maxFaultMessage = 1024

// Program is an artifact ready for repeated execution.
type Program interface {
	// Execute runs the program with input on stdin and returns trimmed stdout.
	// Failures are returned as *result.Fault.
	Execute(ctx context.Context, input string, timeLimit time.Duration) (string, error)
	Close() error
}

// Runner prepares artifacts for execution.
type Runner interface {
	Prepare(ctx context.Context, artifact *compiler.Artifact) (Program, error)
	Run(ctx context.Context, artifact *compiler.Artifact, input string, timeLimit time.Duration) (string, error)
}

// DefaultRunner runs artifacts through the sandbox engine.
type DefaultRunner struct {
	eng      engine.Engine
	repo     config.Repository
	metrics  observer.MetricsRecorder
	spillDir string
}

// NewRunner creates a new runner backed by the sandbox engine. spillDir holds
// programs when anonymous memory files are unavailable.
func NewRunner(eng engine.Engine, repo config.Repository, spillDir string) *DefaultRunner {
	return NewRunnerWithObserver(eng, repo, spillDir, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(eng engine.Engine, repo config.Repository, spillDir string, metrics observer.MetricsRecorder) *DefaultRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{eng: eng, repo: repo, metrics: metrics, spillDir: spillDir}
}

// Prepare validates the entry point and stages the image. Entry point
// problems are returned as *result.Fault.
func (r *DefaultRunner) Prepare(ctx context.Context, artifact *compiler.Artifact) (Program, error) {
	if artifact == nil {
		return nil, appErr.ValidationError("artifact", "required")
	}
	lang, err := r.repo.GetLanguageSpec(ctx, artifact.LanguageID)
	if err != nil {
		return nil, err
	}
	prof, err := r.repo.GetTaskProfile(ctx, profile.TaskTypeRun, lang.ID)
	if err != nil {
		return nil, err
	}
	if fault := lookupEntry(artifact.Image, artifact.EntrySymbol); fault != nil {
		return nil, fault
	}
	img, err := materialize(artifact.Image, r.spillDir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "stage program failed")
	}
	return &program{
		eng:          r.eng,
		metrics:      r.metrics,
		lang:         lang,
		prof:         prof,
		img:          img,
		submissionID: submissionID(ctx),
	}, nil
}

// Run prepares, executes once and releases the artifact.
func (r *DefaultRunner) Run(ctx context.Context, artifact *compiler.Artifact, input string, timeLimit time.Duration) (string, error) {
	prog, err := r.Prepare(ctx, artifact)
	if err != nil {
		return "", err
	}
	defer prog.Close()
	return prog.Execute(ctx, input, timeLimit)
}

type program struct {
	eng          engine.Engine
	metrics      observer.MetricsRecorder
	lang         profile.LanguageSpec
	prof         profile.TaskProfile
	img          *image
	submissionID string
	seq          atomic.Int64
	closeOnce    sync.Once
	closeErr     error
}

func (p *program) Execute(ctx context.Context, input string, timeLimit time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &result.Fault{Kind: result.FaultCanceled, Message: "execution canceled", Err: err}
	}
	limits := profile.ApplyLimits(spec.ResourceLimit{WallTimeMs: timeLimit.Milliseconds()}, p.prof.DefaultLimits, p.lang)
	runSpec := spec.RunSpec{
		SubmissionID: p.submissionID,
		TestID:       fmt.Sprintf("case-%d", p.seq.Add(1)),
		Cmd:          []string{p.img.path},
		Env:          append([]string{}, p.lang.RunEnv...),
		Stdin:        []byte(input),
		ExtraFiles:   p.img.extra,
		Profile:      profile.Name(p.lang.ID, profile.TaskTypeRun),
		Limits:       limits,
	}

	runRes, err := p.eng.Run(ctx, runSpec)
	if err != nil {
		fault := mapEngineError(ctx, err)
		p.metrics.ObserveRun(ctx, p.lang.ID, string(fault.Kind.Verdict()), 0, 0, 0)
		return "", fault
	}
	if fault := mapRunFault(ctx, runRes, limits); fault != nil {
		p.metrics.ObserveRun(ctx, p.lang.ID, string(fault.Kind.Verdict()), runRes.TimeMs, runRes.MemoryKB, runRes.OutputKB)
		return "", fault
	}
	p.metrics.ObserveRun(ctx, p.lang.ID, string(result.VerdictAC), runRes.TimeMs, runRes.MemoryKB, runRes.OutputKB)
	return strings.TrimSpace(runRes.Stdout), nil
}

func (p *program) Close() error {
	p.closeOnce.Do(func() {
		if p.img != nil && p.img.close != nil {
			p.closeErr = p.img.close()
		}
	})
	return p.closeErr
}

func mapEngineError(ctx context.Context, err error) *result.Fault {
	switch {
	case appErr.Is(err, appErr.ChannelRestoreFailed):
		return &result.Fault{Kind: result.FaultChannelRestore, Message: "output channel could not be restored", Err: err}
	case ctx.Err() != nil:
		return &result.Fault{Kind: result.FaultCanceled, Message: "execution canceled", Err: err}
	case appErr.Is(err, appErr.EntryPointNotFound):
		return &result.Fault{Kind: result.FaultEntryPointSignature, Message: "entry point could not be invoked", Err: err}
	default:
		return &result.Fault{Kind: result.FaultSystem, Message: "sandbox failure", Err: err}
	}
}

// mapRunFault classifies a finished run. A nil fault means the output is usable.
func mapRunFault(ctx context.Context, res result.RunResult, limits spec.ResourceLimit) *result.Fault {
	if res.TimedOut {
		return result.NewFault(result.FaultTimeout, "time limit exceeded")
	}
	if ctx.Err() != nil && res.ExitCode != 0 {
		return &result.Fault{Kind: result.FaultCanceled, Message: "execution canceled", Err: ctx.Err()}
	}
	if res.OomKilled || (limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024) {
		return result.NewFault(result.FaultMemoryLimit, "memory limit exceeded")
	}
	if res.OutputExceeded {
		return result.NewFault(result.FaultOutputLimit, "output limit exceeded")
	}
	if res.OutputHeld {
		return result.NewFault(result.FaultRuntime, "output still held by a background process after exit")
	}
	if res.ExitCode != 0 {
		return result.NewFault(result.FaultRuntime, "%s", runtimeMessage(res))
	}
	return nil
}

func runtimeMessage(res result.RunResult) string {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		if res.Signal != "" {
			return "process terminated by signal: " + res.Signal
		}
		return fmt.Sprintf("process exited with code %d", res.ExitCode)
	}
	if len(msg) > maxFaultMessage {
		msg = msg[:maxFaultMessage] + "..."
	}
	return msg
}

func submissionID(ctx context.Context) string {
	if id, ok := ctx.Value(contextkey.SubmissionID).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
