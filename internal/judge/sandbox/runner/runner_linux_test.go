//go:build linux

package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"coderush/internal/judge/sandbox/compiler"
	"coderush/internal/judge/sandbox/config"
	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/spec"
	appErr "coderush/pkg/errors"
)

type fakeEngine struct {
	specs []spec.RunSpec
	res   result.RunResult
	err   error
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.specs = append(f.specs, runSpec)
	return f.res, f.err
}

func (f *fakeEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}

func newTestRunner(t *testing.T, eng *fakeEngine) *DefaultRunner {
	t.Helper()
	repo := config.NewLocalRepository(
		[]profile.LanguageSpec{{ID: "go", EntrySymbol: "main.main", TimeMultiplier: 2}},
		[]profile.TaskProfile{{
			LanguageID:    "go",
			TaskType:      profile.TaskTypeRun,
			DefaultLimits: spec.ResourceLimit{WallTimeMs: 1000, MemoryMB: 64},
		}},
	)
	return NewRunner(eng, repo, t.TempDir())
}

func testArtifact(t *testing.T) *compiler.Artifact {
	return &compiler.Artifact{LanguageID: "go", EntrySymbol: "main.main", Image: testImage(t)}
}

func runOnce(t *testing.T, eng *fakeEngine, ctx context.Context) (string, error) {
	t.Helper()
	return newTestRunner(t, eng).Run(ctx, testArtifact(t), "4\n", 500*time.Millisecond)
}

func asFault(t *testing.T, err error) *result.Fault {
	t.Helper()
	var fault *result.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected fault, got %v", err)
	}
	return fault
}

func TestRunTrimsStdout(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{Stdout: "\n  Even \n\n"}}
	out, err := runOnce(t, eng, context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "Even" {
		t.Fatalf("unexpected output: %q", out)
	}

	runSpec := eng.specs[0]
	if string(runSpec.Stdin) != "4\n" {
		t.Fatalf("input not fed to stdin: %q", runSpec.Stdin)
	}
	if runSpec.Env == nil {
		t.Fatalf("run env must be an explicit empty slice")
	}
	if runSpec.Profile != "go-run" || runSpec.Cmd[0] == "" {
		t.Fatalf("unexpected run spec: %+v", runSpec)
	}
	if runSpec.Limits.WallTimeMs != 500 || runSpec.Limits.MemoryMB != 64 {
		t.Fatalf("explicit time limit must not be scaled: %+v", runSpec.Limits)
	}
}

func TestRunFaultMapping(t *testing.T) {
	cases := []struct {
		name    string
		res     result.RunResult
		err     error
		kind    result.FaultKind
		message string
	}{
		{name: "timeout", res: result.RunResult{ExitCode: -1, TimedOut: true}, kind: result.FaultTimeout, message: "time limit exceeded"},
		{name: "oom", res: result.RunResult{ExitCode: -1, OomKilled: true}, kind: result.FaultMemoryLimit},
		{name: "memory peak", res: result.RunResult{MemoryKB: 129 * 1024}, kind: result.FaultMemoryLimit},
		{name: "output", res: result.RunResult{ExitCode: -1, OutputExceeded: true}, kind: result.FaultOutputLimit},
		{name: "panic", res: result.RunResult{ExitCode: 2, Stderr: "panic: boom\n\ngoroutine 1 [running]:"}, kind: result.FaultRuntime, message: "panic: boom\n\ngoroutine 1 [running]:"},
		{name: "signal", res: result.RunResult{ExitCode: -1, Signal: "segmentation fault"}, kind: result.FaultRuntime, message: "process terminated by signal: segmentation fault"},
		{name: "held output", res: result.RunResult{Stdout: "Even\n", OutputHeld: true}, kind: result.FaultRuntime, message: "output still held by a background process after exit"},
		{name: "exit", res: result.RunResult{ExitCode: 3}, kind: result.FaultRuntime, message: "process exited with code 3"},
		{name: "channel", err: appErr.New(appErr.ChannelRestoreFailed), kind: result.FaultChannelRestore},
		{name: "start", err: appErr.New(appErr.EntryPointNotFound), kind: result.FaultEntryPointSignature},
		{name: "system", err: appErr.New(appErr.JudgeSystemError), kind: result.FaultSystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runOnce(t, &fakeEngine{res: tc.res, err: tc.err}, context.Background())
			fault := asFault(t, err)
			if fault.Kind != tc.kind {
				t.Fatalf("unexpected kind: got %s want %s", fault.Kind, tc.kind)
			}
			if tc.message != "" && fault.Message != tc.message {
				t.Fatalf("unexpected message: %q", fault.Message)
			}
		})
	}
}

func TestRunFatalFaults(t *testing.T) {
	_, err := runOnce(t, &fakeEngine{err: appErr.New(appErr.ChannelRestoreFailed)}, context.Background())
	if !asFault(t, err).Kind.Fatal() {
		t.Fatalf("channel restore must be fatal")
	}
	_, err = runOnce(t, &fakeEngine{res: result.RunResult{ExitCode: 1}}, context.Background())
	if asFault(t, err).Kind.Fatal() {
		t.Fatalf("runtime fault must not be fatal")
	}
	_, err = runOnce(t, &fakeEngine{res: result.RunResult{OutputHeld: true}}, context.Background())
	if asFault(t, err).Kind.Fatal() {
		t.Fatalf("held output must stay local to the case")
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := &fakeEngine{}
	_, err := runOnce(t, eng, ctx)
	if asFault(t, err).Kind != result.FaultCanceled {
		t.Fatalf("expected canceled fault, got %v", err)
	}
	if len(eng.specs) != 0 {
		t.Fatalf("canceled execution must not start a process")
	}
}

func TestPrepareRejectsMissingEntryPoint(t *testing.T) {
	r := newTestRunner(t, &fakeEngine{})
	_, err := r.Prepare(context.Background(), &compiler.Artifact{LanguageID: "go", EntrySymbol: "main.main", Image: []byte("garbage")})
	if asFault(t, err).Kind != result.FaultEntryPointMissing {
		t.Fatalf("expected missing entry point, got %v", err)
	}
}

func TestProgramIsReusableAndCloseIsIdempotent(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{Stdout: "ok"}}
	prog, err := newTestRunner(t, eng).Prepare(context.Background(), testArtifact(t))
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := prog.Execute(context.Background(), "x", time.Second); err != nil {
			t.Fatalf("execute %d failed: %v", i, err)
		}
	}
	if eng.specs[0].TestID == eng.specs[1].TestID {
		t.Fatalf("executions must use distinct test ids")
	}
	if err := prog.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := prog.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
