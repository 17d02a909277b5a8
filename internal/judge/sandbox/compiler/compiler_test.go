package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coderush/internal/judge/sandbox/config"
	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/spec"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/contextkey"
)

type fakeEngine struct {
	specs []spec.RunSpec
	run   func(runSpec spec.RunSpec) (result.RunResult, error)
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.specs = append(f.specs, runSpec)
	if f.run == nil {
		return result.RunResult{}, nil
	}
	return f.run(runSpec)
}

func (f *fakeEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}

func goLanguage() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:               "go",
		SourceFile:       "main.go",
		BinaryFile:       "main",
		CompileEnabled:   true,
		CompileCmdTpl:    "go build -o {bin} {src}",
		DiagnosticFormat: profile.DiagnosticFormatGo,
		EntrySymbol:      "main.main",
		CompileEnv:       []string{"CGO_ENABLED=0"},
	}
}

func newTestCompiler(t *testing.T, eng *fakeEngine, lang profile.LanguageSpec) *ToolchainCompiler {
	t.Helper()
	repo := config.NewLocalRepository(
		[]profile.LanguageSpec{lang, {ID: "python", SourceFile: "main.py"}},
		[]profile.TaskProfile{
			{LanguageID: "go", TaskType: profile.TaskTypeCompile, DefaultLimits: spec.ResourceLimit{WallTimeMs: 10000}},
			{LanguageID: "go", TaskType: profile.TaskTypeLint, DefaultLimits: spec.ResourceLimit{WallTimeMs: 5000}},
		},
	)
	return NewCompiler(eng, repo, t.TempDir())
}

func writeBinary(runSpec spec.RunSpec, content string) error {
	return os.WriteFile(filepath.Join(runSpec.WorkDir, "main"), []byte(content), 0700)
}

func TestCompileSuccessReturnsInMemoryArtifact(t *testing.T) {
	var seenSource string
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		data, err := os.ReadFile(filepath.Join(runSpec.WorkDir, "main.go"))
		if err != nil {
			return result.RunResult{}, err
		}
		seenSource = string(data)
		return result.RunResult{}, writeBinary(runSpec, "\x7fELF-image")
	}}
	c := newTestCompiler(t, eng, goLanguage())
	ctx := context.WithValue(context.Background(), contextkey.SubmissionID, "sub-42")

	art, diags, err := c.Compile(ctx, "go", "package main\nfunc main() {}\n")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	if string(art.Image) != "\x7fELF-image" || art.EntrySymbol != "main.main" || art.LanguageID != "go" {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	if !strings.Contains(seenSource, "func main()") {
		t.Fatalf("source not written to workspace: %q", seenSource)
	}

	runSpec := eng.specs[0]
	if runSpec.SubmissionID != "sub-42" || runSpec.TestID != compileTestID || runSpec.Profile != "go-compile" {
		t.Fatalf("unexpected run spec: %+v", runSpec)
	}
	wantCmd := []string{"go", "build", "-o", filepath.Join(runSpec.WorkDir, "main"), filepath.Join(runSpec.WorkDir, "main.go")}
	if strings.Join(runSpec.Cmd, " ") != strings.Join(wantCmd, " ") {
		t.Fatalf("unexpected command: %v", runSpec.Cmd)
	}
	if runSpec.Env[len(runSpec.Env)-1] != "CGO_ENABLED=0" {
		t.Fatalf("compile env not applied: %v", runSpec.Env)
	}
	if runSpec.Limits.WallTimeMs != 10000 {
		t.Fatalf("profile limits not applied: %+v", runSpec.Limits)
	}
	if _, err := os.Stat(runSpec.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("workspace not removed: %v", err)
	}
}

func TestCompileErrorsReturnAllDiagnostics(t *testing.T) {
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		return result.RunResult{
			ExitCode: 1,
			Stderr:   "# command-line-arguments\n" + runSpec.WorkDir + "/main.go:4:2: undefined: x\n" + runSpec.WorkDir + "/main.go:5:2: declared and not used: y\n",
		}, nil
	}}
	c := newTestCompiler(t, eng, goLanguage())

	art, diags, err := c.Compile(context.Background(), "go", "package main")
	if err != nil {
		t.Fatalf("compile errors must not be returned as error: %v", err)
	}
	if art != nil {
		t.Fatalf("expected no artifact")
	}
	if len(diags) != 2 || diags[0].File != "main.go" || diags[1].Line != 5 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	for _, d := range diags {
		if d.Internal {
			t.Fatalf("user diagnostic marked internal: %+v", d)
		}
	}
}

func TestCompileUnparseableFailureKeepsRawOutput(t *testing.T) {
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		return result.RunResult{ExitCode: 2, Stderr: "linker exploded\n"}, nil
	}}
	c := newTestCompiler(t, eng, goLanguage())

	_, diags, err := c.Compile(context.Background(), "go", "package main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diags) != 1 || diags[0].Severity != result.SeverityError || diags[0].Message != "linker exploded" {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
}

func TestCompileTimeoutIsDiagnostic(t *testing.T) {
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		return result.RunResult{ExitCode: -1, TimedOut: true}, nil
	}}
	c := newTestCompiler(t, eng, goLanguage())

	art, diags, err := c.Compile(context.Background(), "go", "package main")
	if err != nil || art != nil {
		t.Fatalf("unexpected result: %v %v", art, err)
	}
	if len(diags) != 1 || diags[0].Message != timeoutMessage {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
}

func TestCompileToolchainFault(t *testing.T) {
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		return result.RunResult{}, appErr.New(appErr.EntryPointNotFound).WithMessage("exec: go: not found")
	}}
	c := newTestCompiler(t, eng, goLanguage())

	art, diags, err := c.Compile(context.Background(), "go", "package main")
	if err == nil || !appErr.Is(err, appErr.ToolchainUnavailable) {
		t.Fatalf("expected toolchain unavailable, got %v", err)
	}
	if art != nil {
		t.Fatalf("expected no artifact")
	}
	if len(diags) != 1 || !diags[0].Internal || diags[0].Severity != result.SeverityError {
		t.Fatalf("expected one internal diagnostic, got %+v", diags)
	}
}

func TestCompileUnsupportedLanguage(t *testing.T) {
	c := newTestCompiler(t, &fakeEngine{}, goLanguage())
	for _, id := range []string{"cobol", "python"} {
		_, _, err := c.Compile(context.Background(), id, "")
		if !appErr.Is(err, appErr.LanguageNotSupported) {
			t.Fatalf("%s: expected language not supported, got %v", id, err)
		}
	}
}

func TestCompileLintFindingsAreWarnings(t *testing.T) {
	lang := goLanguage()
	lang.LintCmdTpl = "go vet {src}"
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		if runSpec.TestID == lintTestID {
			return result.RunResult{ExitCode: 1, Stderr: "# command-line-arguments\nvet: ./main.go:6:2: unreachable code\n"}, nil
		}
		return result.RunResult{}, writeBinary(runSpec, "\x7fELF")
	}}
	c := newTestCompiler(t, eng, lang)

	art, diags, err := c.Compile(context.Background(), "go", "package main")
	if err != nil || art == nil {
		t.Fatalf("lint findings must not block the artifact: %v", err)
	}
	if len(diags) != 1 || diags[0].Severity != result.SeverityWarning || diags[0].Line != 6 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	if len(eng.specs) != 2 || eng.specs[1].Profile != "go-lint" {
		t.Fatalf("lint stage not run: %+v", eng.specs)
	}
}

func TestCompileMissingBinaryYieldsEmptyArtifact(t *testing.T) {
	c := newTestCompiler(t, &fakeEngine{}, goLanguage())
	art, _, err := c.Compile(context.Background(), "go", "package lib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art == nil || art.Size() != 0 {
		t.Fatalf("expected empty artifact, got %+v", art)
	}
}

func TestCompileHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := &fakeEngine{run: func(runSpec spec.RunSpec) (result.RunResult, error) {
		cancel()
		return result.RunResult{ExitCode: -1}, nil
	}}
	c := newTestCompiler(t, eng, goLanguage())
	_, _, err := c.Compile(ctx, "go", "package main")
	if !appErr.Is(err, appErr.RequestCanceled) {
		t.Fatalf("expected request canceled, got %v", err)
	}
}
