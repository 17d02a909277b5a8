// Package compiler turns submitted source into an in-memory executable image.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coderush/internal/judge/sandbox/config"
	"coderush/internal/judge/sandbox/engine"
	"coderush/internal/judge/sandbox/observer"
	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/spec"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/contextkey"
	"coderush/pkg/utils/logger"
)

const (
	compileTestID  = "compile"
	lintTestID     = "lint"
	timeoutMessage = "compilation time limit exceeded"
)

// Compiler produces an artifact or the full list of diagnostics.
//
// A non-nil error is returned only for faults of the judge itself; the
// diagnostics then hold exactly one entry marked Internal.
type Compiler interface {
	Compile(ctx context.Context, languageID, source string) (*Artifact, []result.Diagnostic, error)
}

// ToolchainCompiler runs the configured language toolchain inside the sandbox.
type ToolchainCompiler struct {
	eng      engine.Engine
	repo     config.Repository
	metrics  observer.MetricsRecorder
	workRoot string
}

// NewCompiler creates a compiler backed by the sandbox engine.
func NewCompiler(eng engine.Engine, repo config.Repository, workRoot string) *ToolchainCompiler {
	return NewCompilerWithObserver(eng, repo, workRoot, observer.NoopMetricsRecorder{})
}

// NewCompilerWithObserver creates a compiler with metrics hooks.
func NewCompilerWithObserver(eng engine.Engine, repo config.Repository, workRoot string, metrics observer.MetricsRecorder) *ToolchainCompiler {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &ToolchainCompiler{eng: eng, repo: repo, metrics: metrics, workRoot: workRoot}
}

func (c *ToolchainCompiler) Compile(ctx context.Context, languageID, source string) (*Artifact, []result.Diagnostic, error) {
	lang, err := c.repo.GetLanguageSpec(ctx, languageID)
	if err != nil {
		return nil, nil, err
	}
	if !lang.CompileEnabled {
		return nil, nil, appErr.Newf(appErr.LanguageNotSupported, "language %s is not compiled", lang.ID)
	}
	prof, err := c.repo.GetTaskProfile(ctx, profile.TaskTypeCompile, lang.ID)
	if err != nil {
		return c.toolchainFault(ctx, lang, err, "compile profile missing")
	}

	workDir, err := c.prepareWorkspace(lang, source)
	if err != nil {
		return c.toolchainFault(ctx, lang, err, "prepare workspace failed")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "remove compile workspace failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	cmd, err := buildCommand(lang.CompileCmdTpl, lang, workDir)
	if err != nil {
		return c.toolchainFault(ctx, lang, err, "invalid compile command")
	}

	runSpec := spec.RunSpec{
		SubmissionID: submissionID(ctx),
		TestID:       compileTestID,
		WorkDir:      workDir,
		Cmd:          cmd,
		Env:          compileEnv(lang),
		Profile:      profile.Name(lang.ID, profile.TaskTypeCompile),
		Limits:       profile.ApplyLimits(spec.ResourceLimit{}, prof.DefaultLimits, lang),
	}
	runRes, err := c.eng.Run(ctx, runSpec)
	ok := err == nil && runRes.ExitCode == 0 && !runRes.TimedOut
	c.metrics.ObserveCompile(ctx, lang.ID, ok, runRes.WallTimeMs, runRes.MemoryKB)
	if ctx.Err() != nil {
		return nil, nil, appErr.Canceled(ctx.Err())
	}
	if err != nil {
		return c.toolchainFault(ctx, lang, err, "compiler could not be run")
	}

	if runRes.TimedOut {
		return nil, []result.Diagnostic{{Severity: result.SeverityError, Message: timeoutMessage}}, nil
	}

	output := runRes.Stderr + runRes.Stdout
	diags := ParseDiagnostics(lang.DiagnosticFormat, output, workDir)
	if runRes.ExitCode != 0 {
		if !result.HasErrors(diags) {
			diags = append(diags, rawDiagnostic(scrubWorkDir(output, workDir), runRes.ExitCode))
		}
		logger.Debug(ctx, "compilation failed",
			zap.String("language", lang.ID),
			zap.Int("exit_code", runRes.ExitCode),
			zap.Int("diagnostics", len(diags)),
		)
		return nil, diags, nil
	}

	diags = append(diags, c.lint(ctx, lang, workDir)...)

	image, err := os.ReadFile(filepath.Join(workDir, lang.BinaryFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c.toolchainFault(ctx, lang, err, "read compiler output failed")
	}
	// A missing binary is left to entry point lookup.
	return &Artifact{
		LanguageID:  lang.ID,
		EntrySymbol: lang.EntrySymbol,
		Image:       image,
	}, diags, nil
}

// lint runs the optional lint stage. Its findings never block the artifact.
func (c *ToolchainCompiler) lint(ctx context.Context, lang profile.LanguageSpec, workDir string) []result.Diagnostic {
	if strings.TrimSpace(lang.LintCmdTpl) == "" {
		return nil
	}
	prof, err := c.repo.GetTaskProfile(ctx, profile.TaskTypeLint, lang.ID)
	if err != nil {
		logger.Warn(ctx, "lint profile missing", zap.String("language", lang.ID), zap.Error(err))
		return nil
	}
	cmd, err := buildCommand(lang.LintCmdTpl, lang, workDir)
	if err != nil {
		logger.Warn(ctx, "invalid lint command", zap.String("language", lang.ID), zap.Error(err))
		return nil
	}
	runRes, err := c.eng.Run(ctx, spec.RunSpec{
		SubmissionID: submissionID(ctx),
		TestID:       lintTestID,
		WorkDir:      workDir,
		Cmd:          cmd,
		Env:          compileEnv(lang),
		Profile:      profile.Name(lang.ID, profile.TaskTypeLint),
		Limits:       profile.ApplyLimits(spec.ResourceLimit{}, prof.DefaultLimits, lang),
	})
	if err != nil || runRes.TimedOut {
		logger.Warn(ctx, "lint stage skipped", zap.String("language", lang.ID), zap.Bool("timed_out", runRes.TimedOut), zap.Error(err))
		return nil
	}
	return asWarnings(ParseDiagnostics(lang.DiagnosticFormat, runRes.Stderr+runRes.Stdout, workDir))
}

func (c *ToolchainCompiler) prepareWorkspace(lang profile.LanguageSpec, source string) (string, error) {
	if lang.SourceFile == "" || lang.BinaryFile == "" {
		return "", appErr.ValidationError("source_file_name", "required")
	}
	if c.workRoot != "" {
		if err := os.MkdirAll(c.workRoot, 0700); err != nil {
			return "", err
		}
	}
	workDir, err := os.MkdirTemp(c.workRoot, "compile-")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(workDir, lang.SourceFile), []byte(source), 0600); err != nil {
		_ = os.RemoveAll(workDir)
		return "", err
	}
	return workDir, nil
}

func (c *ToolchainCompiler) toolchainFault(ctx context.Context, lang profile.LanguageSpec, err error, msg string) (*Artifact, []result.Diagnostic, error) {
	logger.Error(ctx, "toolchain fault", zap.String("language", lang.ID), zap.String("reason", msg), zap.Error(err))
	diag := result.Diagnostic{
		Severity: result.SeverityError,
		Message:  "internal compiler error: " + msg,
		Internal: true,
	}
	return nil, []result.Diagnostic{diag}, appErr.Wrapf(err, appErr.ToolchainUnavailable, "%s", msg)
}

func buildCommand(tpl string, lang profile.LanguageSpec, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", shellQuote(filepath.Join(workDir, lang.SourceFile)))
	expanded = strings.ReplaceAll(expanded, "{bin}", shellQuote(filepath.Join(workDir, lang.BinaryFile)))
	expanded = strings.ReplaceAll(expanded, "{extraFlags}", strings.Join(lang.ExtraFlags, " "))
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// compileEnv forwards the host variables named in PassEnv and appends CompileEnv.
func compileEnv(lang profile.LanguageSpec) []string {
	env := make([]string, 0, len(lang.PassEnv)+len(lang.CompileEnv))
	for _, name := range lang.PassEnv {
		if val, ok := os.LookupEnv(name); ok {
			env = append(env, fmt.Sprintf("%s=%s", name, val))
		}
	}
	return append(env, lang.CompileEnv...)
}

func submissionID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(contextkey.SubmissionID).(string); ok && id != "" {
			return id
		}
	}
	return uuid.NewString()
}
