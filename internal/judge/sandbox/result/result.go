// Package result defines sandbox execution results and verdict mapping.
package result

import (
	"fmt"
	"strings"
)

// JudgeStatus represents the lifecycle state of a submission.
type JudgeStatus string

const (
	StatusPending   JudgeStatus = "Pending"
	StatusCompiling JudgeStatus = "Compiling"
	StatusRunning   JudgeStatus = "Running"
	StatusFinished  JudgeStatus = "Finished"
	StatusFailed    JudgeStatus = "Failed"
)

// Verdict represents the final outcome of execution.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictOLE Verdict = "OLE"
	VerdictRE  Verdict = "RE"
	VerdictCE  Verdict = "CE"
	VerdictSE  Verdict = "SE"
)

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode       int
	Signal         string
	TimeMs         int64
	WallTimeMs     int64
	MemoryKB       int64
	OutputKB       int64
	Stdout         string
	Stderr         string
	OomKilled      bool
	TimedOut       bool
	OutputExceeded bool
	// OutputHeld is set when a descendant kept an output pipe open after
	// the process group was killed.
	OutputHeld bool
}

// Severity classifies a compiler diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one compiler-reported problem.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	// Internal marks a synthetic diagnostic produced by the judge itself
	// rather than by the submitted code.
	Internal bool `json:"-"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d", d.Line)
			if d.Column > 0 {
				fmt.Fprintf(&b, ":%d", d.Column)
			}
		}
		b.WriteString(": ")
	}
	b.WriteString(string(d.Severity))
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// TestCase is one input/expected-output pair.
type TestCase struct {
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expectedOutput" yaml:"expectedOutput"`
}

// FaultKind classifies why an execution produced no comparable output.
type FaultKind string

const (
	FaultEntryPointMissing   FaultKind = "entry_point_missing"
	FaultEntryPointSignature FaultKind = "entry_point_signature"
	FaultRuntime             FaultKind = "runtime"
	FaultTimeout             FaultKind = "timeout"
	FaultMemoryLimit         FaultKind = "memory_limit"
	FaultOutputLimit         FaultKind = "output_limit"
	FaultCanceled            FaultKind = "canceled"
	FaultChannelRestore      FaultKind = "channel_restore"
	FaultSystem              FaultKind = "system"
)

// Fatal reports whether the fault invalidates the engine rather than one case.
func (k FaultKind) Fatal() bool {
	return k == FaultChannelRestore || k == FaultSystem
}

// Verdict maps a fault kind to a verdict.
func (k FaultKind) Verdict() Verdict {
	switch k {
	case FaultTimeout:
		return VerdictTLE
	case FaultMemoryLimit:
		return VerdictMLE
	case FaultOutputLimit:
		return VerdictOLE
	case FaultRuntime, FaultEntryPointMissing, FaultEntryPointSignature:
		return VerdictRE
	default:
		return VerdictSE
	}
}

// Fault is an execution failure. It is returned as an error by the runner.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewFault creates a fault with a formatted human-readable message.
func NewFault(kind FaultKind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// ExecutionOutcome is the result of running one test case.
type ExecutionOutcome struct {
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	ActualOutput   string  `json:"actualOutput"`
	Success        bool    `json:"isSuccess"`
	Verdict        Verdict `json:"verdict"`
	Fault          *Fault  `json:"fault,omitempty"`
	TimeMs         int64   `json:"timeMs"`
}

// Matches compares outputs ignoring surrounding whitespace only.
func Matches(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

// NewOutcome judges one successful execution.
func NewOutcome(tc TestCase, actual string, timeMs int64) ExecutionOutcome {
	out := ExecutionOutcome{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   actual,
		Success:        Matches(actual, tc.ExpectedOutput),
		TimeMs:         timeMs,
	}
	out.Verdict = VerdictAC
	if !out.Success {
		out.Verdict = VerdictWA
	}
	return out
}

// NewFaultOutcome records a failed execution; the fault message becomes the actual output.
func NewFaultOutcome(tc TestCase, fault *Fault) ExecutionOutcome {
	return ExecutionOutcome{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   fault.Message,
		Success:        false,
		Verdict:        fault.Kind.Verdict(),
		Fault:          fault,
	}
}

// SummaryStat captures aggregate statistics across testcases.
type SummaryStat struct {
	Total       int   `json:"total"`
	Passed      int   `json:"passed"`
	TotalTimeMs int64 `json:"totalTimeMs"`
	// FailedIndex is the position of the first failed case, or -1.
	FailedIndex int `json:"failedIndex"`
}

// ValidationReport is the terminal aggregate for one submission.
type ValidationReport struct {
	SubmissionID string             `json:"submissionId"`
	Language     string             `json:"language"`
	Success      bool               `json:"success"`
	Verdict      Verdict            `json:"verdict"`
	Diagnostics  []Diagnostic       `json:"diagnostics"`
	Outcomes     []ExecutionOutcome `json:"outcomes"`
	Summary      SummaryStat        `json:"summary"`
}

// Errors returns the error-severity diagnostics.
func (r ValidationReport) Errors() []Diagnostic {
	return r.filter(SeverityError)
}

// Warnings returns the diagnostics below error severity.
func (r ValidationReport) Warnings() []Diagnostic {
	out := make([]Diagnostic, 0)
	for _, d := range r.Diagnostics {
		if d.Severity != SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// CompileFailed reports whether any error diagnostic is present.
func (r ValidationReport) CompileFailed() bool {
	return HasErrors(r.Diagnostics)
}

func (r ValidationReport) filter(sev Severity) []Diagnostic {
	out := make([]Diagnostic, 0)
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// Finalize derives Success, Verdict and Summary from diagnostics and outcomes.
func (r *ValidationReport) Finalize() {
	if r.Diagnostics == nil {
		r.Diagnostics = []Diagnostic{}
	}
	if r.Outcomes == nil {
		r.Outcomes = []ExecutionOutcome{}
	}
	summary := SummaryStat{Total: len(r.Outcomes), FailedIndex: -1}
	verdict := VerdictAC
	for i, o := range r.Outcomes {
		summary.TotalTimeMs += o.TimeMs
		if o.Success {
			summary.Passed++
			continue
		}
		if summary.FailedIndex < 0 {
			summary.FailedIndex = i
			verdict = o.Verdict
		}
	}
	if r.CompileFailed() {
		verdict = VerdictCE
	}
	r.Summary = summary
	r.Verdict = verdict
	r.Success = !r.CompileFailed() && summary.FailedIndex < 0
}

// HasErrors reports whether diags contains an error-severity entry.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
