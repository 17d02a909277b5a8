// Package profile defines language and task profiles used by the sandbox.
package profile

import "coderush/internal/judge/sandbox/spec"

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
	TaskTypeLint    TaskType = "lint"
)

// DiagnosticFormat selects the parser used for toolchain output.
type DiagnosticFormat string

const (
	// DiagnosticFormatGCC parses "file:line:col: severity: message" lines.
	DiagnosticFormatGCC DiagnosticFormat = "gcc"
	// DiagnosticFormatGo parses "file:line:col: message" lines emitted by the go tool.
	DiagnosticFormatGo DiagnosticFormat = "go"
)

// LanguageSpec defines how to compile and run a language.
//
// Command templates are split with shell rules after expanding {src}, {bin}
// and {extraFlags}.
type LanguageSpec struct {
	ID               string           `yaml:"id"`
	Name             string           `yaml:"name"`
	Version          string           `yaml:"version"`
	SourceFile       string           `yaml:"sourceFile"`
	BinaryFile       string           `yaml:"binaryFile"`
	CompileEnabled   bool             `yaml:"compileEnabled"`
	CompileCmdTpl    string           `yaml:"compileCmdTpl"`
	LintCmdTpl       string           `yaml:"lintCmdTpl"`
	DiagnosticFormat DiagnosticFormat `yaml:"diagnosticFormat"`
	// EntrySymbol is the function symbol the compiled executable must export.
	EntrySymbol string `yaml:"entrySymbol"`
	// CompileEnv is appended to the host variables listed in PassEnv.
	CompileEnv []string `yaml:"compileEnv"`
	PassEnv    []string `yaml:"passEnv"`
	// RunEnv is the complete environment of the guest program.
	RunEnv           []string `yaml:"runEnv"`
	ExtraFlags       []string `yaml:"extraFlags"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
}

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	LanguageID     string             `yaml:"languageId"`
	TaskType       TaskType           `yaml:"taskType"`
	SeccompProfile string             `yaml:"seccompProfile"`
	DisableNetwork bool               `yaml:"disableNetwork"`
	DefaultLimits  spec.ResourceLimit `yaml:"defaultLimits"`
}

// Name returns the isolation profile key for a language and task type.
func Name(languageID string, taskType TaskType) string {
	if languageID == "" {
		return string(taskType)
	}
	return languageID + "-" + string(taskType)
}
