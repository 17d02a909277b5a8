// Package spec defines the execution specification and resource limits.
package spec

import "os"

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUTimeMs  int64 `json:"cpuTimeMs" yaml:"cpuTimeMs"`
	WallTimeMs int64 `json:"wallTimeMs" yaml:"wallTimeMs"`
	MemoryMB   int64 `json:"memoryMB" yaml:"memoryMB"`
	StackMB    int64 `json:"stackMB" yaml:"stackMB"`
	OutputMB   int64 `json:"outputMB" yaml:"outputMB"`
	PIDs       int64 `json:"pids" yaml:"pids"`
}

// RunSpec is the unified execution specification for one task.
// Stdin is fed through a private pipe; stdout and stderr are captured in memory.
type RunSpec struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	Stdin        []byte
	// ExtraFiles are inherited by the child starting at fd 3.
	ExtraFiles []*os.File
	Profile    string
	Limits     ResourceLimit
}
