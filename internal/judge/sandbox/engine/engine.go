// Package engine runs sandboxed processes with in-memory standard streams.
package engine

import (
	"context"

	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
//
// Run returns an *errors.Error with code ChannelRestoreFailed when the process
// group could not be torn down; callers must treat the engine as unusable.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	KillSubmission(ctx context.Context, submissionID string) error
}
