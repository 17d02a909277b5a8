// Package config loads language specs and task profiles for the sandbox.
package config

import (
	"context"

	"coderush/internal/judge/sandbox/profile"
)

// LanguageSpecRepository loads language specifications.
type LanguageSpecRepository interface {
	GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error)
}

// TaskProfileRepository loads task profiles by type and language.
type TaskProfileRepository interface {
	GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID string) (profile.TaskProfile, error)
}

// Repository is the combined lookup used by the compiler and runner.
type Repository interface {
	LanguageSpecRepository
	TaskProfileRepository
}
