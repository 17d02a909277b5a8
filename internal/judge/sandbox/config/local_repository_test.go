package config

import (
	"context"
	"testing"

	"coderush/internal/judge/sandbox/profile"
	appErr "coderush/pkg/errors"
)

func newTestRepository() *LocalRepository {
	return NewLocalRepository(
		[]profile.LanguageSpec{{ID: "go"}, {ID: "cpp"}, {}},
		[]profile.TaskProfile{
			{LanguageID: "go", TaskType: profile.TaskTypeRun, SeccompProfile: "run.json", DisableNetwork: true},
			{LanguageID: "go", TaskType: profile.TaskTypeCompile},
			{TaskType: profile.TaskTypeRun},
		},
	)
}

func TestGetLanguageSpec(t *testing.T) {
	repo := newTestRepository()
	if _, err := repo.GetLanguageSpec(context.Background(), "go"); err != nil {
		t.Fatalf("expected go spec, got %v", err)
	}
	_, err := repo.GetLanguageSpec(context.Background(), "cobol")
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected language not supported, got %v", err)
	}
}

func TestGetTaskProfile(t *testing.T) {
	repo := newTestRepository()
	prof, err := repo.GetTaskProfile(context.Background(), profile.TaskTypeRun, "go")
	if err != nil || prof.SeccompProfile != "run.json" {
		t.Fatalf("unexpected profile: %+v %v", prof, err)
	}
	if _, err := repo.GetTaskProfile(context.Background(), profile.TaskTypeLint, "go"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	repo := newTestRepository()
	iso, err := repo.Resolve("go-run")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if iso.SeccompProfile != "run.json" || !iso.DisableNetwork {
		t.Fatalf("unexpected isolation: %+v", iso)
	}
	if _, err := repo.Resolve(""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLanguageIDsSorted(t *testing.T) {
	ids := newTestRepository().LanguageIDs()
	if len(ids) != 2 || ids[0] != "cpp" || ids[1] != "go" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
