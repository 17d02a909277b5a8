package config

import (
	"context"
	"sort"

	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/security"
	appErr "coderush/pkg/errors"
)

// LocalRepository serves language specs and task profiles from memory.
type LocalRepository struct {
	languages map[string]profile.LanguageSpec
	profiles  map[string]profile.TaskProfile
}

// NewLocalRepository creates a repository from config lists.
func NewLocalRepository(languages []profile.LanguageSpec, profiles []profile.TaskProfile) *LocalRepository {
	langMap := make(map[string]profile.LanguageSpec)
	for _, lang := range languages {
		if lang.ID == "" {
			continue
		}
		langMap[lang.ID] = lang
	}
	profileMap := make(map[string]profile.TaskProfile)
	for _, prof := range profiles {
		if prof.TaskType == "" || prof.LanguageID == "" {
			continue
		}
		profileMap[profile.Name(prof.LanguageID, prof.TaskType)] = prof
	}
	return &LocalRepository{languages: langMap, profiles: profileMap}
}

// GetLanguageSpec returns a language spec.
func (r *LocalRepository) GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error) {
	if id == "" {
		return profile.LanguageSpec{}, appErr.ValidationError("language_id", "required")
	}
	lang, ok := r.languages[id]
	if !ok {
		return profile.LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", id)
	}
	return lang, nil
}

// GetTaskProfile returns a task profile by type and language.
func (r *LocalRepository) GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID string) (profile.TaskProfile, error) {
	if taskType == "" || languageID == "" {
		return profile.TaskProfile{}, appErr.ValidationError("task_profile", "required")
	}
	prof, ok := r.profiles[profile.Name(languageID, taskType)]
	if !ok {
		return profile.TaskProfile{}, appErr.Newf(appErr.NotFound, "task profile not found: %s", profile.Name(languageID, taskType))
	}
	return prof, nil
}

// Resolve maps a profile name to isolation settings.
func (r *LocalRepository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[profileName]
	if !ok {
		return security.IsolationProfile{}, appErr.Newf(appErr.NotFound, "profile not found: %s", profileName)
	}
	return security.IsolationProfile{
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: prof.DisableNetwork,
	}, nil
}

// LanguageIDs lists the configured languages in sorted order.
func (r *LocalRepository) LanguageIDs() []string {
	ids := make([]string, 0, len(r.languages))
	for id := range r.languages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
