package repository

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"coderush/internal/judge/model"
	appErr "coderush/pkg/errors"
)

const (
	defaultStatusTTL   = 10 * time.Minute
	defaultStatusLimit = 100000
)

// StatusRepository keeps recent submission status in a local expiring cache.
//
// Entries expire TTL after their last update. The cache evicts the least
// recently used entry once the limit is reached.
type StatusRepository struct {
	// mu serializes the read-merge-write in Save.
	mu    sync.Mutex
	cache *collection.Cache
}

// NewStatusRepository creates a new repository. A non-positive ttl falls back
// to the default.
func NewStatusRepository(ttl time.Duration) (*StatusRepository, error) {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	cache, err := collection.NewCache(ttl,
		collection.WithName("judge-status"),
		collection.WithLimit(defaultStatusLimit),
	)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create status cache failed")
	}
	return &StatusRepository{cache: cache}, nil
}

// Get returns status by submission id.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if submissionID == "" {
		return model.JudgeStatusResponse{}, appErr.ValidationError("submission_id", "required")
	}
	status, ok := r.load(submissionID)
	if !ok {
		return model.JudgeStatusResponse{}, appErr.New(appErr.NotFound).WithMessage("submission status not found")
	}
	return status, nil
}

// Save stores status. Fields left empty by an intermediate update keep their
// previous values, and a terminal status is never replaced by a running one.
func (r *StatusRepository) Save(ctx context.Context, status model.JudgeStatusResponse) error {
	if status.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.load(status.SubmissionID); ok {
		if prev.Terminal() && !status.Terminal() {
			return nil
		}
		status = merge(prev, status)
	}
	r.cache.Set(status.SubmissionID, status)
	return nil
}

func (r *StatusRepository) load(submissionID string) (model.JudgeStatusResponse, bool) {
	val, ok := r.cache.Get(submissionID)
	if !ok {
		return model.JudgeStatusResponse{}, false
	}
	status, ok := val.(model.JudgeStatusResponse)
	return status, ok
}

func merge(prev, next model.JudgeStatusResponse) model.JudgeStatusResponse {
	if next.ExerciseID == 0 {
		next.ExerciseID = prev.ExerciseID
	}
	if next.Language == "" {
		next.Language = prev.Language
	}
	if next.Timestamps.ReceivedAt == 0 {
		next.Timestamps.ReceivedAt = prev.Timestamps.ReceivedAt
	}
	if next.Progress.TotalTests == 0 {
		next.Progress.TotalTests = prev.Progress.TotalTests
	}
	return next
}
