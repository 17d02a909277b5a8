package exercise

import (
	"context"
	"sort"

	appErr "coderush/pkg/errors"
)

// Catalog looks up exercises by id.
type Catalog interface {
	Get(ctx context.Context, id int) (Exercise, error)
	List(ctx context.Context) []Exercise
}

// StaticCatalog is an immutable in-memory catalog.
type StaticCatalog struct {
	byID map[int]Exercise
	ids  []int
}

// NewStaticCatalog validates the exercises and indexes them by id.
// An empty list falls back to Default.
func NewStaticCatalog(exercises []Exercise) (*StaticCatalog, error) {
	if len(exercises) == 0 {
		exercises = Default()
	}
	c := &StaticCatalog{byID: make(map[int]Exercise, len(exercises))}
	for _, ex := range exercises {
		if ex.ID <= 0 {
			return nil, appErr.ValidationError("exercise.id", "must be positive")
		}
		if _, dup := c.byID[ex.ID]; dup {
			return nil, appErr.Newf(appErr.InvalidParams, "duplicate exercise id %d", ex.ID)
		}
		if len(ex.Tests) == 0 {
			return nil, appErr.Newf(appErr.TestCaseNotFound, "exercise %d has no test cases", ex.ID)
		}
		if ex.TimeLimitMs < 0 {
			return nil, appErr.Newf(appErr.TestCaseInvalid, "exercise %d has a negative time limit", ex.ID)
		}
		c.byID[ex.ID] = ex
		c.ids = append(c.ids, ex.ID)
	}
	sort.Ints(c.ids)
	return c, nil
}

// Get returns the exercise or ExerciseNotFound.
func (c *StaticCatalog) Get(ctx context.Context, id int) (Exercise, error) {
	ex, ok := c.byID[id]
	if !ok {
		return Exercise{}, appErr.New(appErr.ExerciseNotFound).WithMessage("Task not found.").WithDetail("id", id)
	}
	return ex, nil
}

// List returns every exercise ordered by id.
func (c *StaticCatalog) List(ctx context.Context) []Exercise {
	out := make([]Exercise, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}
