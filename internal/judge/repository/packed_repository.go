package repository

import (
	"context"

	"algojudge/internal/judge/model"
)

// TestCaseLoader loads the cases of a problem from its data pack.
type TestCaseLoader interface {
	LoadTestCases(ctx context.Context, problem model.Problem) ([]model.TestCase, error)
}

// PackedRepository serves test cases from a data pack for problems that
// name one, and from the wrapped repository otherwise.
type PackedRepository struct {
	Repository
	packs TestCaseLoader
}

// WithDataPacks wraps repo. A nil loader returns repo unchanged.
func WithDataPacks(repo Repository, packs TestCaseLoader) Repository {
	if packs == nil {
		return repo
	}
	return &PackedRepository{Repository: repo, packs: packs}
}

// GetTestCases prefers the problem's data pack when it has one.
func (r *PackedRepository) GetTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	problem, err := r.Repository.GetProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if problem.DataPackKey == "" {
		return r.Repository.GetTestCases(ctx, problemID)
	}
	return r.packs.LoadTestCases(ctx, problem)
}
