package repository_test

import (
	"context"
	"testing"

	"algojudge/internal/judge/model"
	"algojudge/internal/judge/repository"
	appErr "algojudge/pkg/errors"
)

type stubRepository struct {
	problems map[int64]model.Problem
	cases    map[int64][]model.TestCase
}

func (r *stubRepository) GetProblem(_ context.Context, id int64) (model.Problem, error) {
	p, ok := r.problems[id]
	if !ok {
		return model.Problem{}, appErr.New(appErr.ProblemNotFound)
	}
	return p, nil
}

func (r *stubRepository) GetSubmission(context.Context, string) (model.Submission, error) {
	return model.Submission{}, appErr.New(appErr.SubmissionNotFound)
}

func (r *stubRepository) GetTestCases(_ context.Context, id int64) ([]model.TestCase, error) {
	return r.cases[id], nil
}

func (r *stubRepository) SaveSubmissionResult(context.Context, model.SubmissionOutcome) error {
	return nil
}

func (r *stubRepository) MarkJudgeState(context.Context, string, model.JudgeState) error {
	return nil
}

type stubLoader struct {
	calls int
}

func (l *stubLoader) LoadTestCases(_ context.Context, problem model.Problem) ([]model.TestCase, error) {
	l.calls++
	return []model.TestCase{{ID: 100, ProblemID: problem.ID, InputData: "pack"}}, nil
}

func TestPackedRepositoryRouting(t *testing.T) {
	base := &stubRepository{
		problems: map[int64]model.Problem{
			1: {ID: 1},
			2: {ID: 2, DataPackKey: "packs/2.tar.zst"},
		},
		cases: map[int64][]model.TestCase{
			1: {{ID: 10, ProblemID: 1, InputData: "db"}},
		},
	}
	loader := &stubLoader{}
	repo := repository.WithDataPacks(base, loader)
	ctx := context.Background()

	cases, err := repo.GetTestCases(ctx, 1)
	if err != nil || len(cases) != 1 || cases[0].InputData != "db" {
		t.Fatalf("expected database cases, got %+v (%v)", cases, err)
	}
	cases, err = repo.GetTestCases(ctx, 2)
	if err != nil || len(cases) != 1 || cases[0].InputData != "pack" {
		t.Fatalf("expected pack cases, got %+v (%v)", cases, err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one pack load, got %d", loader.calls)
	}
	if _, err := repo.GetTestCases(ctx, 3); !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
}

func TestWithDataPacksNilLoader(t *testing.T) {
	base := &stubRepository{}
	if got := repository.WithDataPacks(base, nil); got != repository.Repository(base) {
		t.Fatal("expected the base repository back")
	}
}
