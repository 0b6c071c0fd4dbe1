// Package repository persists submissions, problems and judge status.
package repository

import (
	"context"

	"algojudge/internal/judge/model"
)

// Repository is the relational store the judge reads problems from and
// writes verdicts to.
type Repository interface {
	GetProblem(ctx context.Context, problemID int64) (model.Problem, error)
	GetSubmission(ctx context.Context, submissionID string) (model.Submission, error)

	// GetTestCases returns the cases of a problem in ascending order.
	GetTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error)

	// SaveSubmissionResult updates the submission and replaces its per-case
	// results in one transaction.
	SaveSubmissionResult(ctx context.Context, outcome model.SubmissionOutcome) error

	// MarkJudgeState records the lifecycle state of the current pass.
	MarkJudgeState(ctx context.Context, submissionID string, state model.JudgeState) error
}
