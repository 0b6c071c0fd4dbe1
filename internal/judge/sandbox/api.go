// Package sandbox drives one judging pass: compile once, run every case in
// order, stop at the first fatal verdict and aggregate the outcome.
package sandbox

import (
	"context"

	"algojudge/internal/judge/sandbox/result"
)

// Executor is the judging entrypoint used by the service layer.
type Executor interface {
	Execute(ctx context.Context, req JudgeRequest) (result.JudgeResult, error)
}

// JudgeRequest contains all data needed to judge one submission.
type JudgeRequest struct {
	SubmissionID string
	Language     string
	Code         string

	TimeLimitMs   int64
	MemoryLimitMB int64

	Tests []TestcaseSpec

	// WorkRoot is the host path under which the scratch area is created.
	WorkRoot string

	// SkipCompare judges without expected answers; a clean run is AC.
	SkipCompare bool

	ReceivedAt int64
}

// TestcaseSpec describes one test case input and expected answer.
type TestcaseSpec struct {
	TestCaseID int64
	Order      int
	IsSample   bool
	Input      string
	Expected   string
}
