// Package engine runs one command inside the sandbox and reports raw results.
package engine

import (
	"context"

	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	// KillSubmission terminates every process still running for the submission.
	KillSubmission(ctx context.Context, submissionID string) error
}
