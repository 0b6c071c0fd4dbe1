// Package runner compiles and runs one submission artifact through the sandbox engine.
package runner

import (
	"context"

	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/toolchain"
)

// CompileRequest describes one compilation task. The artifact source is
// already placed in its Dir.
type CompileRequest struct {
	SubmissionID string
	Language     toolchain.LanguageSpec
	Artifact     toolchain.Artifact
}

// RunRequest describes one test case execution.
type RunRequest struct {
	SubmissionID string
	TestID       string
	TestCaseID   int64
	Order        int
	IsSample     bool

	Language toolchain.LanguageSpec

	// Artifact is the compiled output. Its Dir is copied into WorkDir.
	Artifact toolchain.Artifact
	WorkDir  string

	Input    string
	Expected string

	// SkipCompare runs without an expected answer; a clean exit is reported as AC.
	SkipCompare bool

	TimeLimitMs int64
	MemoryBytes int64
}

// Runner orchestrates compile and run workflows.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}
