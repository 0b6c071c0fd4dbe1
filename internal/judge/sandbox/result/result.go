// Package result defines sandbox execution results.
package result

import "algojudge/internal/judge/model"

// RunResult captures raw sandbox execution data for one process.
type RunResult struct {
	// ExitCode is the process exit status, or 128+signal when killed by a signal.
	ExitCode int

	// Signal is the terminating signal number, 0 when the process exited normally.
	Signal int

	// TimeMs is user+system CPU time; WallTimeMs is elapsed real time.
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64

	// OutputBytes is the size of the stdout file as written by the program.
	OutputBytes int64

	// Stdout is empty when OutputExceeded is set.
	Stdout string
	Stderr string

	TimedOut       bool
	OomKilled      bool
	OutputExceeded bool
}

// ResourceExceeded reports whether any sandbox limit ended the process.
func (r RunResult) ResourceExceeded() bool {
	return r.TimedOut || r.OomKilled || r.OutputExceeded
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64

	// Error is the raw compiler diagnostic text, or the toolchain error.
	Error string

	// ToolchainMissing is set when no compiler candidate could be resolved.
	ToolchainMissing bool
}

// TestcaseResult contains per-testcase execution outcomes.
type TestcaseResult struct {
	TestID     string
	TestCaseID int64
	Order      int
	IsSample   bool
	Verdict    model.Verdict
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	ExitCode   int
	Signal     int
	Stdout     string
	Stderr     string

	// Message is the user-facing error text, empty for AC.
	Message string

	// FailureKind refines the verdict, e.g. model.FailureOutputLimit.
	FailureKind string

	// Diagnosis is the advisory runtime error category.
	Diagnosis string
}

// JudgeResult is the unified response structure for one judging pass.
type JudgeResult struct {
	SubmissionID string
	Language     string
	State        model.JudgeState
	Verdict      model.Verdict
	Compile      *CompileResult
	Tests        []TestcaseResult

	Passed int
	Total  int

	// ExecutionTimeSec is the mean wall time over cases with a recorded time.
	ExecutionTimeSec float64

	// MemoryKB is the mean memory over cases with a recorded value.
	MemoryKB int64

	ErrorMessage string

	ReceivedAt int64
	FinishedAt int64
}
