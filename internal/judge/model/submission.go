package model

import "time"

// Language identifiers accepted by the judge.
const (
	LanguagePython = "python"
	LanguageCpp    = "cpp"
	LanguageJava   = "java"
)

// Submission is a user-owned solution. The judge writes the status fields once per pass.
type Submission struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	ProblemID       int64     `db:"problem_id" json:"problem_id"`
	Code            string    `db:"code" json:"-"`
	Language        string    `db:"language" json:"language"`
	Status          Verdict   `db:"status" json:"status"`
	ExecutionTime   float64   `db:"execution_time" json:"execution_time"`
	MemoryUsed      int64     `db:"memory_used" json:"memory_used"`
	TestCasesPassed int       `db:"test_cases_passed" json:"test_cases_passed"`
	TotalTestCases  int       `db:"total_test_cases" json:"total_test_cases"`
	ErrorMessage    string    `db:"error_message" json:"error_message"`
	SubmittedAt     time.Time `db:"submitted_at" json:"submitted_at"`

	// SourceKey names an object holding the code when Code is empty.
	SourceKey  string `db:"source_key" json:"-"`
	SourceHash string `db:"source_hash" json:"-"`
}

// Problem carries the limits the judge applies to every case.
type Problem struct {
	ID            int64 `db:"id" json:"id"`
	TimeLimitMs   int64 `db:"time_limit_ms" json:"time_limit_ms"`
	MemoryLimitMB int64 `db:"memory_limit_mb" json:"memory_limit_mb"`

	// DataPackKey, when set, points at a tar.zst test data pack in object storage.
	DataPackKey  string `db:"data_pack_key" json:"-"`
	DataPackHash string `db:"data_pack_hash" json:"-"`
}

// TestCase belongs to exactly one problem. Cases run in ascending Order.
type TestCase struct {
	ID             int64  `db:"id" json:"id"`
	ProblemID      int64  `db:"problem_id" json:"problem_id"`
	InputData      string `db:"input_data" json:"input_data"`
	ExpectedOutput string `db:"expected_output" json:"expected_output"`
	IsSample       bool   `db:"is_sample" json:"is_sample"`
	Order          int    `db:"sort_order" json:"order"`
}

// SubmissionResult is the persisted record of one executed case.
type SubmissionResult struct {
	SubmissionID  string  `db:"submission_id"`
	TestCaseID    int64   `db:"test_case_id"`
	Status        Verdict `db:"status"`
	ExecutionTime float64 `db:"execution_time"`
	MemoryUsed    int64   `db:"memory_used"`
	ActualOutput  string  `db:"actual_output"`
	ErrorMessage  string  `db:"error_message"`
}
