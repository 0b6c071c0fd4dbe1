package model

// CaseDetail is the per-case breakdown returned to callers.
type CaseDetail struct {
	TestCaseID    int64   `json:"test_case_id"`
	Order         int     `json:"order"`
	IsSample      bool    `json:"is_sample"`
	Status        Verdict `json:"status"`
	ExecutionTime float64 `json:"execution_time"`
	MemoryUsed    int64   `json:"memory_used"`
	ActualOutput  string  `json:"actual_output,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	FailureKind   string  `json:"failure_kind,omitempty"`
	Diagnosis     string  `json:"diagnosis,omitempty"`
}

// JudgingResult is the structured answer to every judge request.
type JudgingResult struct {
	SubmissionID    string       `json:"submission_id,omitempty"`
	State           JudgeState   `json:"state"`
	Status          Verdict      `json:"status,omitempty"`
	TestCasesPassed int          `json:"test_cases_passed"`
	TotalTestCases  int          `json:"total_test_cases"`
	ExecutionTime   float64      `json:"execution_time"`
	MemoryUsed      int64        `json:"memory_used"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	DryRun          bool         `json:"dry_run,omitempty"`
	Cases           []CaseDetail `json:"per_case_details"`
}

// SubmissionOutcome is what the repository persists after a submit-mode pass.
// Results replace any results stored by a previous pass.
type SubmissionOutcome struct {
	SubmissionID    string
	Status          Verdict
	ExecutionTime   float64
	MemoryUsed      int64
	TestCasesPassed int
	TotalTestCases  int
	ErrorMessage    string
	Results         []SubmissionResult
}

// OutcomeFromResult converts a judging result into its persisted form.
func OutcomeFromResult(res JudgingResult) SubmissionOutcome {
	out := SubmissionOutcome{
		SubmissionID:    res.SubmissionID,
		Status:          res.Status,
		ExecutionTime:   res.ExecutionTime,
		MemoryUsed:      res.MemoryUsed,
		TestCasesPassed: res.TestCasesPassed,
		TotalTestCases:  res.TotalTestCases,
		ErrorMessage:    res.ErrorMessage,
		Results:         make([]SubmissionResult, 0, len(res.Cases)),
	}
	for _, c := range res.Cases {
		out.Results = append(out.Results, SubmissionResult{
			SubmissionID:  res.SubmissionID,
			TestCaseID:    c.TestCaseID,
			Status:        c.Status,
			ExecutionTime: c.ExecutionTime,
			MemoryUsed:    c.MemoryUsed,
			ActualOutput:  c.ActualOutput,
			ErrorMessage:  c.ErrorMessage,
		})
	}
	return out
}
