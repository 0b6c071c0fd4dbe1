package model

// JudgeTask is the queue payload asking for a submit-mode pass.
type JudgeTask struct {
	SubmissionID string `json:"submission_id"`
}

// StatusEventType represents the status event type.
type StatusEventType string

const (
	// StatusEventFinal indicates the final status event.
	StatusEventFinal StatusEventType = "final"
)

// JudgeStatus is the live status document kept in the status cache.
type JudgeStatus struct {
	SubmissionID string     `json:"submission_id"`
	State        JudgeState `json:"state"`
	Status       Verdict    `json:"status,omitempty"`
	Language     string     `json:"language,omitempty"`
	Progress     Progress   `json:"progress"`
	Passed       int        `json:"test_cases_passed"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UpdatedAt    int64      `json:"updated_at"`
}

// Progress represents judge progress.
type Progress struct {
	TotalTests int `json:"total_tests"`
	DoneTests  int `json:"done_tests"`
}

// StatusEvent carries the final status for downstream consumers.
type StatusEvent struct {
	Type      StatusEventType `json:"type"`
	Status    JudgeStatus     `json:"status"`
	CreatedAt int64           `json:"created_at"`
}
