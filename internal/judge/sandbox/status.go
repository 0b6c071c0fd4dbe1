package sandbox

import (
	"context"

	"algojudge/internal/judge/model"
)

// StatusUpdate carries intermediate judge status data.
type StatusUpdate struct {
	SubmissionID string
	State        model.JudgeState
	Verdict      model.Verdict
	Language     string
	TotalTests   int
	DoneTests    int
	Passed       int
	ErrorMessage string
	ReceivedAt   int64
	FinishedAt   int64
}

// StatusReporter persists intermediate status updates.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate) error
}

// StatusReporterFunc adapts a function to StatusReporter.
type StatusReporterFunc func(ctx context.Context, update StatusUpdate) error

func (f StatusReporterFunc) ReportStatus(ctx context.Context, update StatusUpdate) error {
	return f(ctx, update)
}
