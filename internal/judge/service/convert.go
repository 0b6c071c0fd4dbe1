package service

import (
	"algojudge/internal/judge/model"
	"algojudge/internal/judge/sandbox/result"
)

// toJudgingResult shapes a worker result for callers and persistence.
func toJudgingResult(res result.JudgeResult, dryRun bool) model.JudgingResult {
	out := model.JudgingResult{
		SubmissionID:    res.SubmissionID,
		State:           res.State,
		Status:          res.Verdict,
		TestCasesPassed: res.Passed,
		TotalTestCases:  res.Total,
		ExecutionTime:   res.ExecutionTimeSec,
		MemoryUsed:      res.MemoryKB,
		ErrorMessage:    res.ErrorMessage,
		DryRun:          dryRun,
		Cases:           make([]model.CaseDetail, 0, len(res.Tests)),
	}
	for _, tc := range res.Tests {
		out.Cases = append(out.Cases, model.CaseDetail{
			TestCaseID:    tc.TestCaseID,
			Order:         tc.Order,
			IsSample:      tc.IsSample,
			Status:        tc.Verdict,
			ExecutionTime: float64(tc.WallTimeMs) / 1000,
			MemoryUsed:    tc.MemoryKB,
			ActualOutput:  tc.Stdout,
			ErrorMessage:  tc.Message,
			FailureKind:   tc.FailureKind,
			Diagnosis:     tc.Diagnosis,
		})
	}
	return out
}
