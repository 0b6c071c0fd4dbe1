//go:build !linux

package engine

import (
	"context"

	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/spec"
	"algojudge/pkg/errors"
)

type stubEngine struct{}

// NewEngine returns an engine that refuses to run; the sandbox needs linux.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, errors.New(errors.SandboxUnavailable)
}

func (s *stubEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}
