package service_test

import (
	"bytes"
	"context"
	"io"
	"sync"

	"algojudge/internal/common/storage"
	"algojudge/internal/judge/model"
	"algojudge/internal/judge/sandbox"
	"algojudge/internal/judge/sandbox/result"
	appErr "algojudge/pkg/errors"
)

type executeFunc func(ctx context.Context, req sandbox.JudgeRequest) (result.JudgeResult, error)

type fakeExecutor struct {
	mu       sync.Mutex
	fn       executeFunc
	requests []sandbox.JudgeRequest
}

func (e *fakeExecutor) Execute(ctx context.Context, req sandbox.JudgeRequest) (result.JudgeResult, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	fn := e.fn
	e.mu.Unlock()
	if fn == nil {
		return acceptAll(req), nil
	}
	return fn(ctx, req)
}

func (e *fakeExecutor) lastRequest() sandbox.JudgeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

// acceptAll answers every case with AC the way the worker would.
func acceptAll(req sandbox.JudgeRequest) result.JudgeResult {
	res := result.JudgeResult{
		SubmissionID: req.SubmissionID,
		Language:     req.Language,
		State:        model.StateCompleted,
		Verdict:      model.VerdictAC,
		Total:        len(req.Tests),
	}
	for _, tc := range req.Tests {
		res.Tests = append(res.Tests, result.TestcaseResult{
			TestCaseID: tc.TestCaseID,
			Order:      tc.Order,
			IsSample:   tc.IsSample,
			Verdict:    model.VerdictAC,
			WallTimeMs: 100,
			MemoryKB:   2048,
			Stdout:     tc.Expected,
		})
		res.Passed++
	}
	res.ExecutionTimeSec = 0.1
	res.MemoryKB = 2048
	return res
}

type fakeRepository struct {
	mu          sync.Mutex
	submissions map[string]model.Submission
	problems    map[int64]model.Problem
	cases       map[int64][]model.TestCase
	outcomes    []model.SubmissionOutcome
	states      []model.JudgeState
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		submissions: map[string]model.Submission{
			"s1": {ID: "s1", ProblemID: 1, Language: "python", Code: "print(input())"},
		},
		problems: map[int64]model.Problem{
			1: {ID: 1, TimeLimitMs: 1000, MemoryLimitMB: 256},
		},
		cases: map[int64][]model.TestCase{
			1: {
				{ID: 11, ProblemID: 1, InputData: "1", ExpectedOutput: "1", IsSample: true, Order: 1},
				{ID: 12, ProblemID: 1, InputData: "2", ExpectedOutput: "2", Order: 2},
				{ID: 13, ProblemID: 1, InputData: "3", ExpectedOutput: "3", Order: 3},
			},
		},
	}
}

func (r *fakeRepository) GetProblem(_ context.Context, id int64) (model.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return model.Problem{}, appErr.New(appErr.ProblemNotFound)
	}
	return p, nil
}

func (r *fakeRepository) GetSubmission(_ context.Context, id string) (model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return model.Submission{}, appErr.New(appErr.SubmissionNotFound)
	}
	return s, nil
}

func (r *fakeRepository) GetTestCases(_ context.Context, id int64) ([]model.TestCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TestCase(nil), r.cases[id]...), nil
}

func (r *fakeRepository) SaveSubmissionResult(_ context.Context, outcome model.SubmissionOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *fakeRepository) MarkJudgeState(_ context.Context, _ string, state model.JudgeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *fakeRepository) savedOutcomes() []model.SubmissionOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SubmissionOutcome(nil), r.outcomes...)
}

func (r *fakeRepository) markedStates() []model.JudgeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.JudgeState(nil), r.states...)
}

type fakeStatusStore struct {
	mu      sync.Mutex
	docs    map[string]model.JudgeStatus
	history []model.JudgeStatus
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{docs: map[string]model.JudgeStatus{}}
}

func (s *fakeStatusStore) Get(_ context.Context, id string) (model.JudgeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return model.JudgeStatus{}, appErr.New(appErr.NotFound)
	}
	return doc, nil
}

func (s *fakeStatusStore) Save(_ context.Context, status model.JudgeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[status.SubmissionID] = status
	s.history = append(s.history, status)
	return nil
}

func (s *fakeStatusStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.JudgeStatus
}

func (p *fakePublisher) PublishFinalStatus(_ context.Context, status model.JudgeStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, status)
	return nil
}

func (p *fakePublisher) published() []model.JudgeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.JudgeStatus(nil), p.events...)
}

type fakeKiller struct {
	mu     sync.Mutex
	killed []string
}

func (k *fakeKiller) KillSubmission(_ context.Context, id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, id)
	return nil
}

type memoryStorage struct {
	objects map[string][]byte
}

func (s *memoryStorage) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) StatObject(_ context.Context, _, key string) (storage.ObjectStat, error) {
	data, ok := s.objects[key]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}
