// Package service is the boundary between callers and the judging worker:
// it loads submissions, bounds concurrency, persists outcomes and turns
// internal failures into a recorded verdict.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"algojudge/internal/common/storage"
	"algojudge/internal/judge/model"
	"algojudge/internal/judge/repository"
	"algojudge/internal/judge/sandbox"
	"algojudge/internal/judge/sandbox/observer"
	appErr "algojudge/pkg/errors"
)

// Defaults applied by NewService.
const (
	DefaultMaxSourceBytes = 64 << 10
	DefaultMaxInputBytes  = 1 << 20
	defaultQueueWait      = 30 * time.Second
	defaultStoreTimeout   = 5 * time.Second
)

// StatusStore keeps the live status documents.
type StatusStore interface {
	Get(ctx context.Context, submissionID string) (model.JudgeStatus, error)
	Save(ctx context.Context, status model.JudgeStatus) error
}

// Killer stops every sandboxed process of a submission.
type Killer interface {
	KillSubmission(ctx context.Context, submissionID string) error
}

// Config holds service dependencies and settings.
type Config struct {
	Executor   sandbox.Executor
	Repository repository.Repository
	Status     StatusStore
	Publisher  repository.StatusEventPublisher
	Killer     Killer
	Metrics    observer.MetricsRecorder

	// Storage and SourceBucket resolve submissions whose code lives in object storage.
	Storage      storage.ObjectStorage
	SourceBucket string

	WorkRoot       string
	WorkerPoolSize int
	QueueWait      time.Duration
	WorkerTimeout  time.Duration
	StoreTimeout   time.Duration
	MaxSourceBytes int
	MaxInputBytes  int

	// Execute limits apply to custom-input runs.
	ExecuteTimeLimitMs   int64
	ExecuteMemoryLimitMB int64
}

// Service handles judge commands.
type Service struct {
	executor   sandbox.Executor
	repo       repository.Repository
	status     StatusStore
	publisher  repository.StatusEventPublisher
	killer     Killer
	metrics    observer.MetricsRecorder
	storage    storage.ObjectStorage
	bucket     string
	workRoot   string
	queueWait  time.Duration
	timeout    time.Duration
	storeWait  time.Duration
	maxSource  int
	maxInput   int
	execTimeMs int64
	execMemMB  int64
	sem        chan struct{}

	mu       sync.Mutex
	inFlight map[string]*pass
}

// pass is one registered judging pass.
type pass struct {
	cancel    context.CancelFunc
	transient bool
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	svc := &Service{
		executor:   cfg.Executor,
		repo:       cfg.Repository,
		status:     cfg.Status,
		publisher:  cfg.Publisher,
		killer:     cfg.Killer,
		metrics:    cfg.Metrics,
		storage:    cfg.Storage,
		bucket:     cfg.SourceBucket,
		workRoot:   cfg.WorkRoot,
		queueWait:  cfg.QueueWait,
		timeout:    cfg.WorkerTimeout,
		storeWait:  cfg.StoreTimeout,
		maxSource:  cfg.MaxSourceBytes,
		maxInput:   cfg.MaxInputBytes,
		execTimeMs: cfg.ExecuteTimeLimitMs,
		execMemMB:  cfg.ExecuteMemoryLimitMB,
		sem:        make(chan struct{}, poolSize),
		inFlight:   make(map[string]*pass),
	}
	if svc.metrics == nil {
		svc.metrics = observer.NoopMetricsRecorder{}
	}
	if svc.queueWait <= 0 {
		svc.queueWait = defaultQueueWait
	}
	if svc.storeWait <= 0 {
		svc.storeWait = defaultStoreTimeout
	}
	if svc.maxSource <= 0 {
		svc.maxSource = DefaultMaxSourceBytes
	}
	if svc.maxInput <= 0 {
		svc.maxInput = DefaultMaxInputBytes
	}
	if svc.execTimeMs <= 0 {
		svc.execTimeMs = 10000
	}
	if svc.execMemMB <= 0 {
		svc.execMemMB = 512
	}
	return svc, nil
}

// Cancel stops the pass in flight for submissionID.
func (s *Service) Cancel(ctx context.Context, submissionID string) error {
	s.mu.Lock()
	p, ok := s.inFlight[submissionID]
	s.mu.Unlock()
	if !ok {
		return appErr.Newf(appErr.JudgeNotRunning, "submission %s is not being judged", submissionID)
	}
	p.cancel()
	if s.killer != nil {
		if err := s.killer.KillSubmission(ctx, submissionID); err != nil {
			return appErr.Wrapf(err, appErr.JudgeSystemError, "kill submission processes failed")
		}
	}
	return nil
}

// Running reports whether a pass for submissionID is in flight.
func (s *Service) Running(submissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[submissionID]
	return ok
}

// register claims submissionID for one pass and returns its cancellable context.
func (s *Service) register(ctx context.Context, submissionID string, transient bool) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[submissionID]; ok {
		return nil, nil, appErr.Newf(appErr.JudgeInProgress, "submission %s is already being judged", submissionID)
	}
	passCtx, cancel := context.WithCancel(ctx)
	s.inFlight[submissionID] = &pass{cancel: cancel, transient: transient}
	release := func() {
		cancel()
		s.mu.Lock()
		delete(s.inFlight, submissionID)
		s.mu.Unlock()
	}
	return passCtx, release, nil
}

func (s *Service) isTransient(submissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.inFlight[submissionID]
	return ok && p.transient
}

func (s *Service) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(s.queueWait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

// storeCtx bounds a persistence call. It survives cancellation of the pass.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeWait)
}
