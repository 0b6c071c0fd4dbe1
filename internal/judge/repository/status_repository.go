package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"algojudge/internal/common/cache"
	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 24 * time.Hour
)

// StatusRepository keeps the live judge status documents in the cache.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusRepository creates a new repository. A zero ttl keeps documents for a day.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns status by submission id.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.JudgeStatus, error) {
	if submissionID == "" {
		return model.JudgeStatus{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.JudgeStatus{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return model.JudgeStatus{}, appErr.Wrapf(err, appErr.CacheError, "load status failed")
	}
	if val == "" {
		return model.JudgeStatus{}, appErr.NotFoundError("submission status")
	}
	var status model.JudgeStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return model.JudgeStatus{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return status, nil
}

// Save persists status, stamping UpdatedAt when unset.
func (r *StatusRepository) Save(ctx context.Context, status model.JudgeStatus) error {
	if status.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if status.UpdatedAt == 0 {
		status.UpdatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+status.SubmissionID, string(data), cache.JitterTTL(r.TTL)); err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "store status failed")
	}
	return nil
}

// Delete drops the status document.
func (r *StatusRepository) Delete(ctx context.Context, submissionID string) error {
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := r.cache.Del(ctx, statusKeyPrefix+submissionID); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete status failed")
	}
	return nil
}
