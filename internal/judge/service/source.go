package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"algojudge/internal/common/storage"
	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"
)

// loadSource returns the submission code, downloading it when the row only
// carries an object key.
func (s *Service) loadSource(ctx context.Context, sub model.Submission) (string, error) {
	if sub.Code != "" || sub.SourceKey == "" {
		if strings.TrimSpace(sub.Code) == "" {
			return "", appErr.New(appErr.CodeEmpty)
		}
		return sub.Code, nil
	}
	if s.storage == nil {
		return "", appErr.New(appErr.StorageError).WithMessage("storage client is not initialized")
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	reader, err := s.storage.GetObject(storeCtx, s.bucket, sub.SourceKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", appErr.Wrapf(err, appErr.NotFound, "source %s not found", sub.SourceKey)
		}
		return "", appErr.Wrapf(err, appErr.StorageError, "download source failed")
	}
	defer reader.Close()

	hasher := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(reader, int64(s.maxSource)+1), hasher))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source failed")
	}
	if len(data) > s.maxSource {
		return "", appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxSource)
	}
	if sub.SourceHash != "" {
		if actual := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(actual, sub.SourceHash) {
			return "", appErr.New(appErr.InvalidParams).WithMessage("source hash mismatch")
		}
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", appErr.New(appErr.CodeEmpty)
	}
	return string(data), nil
}
