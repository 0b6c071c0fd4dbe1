package repository

import (
	"archive/tar"
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"algojudge/internal/common/cache"
	"algojudge/internal/common/storage"
	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	packStampFile    = "pack.json"
	packManifestFile = "manifest.json"
	packTempFile     = "data-pack.tmp"
	packLockPrefix   = "judge:datapack:lock:"
	packLockTTL      = 5 * time.Minute
	packPollInterval = 200 * time.Millisecond
)

// DataPackConfig controls the local test data pack cache.
type DataPackConfig struct {
	RootDir      string        `yaml:"rootDir"`
	Bucket       string        `yaml:"bucket"`
	TTL          time.Duration `yaml:"ttl"`
	LockWait     time.Duration `yaml:"lockWait"`
	MaxEntries   int           `yaml:"maxEntries"`
	MaxBytes     int64         `yaml:"maxBytes"`
	MaxCaseBytes int64         `yaml:"maxCaseBytes"`
}

func (c *DataPackConfig) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.LockWait <= 0 {
		c.LockWait = 30 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 64
	}
	if c.MaxCaseBytes <= 0 {
		c.MaxCaseBytes = 64 << 20
	}
}

// packStamp is written next to an extracted pack so another process can
// tell whether the directory holds the pack it wants.
type packStamp struct {
	ProblemID int64  `json:"problemId"`
	Key       string `json:"key"`
	Hash      string `json:"hash"`
}

type packEntry struct {
	key       string
	dir       string
	sizeBytes int64
	expiresAt time.Time
}

// DataPackSource loads test cases from tar.zst packs in object storage,
// keeping extracted packs on local disk. Concurrent extraction of the same
// pack across processes is serialised with a cache lock.
type DataPackSource struct {
	cfg     DataPackConfig
	storage storage.ObjectStorage
	lock    cache.LockOps

	mu        sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List
	totalSize int64
}

// NewDataPackSource creates a data pack source.
func NewDataPackSource(cfg DataPackConfig, storageClient storage.ObjectStorage, lock cache.LockOps) *DataPackSource {
	cfg.applyDefaults()
	return &DataPackSource{
		cfg:     cfg,
		storage: storageClient,
		lock:    lock,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// LoadTestCases returns the cases described by the problem's pack manifest,
// ordered the same way the database would order them.
func (s *DataPackSource) LoadTestCases(ctx context.Context, problem model.Problem) ([]model.TestCase, error) {
	dir, err := s.Fetch(ctx, problem)
	if err != nil {
		return nil, err
	}
	manifest, err := model.LoadManifest(filepath.Join(dir, packManifestFile))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DataPackInvalid)
	}
	cases := make([]model.TestCase, 0, len(manifest.Tests))
	for i, test := range manifest.Tests {
		input, err := s.readPackFile(dir, test.InputPath)
		if err != nil {
			return nil, err
		}
		answer, err := s.readPackFile(dir, test.AnswerPath)
		if err != nil {
			return nil, err
		}
		id := test.TestID
		if id == 0 {
			id = int64(i + 1)
		}
		order := test.Order
		if order == 0 {
			order = i + 1
		}
		cases = append(cases, model.TestCase{
			ID:             id,
			ProblemID:      problem.ID,
			InputData:      input,
			ExpectedOutput: answer,
			IsSample:       test.IsSample,
			Order:          order,
		})
	}
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Order < cases[j].Order })
	return cases, nil
}

// Fetch returns the local directory holding the extracted pack.
func (s *DataPackSource) Fetch(ctx context.Context, problem model.Problem) (string, error) {
	if problem.ID <= 0 {
		return "", appErr.ValidationError("problem_id", "required")
	}
	if problem.DataPackKey == "" {
		return "", appErr.ValidationError("data_pack_key", "required")
	}
	if s.storage == nil {
		return "", appErr.New(appErr.StorageError).WithMessage("storage client is not initialized")
	}
	if s.cfg.RootDir == "" {
		return "", appErr.New(appErr.CacheError).WithMessage("data pack root is not configured")
	}
	stamp := packStamp{ProblemID: problem.ID, Key: problem.DataPackKey, Hash: strings.ToLower(problem.DataPackHash)}
	key := entryKey(stamp)
	dir := filepath.Join(s.cfg.RootDir, fmt.Sprintf("%d", problem.ID), packVersion(stamp))

	if s.hit(key) {
		return dir, nil
	}
	if stampMatches(dir, stamp) {
		s.add(key, dir)
		return dir, nil
	}
	if err := s.fetchAndExtract(ctx, stamp, dir); err != nil {
		return "", err
	}
	s.add(key, dir)
	return dir, nil
}

func (s *DataPackSource) fetchAndExtract(ctx context.Context, stamp packStamp, dir string) error {
	if s.lock == nil {
		return appErr.New(appErr.CacheError).WithMessage("lock client is not initialized")
	}
	lockKey := packLockPrefix + entryKey(stamp)
	token := uuid.NewString()
	locked, err := s.lock.TryLock(ctx, lockKey, token, packLockTTL)
	if err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "acquire data pack lock failed")
	}
	if !locked {
		return s.waitForPack(ctx, stamp, dir)
	}
	defer func() {
		_ = s.lock.Unlock(context.WithoutCancel(ctx), lockKey, token)
	}()

	// Another holder may have finished between our miss and the lock.
	if stampMatches(dir, stamp) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "cleanup data pack dir failed")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create data pack dir failed")
	}

	tempPath := filepath.Join(dir, packTempFile)
	if err := s.download(ctx, stamp, tempPath); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	if err := extractPack(tempPath, dir); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	_ = os.Remove(tempPath)

	data, _ := json.Marshal(stamp)
	if err := os.WriteFile(filepath.Join(dir, packStampFile), data, 0o644); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write data pack stamp failed")
	}
	return nil
}

func (s *DataPackSource) waitForPack(ctx context.Context, stamp packStamp, dir string) error {
	deadline := time.Now().Add(s.cfg.LockWait)
	ticker := time.NewTicker(packPollInterval)
	defer ticker.Stop()
	for {
		if stampMatches(dir, stamp) {
			return nil
		}
		if time.Now().After(deadline) {
			return appErr.New(appErr.Timeout).WithMessage("wait for data pack timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *DataPackSource) download(ctx context.Context, stamp packStamp, dst string) error {
	reader, err := s.storage.GetObject(ctx, s.cfg.Bucket, stamp.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return appErr.Wrapf(err, appErr.TestCaseNotFound, "data pack %s not found", stamp.Key)
		}
		return appErr.Wrapf(err, appErr.StorageError, "download data pack failed")
	}
	defer reader.Close()

	file, err := os.Create(dst)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create data pack file failed")
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(file, io.TeeReader(reader, hasher)); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "write data pack file failed")
	}
	if stamp.Hash != "" {
		if actual := hex.EncodeToString(hasher.Sum(nil)); actual != stamp.Hash {
			return appErr.New(appErr.DataPackMismatch).
				WithDetail("expected", stamp.Hash).
				WithDetail("actual", actual)
		}
	}
	return nil
}

func (s *DataPackSource) readPackFile(dir, rel string) (string, error) {
	path, err := packPath(dir, rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DataPackInvalid, "missing pack file %s", rel)
	}
	if info.Size() > s.cfg.MaxCaseBytes {
		return "", appErr.Newf(appErr.TestCaseTooLarge, "pack file %s is %d bytes", rel, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DataPackInvalid, "read pack file %s failed", rel)
	}
	return string(data), nil
}

func extractPack(src, dst string) error {
	file, err := os.Open(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackInvalid, "open data pack failed")
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackInvalid, "create zstd reader failed")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.DataPackInvalid, "read tar entry failed")
		}
		if hdr.Name == "" {
			continue
		}
		target, err := packPath(dst, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create dir failed")
			}
		case tar.TypeReg:
			if err := writePackEntry(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		}
	}
}

func writePackEntry(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create parent dir failed")
	}
	if mode == 0 {
		mode = 0o644
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create file failed")
	}
	defer file.Close()
	if _, err := io.Copy(file, r); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write file failed")
	}
	return nil
}

// packPath joins rel under dir and rejects paths escaping it.
func packPath(dir, rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.DataPackInvalid, "invalid pack path %q", rel)
	}
	target := filepath.Join(dir, clean)
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.DataPackInvalid, "pack path %q escapes the pack", rel)
	}
	return target, nil
}

func stampMatches(dir string, want packStamp) bool {
	data, err := os.ReadFile(filepath.Join(dir, packStampFile))
	if err != nil {
		return false
	}
	var got packStamp
	if err := json.Unmarshal(data, &got); err != nil {
		return false
	}
	if got != want {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, packManifestFile))
	return err == nil
}

func (s *DataPackSource) hit(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	entry := elem.Value.(*packEntry)
	if time.Now().After(entry.expiresAt) {
		s.removeLocked(elem)
		return false
	}
	entry.expiresAt = time.Now().Add(s.cfg.TTL)
	s.lru.MoveToBack(elem)
	return true
}

func (s *DataPackSource) add(key, dir string) {
	size := dirSize(dir)
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*packEntry)
		s.totalSize += size - entry.sizeBytes
		entry.sizeBytes = size
		entry.expiresAt = time.Now().Add(s.cfg.TTL)
		s.lru.MoveToBack(elem)
	} else {
		s.entries[key] = s.lru.PushBack(&packEntry{
			key:       key,
			dir:       dir,
			sizeBytes: size,
			expiresAt: time.Now().Add(s.cfg.TTL),
		})
		s.totalSize += size
	}
	// The newest entry is never evicted by its own insertion.
	for s.lru.Len() > 1 && (s.lru.Len() > s.cfg.MaxEntries || (s.cfg.MaxBytes > 0 && s.totalSize > s.cfg.MaxBytes)) {
		s.removeLocked(s.lru.Front())
	}
}

func (s *DataPackSource) removeLocked(elem *list.Element) {
	entry := elem.Value.(*packEntry)
	s.lru.Remove(elem)
	delete(s.entries, entry.key)
	s.totalSize -= entry.sizeBytes
	_ = os.RemoveAll(entry.dir)
}

func entryKey(stamp packStamp) string {
	return fmt.Sprintf("%d:%s", stamp.ProblemID, packVersion(stamp))
}

func packVersion(stamp packStamp) string {
	if len(stamp.Hash) >= 16 {
		return stamp.Hash[:16]
	}
	sum := sha256.Sum256([]byte(stamp.Key))
	return "k" + hex.EncodeToString(sum[:8])
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
