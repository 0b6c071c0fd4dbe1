package repository_test

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"algojudge/internal/common/storage"
	"algojudge/internal/judge/model"
	"algojudge/internal/judge/repository"
	appErr "algojudge/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

type memoryStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	requests int
}

func (s *memoryStorage) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) StatObject(_ context.Context, _, key string) (storage.ObjectStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (s *memoryStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func buildPack(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	tw := tar.NewWriter(zw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:])
}

const twoCaseManifest = `{"problemId":5,"version":1,"tests":[
	{"testId":12,"inputPath":"tests/2.in","answerPath":"tests/2.out","order":2},
	{"testId":11,"inputPath":"tests/1.in","answerPath":"tests/1.out","order":1,"isSample":true}
]}`

func twoCasePack(t *testing.T) ([]byte, string) {
	return buildPack(t, map[string]string{
		"manifest.json": twoCaseManifest,
		"tests/1.in":    "1 2\n",
		"tests/1.out":   "3\n",
		"tests/2.in":    "5 5\n",
		"tests/2.out":   "10\n",
	})
}

func newPackSource(t *testing.T, root string, store *memoryStorage, cfg repository.DataPackConfig) *repository.DataPackSource {
	t.Helper()
	c, _ := newRedisCache(t)
	cfg.RootDir = root
	cfg.Bucket = "packs"
	return repository.NewDataPackSource(cfg, store, c)
}

func TestDataPackLoadTestCases(t *testing.T) {
	pack, hash := twoCasePack(t)
	store := &memoryStorage{objects: map[string][]byte{"p5.tar.zst": pack}}
	src := newPackSource(t, t.TempDir(), store, repository.DataPackConfig{})

	problem := model.Problem{ID: 5, DataPackKey: "p5.tar.zst", DataPackHash: hash}
	cases, err := src.LoadTestCases(context.Background(), problem)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	first := cases[0]
	if first.ID != 11 || first.Order != 1 || !first.IsSample || first.InputData != "1 2\n" || first.ExpectedOutput != "3\n" {
		t.Fatalf("unexpected first case: %+v", first)
	}
	if cases[1].ID != 12 || cases[1].ProblemID != 5 {
		t.Fatalf("unexpected second case: %+v", cases[1])
	}
}

func TestDataPackReusesCache(t *testing.T) {
	pack, hash := twoCasePack(t)
	store := &memoryStorage{objects: map[string][]byte{"p5.tar.zst": pack}}
	root := t.TempDir()
	problem := model.Problem{ID: 5, DataPackKey: "p5.tar.zst", DataPackHash: hash}

	src := newPackSource(t, root, store, repository.DataPackConfig{})
	dir, err := src.Fetch(context.Background(), problem)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := src.Fetch(context.Background(), problem); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected one download, got %d", store.count())
	}
	if _, err := os.Stat(filepath.Join(dir, "data-pack.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temporary archive left behind: %v", err)
	}

	// A fresh process finds the extracted pack on disk.
	other := newPackSource(t, root, store, repository.DataPackConfig{})
	if _, err := other.Fetch(context.Background(), problem); err != nil {
		t.Fatalf("fetch from disk: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected disk hit, got %d downloads", store.count())
	}
}

func TestDataPackHashMismatch(t *testing.T) {
	pack, _ := twoCasePack(t)
	store := &memoryStorage{objects: map[string][]byte{"p5.tar.zst": pack}}
	src := newPackSource(t, t.TempDir(), store, repository.DataPackConfig{})

	problem := model.Problem{ID: 5, DataPackKey: "p5.tar.zst", DataPackHash: "00112233445566778899aabbccddeeff"}
	_, err := src.Fetch(context.Background(), problem)
	if !appErr.Is(err, appErr.DataPackMismatch) {
		t.Fatalf("expected DataPackMismatch, got %v", err)
	}
}

func TestDataPackRejectsEscapingEntries(t *testing.T) {
	pack, hash := buildPack(t, map[string]string{
		"manifest.json": twoCaseManifest,
		"../evil":       "boom",
	})
	store := &memoryStorage{objects: map[string][]byte{"bad.tar.zst": pack}}
	root := t.TempDir()
	src := newPackSource(t, root, store, repository.DataPackConfig{})

	_, err := src.Fetch(context.Background(), model.Problem{ID: 6, DataPackKey: "bad.tar.zst", DataPackHash: hash})
	if !appErr.Is(err, appErr.DataPackInvalid) {
		t.Fatalf("expected DataPackInvalid, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "6", "evil")); !os.IsNotExist(err) {
		t.Fatal("escaping entry was written")
	}
}

func TestDataPackManifestPathEscape(t *testing.T) {
	pack, hash := buildPack(t, map[string]string{
		"manifest.json": `{"problemId":7,"tests":[{"testId":1,"inputPath":"../../etc/passwd","answerPath":"1.out"}]}`,
		"1.out":         "x\n",
	})
	store := &memoryStorage{objects: map[string][]byte{"p7": pack}}
	src := newPackSource(t, t.TempDir(), store, repository.DataPackConfig{})

	_, err := src.LoadTestCases(context.Background(), model.Problem{ID: 7, DataPackKey: "p7", DataPackHash: hash})
	if !appErr.Is(err, appErr.DataPackInvalid) {
		t.Fatalf("expected DataPackInvalid, got %v", err)
	}
}

func TestDataPackMissingObject(t *testing.T) {
	store := &memoryStorage{objects: map[string][]byte{}}
	src := newPackSource(t, t.TempDir(), store, repository.DataPackConfig{})
	_, err := src.Fetch(context.Background(), model.Problem{ID: 8, DataPackKey: "absent"})
	if !appErr.Is(err, appErr.TestCaseNotFound) {
		t.Fatalf("expected TestCaseNotFound, got %v", err)
	}
}

func TestDataPackCaseTooLarge(t *testing.T) {
	pack, hash := twoCasePack(t)
	store := &memoryStorage{objects: map[string][]byte{"p5": pack}}
	src := newPackSource(t, t.TempDir(), store, repository.DataPackConfig{MaxCaseBytes: 2})
	_, err := src.LoadTestCases(context.Background(), model.Problem{ID: 5, DataPackKey: "p5", DataPackHash: hash})
	if !appErr.Is(err, appErr.TestCaseTooLarge) {
		t.Fatalf("expected TestCaseTooLarge, got %v", err)
	}
}

func TestDataPackWaitsForLockHolder(t *testing.T) {
	pack, hash := twoCasePack(t)
	store := &memoryStorage{objects: map[string][]byte{"p5": pack}}
	c, _ := newRedisCache(t)
	cfg := repository.DataPackConfig{RootDir: t.TempDir(), LockWait: 300 * time.Millisecond}
	src := repository.NewDataPackSource(cfg, store, c)

	problem := model.Problem{ID: 5, DataPackKey: "p5", DataPackHash: hash}
	lockKey := "judge:datapack:lock:5:" + hash[:16]
	ok, err := c.TryLock(context.Background(), lockKey, "someone-else", time.Minute)
	if err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}
	_, err = src.Fetch(context.Background(), problem)
	if !appErr.Is(err, appErr.Timeout) {
		t.Fatalf("expected Timeout while another holder extracts, got %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("waiter must not download, got %d", store.count())
	}
}

func TestDataPackEvictsOldest(t *testing.T) {
	packA, hashA := twoCasePack(t)
	packB, hashB := buildPack(t, map[string]string{
		"manifest.json": `{"problemId":9,"tests":[{"testId":1,"inputPath":"1.in","answerPath":"1.out"}]}`,
		"1.in":          "\n",
		"1.out":         "ok\n",
	})
	store := &memoryStorage{objects: map[string][]byte{"a": packA, "b": packB}}
	src := newPackSource(t, t.TempDir(), store, repository.DataPackConfig{MaxEntries: 1})
	ctx := context.Background()

	dirA, err := src.Fetch(ctx, model.Problem{ID: 5, DataPackKey: "a", DataPackHash: hashA})
	if err != nil {
		t.Fatalf("fetch a: %v", err)
	}
	dirB, err := src.Fetch(ctx, model.Problem{ID: 9, DataPackKey: "b", DataPackHash: hashB})
	if err != nil {
		t.Fatalf("fetch b: %v", err)
	}
	if _, err := os.Stat(dirA); !os.IsNotExist(err) {
		t.Fatalf("expected %s evicted", dirA)
	}
	if _, err := os.Stat(dirB); err != nil {
		t.Fatalf("newest pack evicted: %v", err)
	}
}
