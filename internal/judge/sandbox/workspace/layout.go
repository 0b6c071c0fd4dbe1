// Package workspace defines the per-submission scratch directory layout.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	appErr "algojudge/pkg/errors"
)

const compileDirName = "compile"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Layout is the scratch area of one judging pass: <root>/<submission>-<uuid>,
// with compile/ for the source and binary and one directory per test case.
type Layout struct {
	SubmissionID string
	RootDir      string
	CompileDir   string
}

// New creates a uniquely named submission root under root.
func New(root, submissionID string) (*Layout, error) {
	if root == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	name := fmt.Sprintf("%s-%s", unsafeChars.ReplaceAllString(submissionID, "_"), uuid.NewString())
	rootDir := filepath.Join(root, name)
	compileDir := filepath.Join(rootDir, compileDirName)
	if err := os.MkdirAll(compileDir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create submission work root failed")
	}
	return &Layout{SubmissionID: submissionID, RootDir: rootDir, CompileDir: compileDir}, nil
}

// TestDir creates a fresh directory for one test case.
func (l *Layout) TestDir(testID string) (string, error) {
	dir := filepath.Join(l.RootDir, "test-"+unsafeChars.ReplaceAllString(testID, "_"))
	if err := os.RemoveAll(dir); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "reset test workdir failed")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create test workdir failed")
	}
	return dir, nil
}

// Cleanup removes the whole submission root. It is safe to call more than once.
func (l *Layout) Cleanup() error {
	if l == nil || l.RootDir == "" {
		return nil
	}
	return os.RemoveAll(l.RootDir)
}

// CopyTree copies regular files from src into dst, keeping relative paths and modes.
func CopyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// WriteInput writes stdin data, appending a trailing newline when missing.
func WriteInput(path, data string) error {
	if data == "" || data[len(data)-1] != '\n' {
		data += "\n"
	}
	return os.WriteFile(path, []byte(data), 0644)
}
