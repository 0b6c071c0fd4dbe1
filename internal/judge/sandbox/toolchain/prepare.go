package toolchain

import (
	"os"
	"path/filepath"

	appErr "algojudge/pkg/errors"
)

// Artifact is a source file placed in a scratch directory.
type Artifact struct {
	Language string
	Dir      string

	// SourceFile and BinaryFile are names relative to Dir.
	SourceFile string
	BinaryFile string

	// Entry is the class to launch for languages named after their entry type.
	Entry string
}

// SourcePath returns the host path of the source file.
func (a Artifact) SourcePath() string {
	return filepath.Join(a.Dir, a.SourceFile)
}

// Prepare writes code into dir under the file name lang requires. The user's
// identifiers are never rewritten; the file is named after the entry type.
func Prepare(lang LanguageSpec, dir, code string) (Artifact, error) {
	if dir == "" {
		return Artifact{}, appErr.ValidationError("dir", "required")
	}
	artifact := Artifact{
		Language:   lang.ID,
		Dir:        dir,
		SourceFile: lang.SourceFile,
		BinaryFile: lang.BinaryFile,
	}
	if lang.EntryFromSource {
		entry, err := JavaEntryClass(code)
		if err != nil {
			return Artifact{}, err
		}
		artifact.Entry = entry
		artifact.SourceFile = entry + ".java"
	}
	if artifact.SourceFile == "" {
		return Artifact{}, appErr.ValidationError("source_file", "required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Artifact{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create source dir failed")
	}
	if err := os.WriteFile(artifact.SourcePath(), []byte(code), 0644); err != nil {
		return Artifact{}, appErr.Wrapf(err, appErr.JudgeSystemError, "write source failed")
	}
	return artifact, nil
}
