package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest describes the test cases inside a test data pack.
type Manifest struct {
	ProblemID int64          `json:"problemId"`
	Version   int32          `json:"version"`
	Tests     []ManifestTest `json:"tests"`
}

// ManifestTest describes one testcase. Paths are relative to the pack root.
type ManifestTest struct {
	TestID     int64  `json:"testId"`
	InputPath  string `json:"inputPath"`
	AnswerPath string `json:"answerPath"`
	IsSample   bool   `json:"isSample"`
	Order      int    `json:"order"`
}

// LoadManifest parses manifest.json.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest failed: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest failed: %w", err)
	}
	if len(m.Tests) == 0 {
		return Manifest{}, fmt.Errorf("manifest has no tests")
	}
	return m, nil
}
