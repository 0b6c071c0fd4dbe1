//go:build linux

package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"algojudge/internal/judge/sandbox/spec"
)

// cpuTimeMs is user plus system time of the helper and everything it waited for.
func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	return (rusage.Utime.Nano() + rusage.Stime.Nano()) / 1e6
}

// captureFile returns at most limit bytes of a file the run wrote, along
// with the file's full size so callers can tell the output was cut.
func captureFile(path string, limit int64) (string, int64) {
	if path == "" {
		return "", 0
	}
	file, err := os.Open(path)
	if err != nil {
		return "", 0
	}
	defer file.Close()

	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	if limit <= 0 {
		return "", size
	}
	data, _ := io.ReadAll(io.LimitReader(file, limit))
	return string(data), size
}

// hostPath maps a path inside the sandbox to the host through the deepest
// bind mount that contains it. Paths outside every mount are returned as is.
func hostPath(path string, mounts []spec.MountSpec) string {
	if path == "" {
		return ""
	}
	resolved, depth := path, -1
	for _, mount := range mounts {
		if mount.Source == "" || mount.Target == "" {
			continue
		}
		target := filepath.Clean(mount.Target)
		rel, err := filepath.Rel(target, filepath.Clean(path))
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}
		if len(target) > depth {
			resolved, depth = filepath.Join(mount.Source, rel), len(target)
		}
	}
	return resolved
}
