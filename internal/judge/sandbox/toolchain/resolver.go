package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	appErr "algojudge/pkg/errors"
)

// Resolver locates toolchain executables from ordered candidate lists.
type Resolver struct {
	// Root, when set, is the sandbox rootfs. Candidates are checked inside it
	// and the returned path is the one the sandboxed process will see.
	Root string

	// SearchPath is the directory list for bare names under Root.
	SearchPath []string
}

var defaultSearchPath = []string{"/usr/local/bin", "/usr/bin", "/bin"}

// Resolve returns the first candidate that is an executable regular file.
// It fails only after every candidate has been tried.
func (r *Resolver) Resolve(tool string, candidates []string) (string, error) {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if path, ok := r.check(candidate); ok {
			return path, nil
		}
	}
	return "", appErr.Newf(appErr.ToolchainNotFound,
		"no %s found (tried: %s); install one and add it to PATH", tool, strings.Join(candidates, ", ")).
		WithDetail("tool", tool)
}

func (r *Resolver) check(candidate string) (string, bool) {
	if r.Root == "" {
		if filepath.IsAbs(candidate) {
			return candidate, isExecutableFile(candidate)
		}
		path, err := exec.LookPath(candidate)
		if err != nil {
			return "", false
		}
		return path, isExecutableFile(path)
	}

	if filepath.IsAbs(candidate) {
		return candidate, isExecutableFile(filepath.Join(r.Root, candidate))
	}
	searchPath := r.SearchPath
	if len(searchPath) == 0 {
		searchPath = defaultSearchPath
	}
	for _, dir := range searchPath {
		inSandbox := filepath.Join(dir, candidate)
		if isExecutableFile(filepath.Join(r.Root, inSandbox)) {
			return inSandbox, true
		}
	}
	return "", false
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}
