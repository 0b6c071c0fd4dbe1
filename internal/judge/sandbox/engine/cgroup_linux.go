//go:build linux

package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"algojudge/internal/judge/sandbox/spec"
)

// runCgroup is the cgroup v2 leaf that holds one run, laid out as
// <root>/<submission>/<test>-<nanos> so KillSubmission can find every run.
type runCgroup struct {
	root string
	path string
}

func newRunCgroup(root, submissionID, testID string) (*runCgroup, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	path := filepath.Join(root, submissionID, fmt.Sprintf("%s-%d", testID, time.Now().UnixNano()))
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create cgroup path: %w", err)
	}
	return &runCgroup{root: root, path: path}, nil
}

// limit writes the run's ceilings. Swap is pinned to zero when memory is
// capped, otherwise memory.max could be exceeded without an oom kill.
func (c *runCgroup) limit(limits spec.ResourceLimit) error {
	pids := "max"
	if limits.PIDs > 0 {
		pids = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := c.write("pids.max", pids); err != nil {
		return err
	}
	if limits.MemoryBytes > 0 {
		if err := c.write("memory.max", strconv.FormatInt(limits.MemoryBytes, 10)); err != nil {
			return err
		}
		_ = c.write("memory.swap.max", "0")
	}
	return c.write("cpu.max", "max 100000")
}

func (c *runCgroup) join(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return c.write("cgroup.procs", strconv.Itoa(pid))
}

func (c *runCgroup) kill() error {
	killPath := filepath.Join(c.path, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

// remove drops the leaf and, once it is empty, the submission directory.
// Real cgroups only go away with rmdir; plain directories used in tests need RemoveAll.
func (c *runCgroup) remove() {
	if err := os.Remove(c.path); err != nil {
		_ = os.RemoveAll(c.path)
	}
	_ = os.Remove(filepath.Dir(c.path))
}

// memoryUsage is how much memory a run used and whether the kernel had to
// stop it for that.
type memoryUsage struct {
	PeakKB    int64
	OomKilled bool
}

// usage reads the high-water mark and the oom_kill counter. A cgroup that
// hit memory.max without anything being killed does not count as oom.
func (c *runCgroup) usage() memoryUsage {
	var mem memoryUsage
	if peak, err := c.readInt("memory.peak"); err == nil {
		mem.PeakKB = peak / 1024
	}
	mem.OomKilled = c.eventCount("memory.events", "oom_kill") > 0
	return mem
}

func (c *runCgroup) eventCount(file, key string) int64 {
	data, err := os.ReadFile(filepath.Join(c.path, file))
	if err != nil {
		return 0
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		name, value, ok := strings.Cut(scanner.Text(), " ")
		if !ok || name != key {
			continue
		}
		n, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return n
	}
	return 0
}

func (c *runCgroup) readInt(name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func (c *runCgroup) write(name, value string) error {
	return os.WriteFile(filepath.Join(c.path, name), []byte(value), 0640)
}

// runMemory reports the run's memory. Without a cgroup, or when the
// cgroup has no peak file, it falls back to the child's max RSS from
// rusage, which linux reports in kilobytes.
func runMemory(cg *runCgroup, state *os.ProcessState) memoryUsage {
	var mem memoryUsage
	if cg != nil {
		mem = cg.usage()
	}
	if mem.PeakKB > 0 || state == nil {
		return mem
	}
	if rusage, ok := state.SysUsage().(*syscall.Rusage); ok {
		mem.PeakKB = rusage.Maxrss
	}
	return mem
}
