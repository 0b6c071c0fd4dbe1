//go:build linux

package engine_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"algojudge/internal/judge/sandbox/engine"
	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/spec"
)

var testProfiles = engine.StaticProfiles{"run": {}}

// newTestEngine runs the stand-in helper, which performs no isolation.
func newTestEngine(t *testing.T, cfg engine.Config) engine.Engine {
	t.Helper()
	cfg.HelperPath = buildSandboxHelper(t)
	cfg.AllowHostFilesystem = true
	eng, err := engine.NewEngine(cfg, testProfiles)
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	return eng
}

func shellSpec(t *testing.T, script string) spec.RunSpec {
	t.Helper()
	workDir := t.TempDir()
	return spec.RunSpec{
		SubmissionID: "sub-" + strings.ReplaceAll(t.Name(), "/", "-"),
		TestID:       "t1",
		WorkDir:      workDir,
		Cmd:          []string{"/bin/sh", "-c", script},
		StdoutPath:   filepath.Join(workDir, "stdout.txt"),
		StderrPath:   filepath.Join(workDir, "stderr.txt"),
		Profile:      "run",
	}
}

func TestLinuxEngineCapturesOutputAndExitCode(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	runSpec := shellSpec(t, "echo hello; echo oops 1>&2; exit 3")

	res, err := eng.Run(context.Background(), runSpec)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.ExitCode != 3 || res.Signal != 0 {
		t.Fatalf("exit=%d signal=%d, want 3/0", res.ExitCode, res.Signal)
	}
	if res.Stdout != "hello\n" || res.Stderr != "oops\n" {
		t.Fatalf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if res.ResourceExceeded() {
		t.Fatalf("unexpected resource flags: %+v", res)
	}
}

func TestLinuxEngineReportsSignal(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	res, err := eng.Run(context.Background(), shellSpec(t, "kill -SEGV $$"))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Signal != 11 || res.ExitCode != 128+11 {
		t.Fatalf("signal=%d exit=%d, want SIGSEGV", res.Signal, res.ExitCode)
	}
}

func TestLinuxEngineWallTimeout(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	runSpec := shellSpec(t, "sleep 5")
	runSpec.Limits.WallTimeMs = 200

	start := time.Now()
	res, err := eng.Run(context.Background(), runSpec)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("process not killed promptly: %v", elapsed)
	}
}

func TestLinuxEngineTimeoutKillsProcessGroup(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	marker := filepath.Join(t.TempDir(), "marker")
	runSpec := shellSpec(t, fmt.Sprintf("(sleep 1; touch %s) & sleep 5", marker))
	runSpec.Limits.WallTimeMs = 200

	if _, err := eng.Run(context.Background(), runSpec); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Fatal("background child survived the timeout")
	}
}

func TestLinuxEngineOutputExceeded(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	runSpec := shellSpec(t, "head -c 4096 /dev/zero")
	runSpec.Limits.OutputBytes = 1024

	res, err := eng.Run(context.Background(), runSpec)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.OutputExceeded {
		t.Fatalf("expected output exceeded, got %+v", res)
	}
	if res.Stdout != "" {
		t.Fatalf("stdout must be dropped, got %d bytes", len(res.Stdout))
	}
	if res.OutputBytes != 4096 {
		t.Fatalf("output bytes = %d", res.OutputBytes)
	}
}

func TestLinuxEngineOutputAtCapIsKept(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	runSpec := shellSpec(t, "head -c 1024 /dev/zero")
	runSpec.Limits.OutputBytes = 1024

	res, err := eng.Run(context.Background(), runSpec)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.OutputExceeded || len(res.Stdout) != 1024 {
		t.Fatalf("exceeded=%v len=%d", res.OutputExceeded, len(res.Stdout))
	}
}

func TestLinuxEngineContextCancel(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := eng.Run(ctx, shellSpec(t, "sleep 5"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("cancel did not stop the process")
	}
}

func TestLinuxEngineKillSubmission(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	runSpec := shellSpec(t, "sleep 5")

	resCh := make(chan result.RunResult, 1)
	go func() {
		res, _ := eng.Run(context.Background(), runSpec)
		resCh <- res
	}()
	time.Sleep(200 * time.Millisecond)
	if err := eng.KillSubmission(context.Background(), runSpec.SubmissionID); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case res := <-resCh:
		if res.Signal != 9 {
			t.Fatalf("expected SIGKILL, got %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after kill")
	}
}

func TestLinuxEngineSetupFailure(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	runSpec := shellSpec(t, "")
	runSpec.Cmd = []string{"/nonexistent/tool"}

	if _, err := eng.Run(context.Background(), runSpec); err == nil {
		t.Fatal("expected setup error for missing command")
	}
}

func TestLinuxEngineCgroupLimits(t *testing.T) {
	cgroupRoot := filepath.Join(t.TempDir(), "cgroup")
	eng := newTestEngine(t, engine.Config{CgroupRoot: cgroupRoot, EnableCgroup: true})
	runSpec := shellSpec(t, "echo ok; sleep 0.3")
	runSpec.Limits = spec.ResourceLimit{MemoryBytes: 16 << 20, PIDs: 5}

	errCh := make(chan error, 1)
	go func() {
		_, err := eng.Run(context.Background(), runSpec)
		errCh <- err
	}()

	runDir, err := waitForRunDir(cgroupRoot, runSpec.SubmissionID, 2*time.Second)
	if err != nil {
		t.Fatalf("wait for cgroup directory: %v", err)
	}
	expect := map[string]string{
		"pids.max":   "5",
		"memory.max": "16777216",
		"cpu.max":    "max 100000",
	}
	for name, want := range expect {
		data, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if got := strings.TrimSpace(string(data)); got != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Fatalf("cgroup directory not cleaned up: %v", err)
	}
}

func TestNewEngineRefusesHostFilesystem(t *testing.T) {
	rootfs := filepath.Join(t.TempDir(), "rootfs")
	cases := []struct {
		name     string
		cfg      engine.Config
		profiles engine.StaticProfiles
		wantErr  bool
	}{
		{"no namespaces", engine.Config{}, engine.StaticProfiles{"run": {RootFS: rootfs}}, true},
		{"no rootfs", engine.Config{EnableNamespaces: true}, engine.StaticProfiles{"run": {DisableNetwork: true}}, true},
		{"rootfs", engine.Config{EnableNamespaces: true}, engine.StaticProfiles{"run": {RootFS: rootfs}}, false},
		{"host allowed", engine.Config{AllowHostFilesystem: true}, engine.StaticProfiles{"run": {}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.NewEngine(tc.cfg, tc.profiles)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewEngine err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
	if info, err := os.Stat(rootfs); err != nil || !info.IsDir() {
		t.Fatalf("rootfs mount point not created: %v", err)
	}
}

func TestLinuxEngineRootFSHidesHost(t *testing.T) {
	helper := buildRealSandboxHelper(t)
	secretDir := t.TempDir()
	secret := filepath.Join(secretDir, "expected_output.txt")
	if err := os.WriteFile(secret, []byte("HIDDEN-ANSWER"), 0644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	outside := filepath.Join(secretDir, "written")
	scratch := t.TempDir()

	profiles := engine.StaticProfiles{"run": {RootFS: filepath.Join(t.TempDir(), "rootfs"), DisableNetwork: true}}
	eng, err := engine.NewEngine(engine.Config{EnableNamespaces: true, HelperPath: helper}, profiles)
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	script := fmt.Sprintf("cat %s; echo leaked > %s; echo leaked > /usr/leaked; echo ok > /work/own", secret, outside)
	res, err := eng.Run(context.Background(), spec.RunSpec{
		SubmissionID: "sub-rootfs",
		TestID:       "t1",
		WorkDir:      "/work",
		Cmd:          []string{"/bin/sh", "-c", script},
		StdoutPath:   "/work/stdout.txt",
		StderrPath:   "/work/stderr.txt",
		BindMounts:   []spec.MountSpec{{Source: scratch, Target: "/work"}},
		Profile:      "run",
	})
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("user namespaces unavailable: %v", err)
		}
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(res.Stdout, "HIDDEN-ANSWER") {
		t.Fatal("file outside the scratch dir was readable")
	}
	if _, err := os.Stat(outside); !os.IsNotExist(err) {
		t.Fatalf("file written outside the scratch dir: %v", err)
	}
	if _, err := os.Stat("/usr/leaked"); !os.IsNotExist(err) {
		t.Fatalf("toolchain path is writable: %v", err)
	}
	own, err := os.ReadFile(filepath.Join(scratch, "own"))
	if err != nil || string(own) != "ok\n" {
		t.Fatalf("scratch dir not writable: %q %v", own, err)
	}
}

func waitForRunDir(root, submissionID string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	submissionDir := filepath.Join(root, submissionID)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(submissionDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() {
					return filepath.Join(submissionDir, entry.Name()), nil
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for cgroup directory")
}

// buildSandboxHelper compiles a stand-in helper that only redirects stdio and
// execs, so the engine can be exercised without privileges or libseccomp.
func buildSandboxHelper(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	helperDir := filepath.Join(t.TempDir(), "helper")
	if err := os.MkdirAll(helperDir, 0755); err != nil {
		t.Fatalf("create helper dir: %v", err)
	}
	goMod := []byte("module sandboxhelper\n\ngo 1.22\n")
	if err := os.WriteFile(filepath.Join(helperDir, "go.mod"), goMod, 0644); err != nil {
		t.Fatalf("write helper go.mod: %v", err)
	}
	if err := os.WriteFile(filepath.Join(helperDir, "main.go"), []byte(helperSource), 0644); err != nil {
		t.Fatalf("write helper main.go: %v", err)
	}

	helperPath := filepath.Join(helperDir, "sandbox-init")
	cmd := exec.Command("go", "build", "-o", helperPath, ".")
	cmd.Dir = helperDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOFLAGS=-mod=mod")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build helper failed: %v: %s", err, string(output))
	}
	return helperPath
}

// buildRealSandboxHelper compiles cmd/sandbox-init, which needs cgo and libseccomp.
func buildRealSandboxHelper(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	helperPath := filepath.Join(t.TempDir(), "sandbox-init")
	cmd := exec.Command("go", "build", "-o", helperPath, "algojudge/cmd/sandbox-init")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("sandbox-init does not build here: %v: %s", err, string(output))
	}
	return helperPath
}

const helperSource = `package main

import (
	"encoding/json"
	"os"
	"syscall"
)

type initRequest struct {
	RunSpec struct {
		WorkDir    string
		Cmd        []string
		Env        []string
		StdinPath  string
		StdoutPath string
		StderrPath string
	}
}

func fail(status *os.File, err error) {
	status.WriteString(err.Error())
	os.Exit(1)
}

func open(path string, flag int) *os.File {
	if path == "" {
		path = os.DevNull
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		fail(os.NewFile(3, "status"), err)
	}
	return f
}

func main() {
	status := os.NewFile(3, "status")
	syscall.CloseOnExec(3)
	var req initRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fail(status, err)
	}
	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		fail(status, err)
	}
	in := open(req.RunSpec.StdinPath, os.O_RDONLY)
	out := open(req.RunSpec.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	errf := open(req.RunSpec.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	env := req.RunSpec.Env
	if len(env) == 0 {
		env = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
	}
	syscall.Dup3(int(in.Fd()), 0, 0)
	syscall.Dup3(int(out.Fd()), 1, 0)
	syscall.Dup3(int(errf.Fd()), 2, 0)
	if err := syscall.Exec(req.RunSpec.Cmd[0], req.RunSpec.Cmd, env); err != nil {
		fail(status, err)
	}
}
`
