package workspace_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"algojudge/internal/judge/sandbox/workspace"
)

func TestLayoutUniqueAndCleanup(t *testing.T) {
	root := t.TempDir()
	first, err := workspace.New(root, "sub/1")
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	second, err := workspace.New(root, "sub/1")
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	if first.RootDir == second.RootDir {
		t.Fatal("concurrent layouts for one submission must not collide")
	}
	if filepath.Dir(first.RootDir) != root || !strings.HasPrefix(filepath.Base(first.RootDir), "sub_1-") {
		t.Fatalf("unexpected root dir %s", first.RootDir)
	}
	if info, err := os.Stat(first.CompileDir); err != nil || !info.IsDir() {
		t.Fatalf("compile dir missing: %v", err)
	}

	testDir, err := first.TestDir("42")
	if err != nil {
		t.Fatalf("test dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(testDir, "stale"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	testDir, err = first.TestDir("42")
	if err != nil {
		t.Fatalf("test dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(testDir, "stale")); !os.IsNotExist(err) {
		t.Fatal("test dir must be fresh")
	}

	if err := first.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(first.RootDir); !os.IsNotExist(err) {
		t.Fatal("root dir not removed")
	}
	if err := first.Cleanup(); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	_ = second.Cleanup()
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "pkg"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "main"), []byte("bin"), 0755); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "pkg", "A.class"), []byte("cls"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dst := t.TempDir()
	if err := workspace.CopyTree(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	info, err := os.Stat(filepath.Join(dst, "main"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Fatal("executable bit lost")
	}
	data, err := os.ReadFile(filepath.Join(dst, "pkg", "A.class"))
	if err != nil || string(data) != "cls" {
		t.Fatalf("nested file not copied: %q %v", data, err)
	}
}

func TestWriteInputAppendsNewline(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"4\n2 7 11 15\n9": "4\n2 7 11 15\n9\n",
		"done\n":          "done\n",
		"":                "\n",
	}
	for in, want := range cases {
		path := filepath.Join(dir, "input.txt")
		if err := workspace.WriteInput(path, in); err != nil {
			t.Fatalf("write input: %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != want {
			t.Fatalf("input %q written as %q", in, string(data))
		}
	}
}
