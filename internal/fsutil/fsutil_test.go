package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListNamesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.registration", "a.registration", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "d.registration"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names, err := ListNames(dir, func(n string) bool { return strings.Contains(n, ".registration") })
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}
	if len(names) != 2 || names[0] != "a.registration" || names[1] != "b.registration" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestEachLineStopsEarly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var seen []string
	err := EachLine(path, func(line string) bool {
		seen = append(seen, line)
		return line != "two"
	})
	if err != nil {
		t.Fatalf("EachLine: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected to stop after two lines, got %v", seen)
	}
}

func TestIsDirAndFirstExisting(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !IsDir(dir) || IsDir(file) || IsDir(filepath.Join(dir, "missing")) {
		t.Fatalf("IsDir returned unexpected results")
	}
	if got := FirstExisting(filepath.Join(dir, "missing"), file); got != file {
		t.Fatalf("expected %s, got %q", file, got)
	}
	if got := FirstExisting(filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestEachLineLongLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.registration")
	long := strings.Repeat("0 ", 100*1024)
	if err := os.WriteFile(path, []byte(long+"\nz-scaling: 3.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var lines []string
	if err := EachLine(path, func(line string) bool {
		lines = append(lines, line)
		return true
	}); err != nil {
		t.Fatalf("EachLine: %v", err)
	}
	if len(lines) != 2 || len(lines[0]) != len(long) || lines[1] != "z-scaling: 3.5" {
		t.Fatalf("unexpected lines: %d (first %d bytes)", len(lines), len(lines[0]))
	}
}
