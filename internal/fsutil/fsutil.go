package fsutil

import (
	"bufio"
	"os"
	"sort"
)

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ListNames returns the names of the regular files directly under dir that
// satisfy match, sorted by name. Subdirectories are not descended into.
func ListNames(dir string, match func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if match == nil || match(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// MaxLineSize is the longest line EachLine accepts.
const MaxLineSize = 16 << 20

// EachLine opens path and calls fn for every line until fn returns false.
// The file is always closed before returning.
func EachLine(path string, fn func(line string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for sc.Scan() {
		if !fn(sc.Text()) {
			break
		}
	}
	return sc.Err()
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
