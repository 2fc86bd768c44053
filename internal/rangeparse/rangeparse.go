// Package rangeparse turns range strings such as "0-3, 5, 10-20:5" into
// integer lists. It is used for channels, timepoints and angles.
package rangeparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is returned for any malformed range string.
var ErrParse = errors.New("cannot parse integer range")

// MaxItems bounds the number of values a single range item may expand to.
const MaxItems = 1 << 16

// Parse expands a comma-separated list of items. Each item is "n", "a-b" or
// "a-b:step". Order of first appearance is kept and duplicates are dropped.
func Parse(s string) ([]int, error) {
	var out []int
	seen := make(map[int]struct{})
	add := func(v int) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, raw := range strings.Split(s, ",") {
		item := strings.Join(strings.Fields(raw), "")
		if item == "" {
			continue
		}
		if err := expandItem(item, add); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrParse, s, err)
		}
	}
	return out, nil
}

func expandItem(item string, add func(int)) error {
	step := 1
	if i := strings.IndexByte(item, ':'); i >= 0 {
		v, err := strconv.Atoi(item[i+1:])
		if err != nil {
			return fmt.Errorf("bad step in %q", item)
		}
		if v <= 0 {
			return fmt.Errorf("step must be positive in %q", item)
		}
		step = v
		item = item[:i]
	}

	// A leading '-' belongs to the first number, not the range separator.
	sep := strings.IndexByte(item[1:], '-')
	if sep < 0 {
		if step != 1 {
			return fmt.Errorf("step without range in %q", item)
		}
		v, err := strconv.Atoi(item)
		if err != nil {
			return fmt.Errorf("bad number %q", item)
		}
		add(v)
		return nil
	}
	sep++

	from, err := strconv.Atoi(item[:sep])
	if err != nil {
		return fmt.Errorf("bad range start in %q", item)
	}
	to, err := strconv.Atoi(item[sep+1:])
	if err != nil {
		return fmt.Errorf("bad range end in %q", item)
	}
	if to < from {
		return fmt.Errorf("range end before start in %q", item)
	}
	// to >= from, so the unsigned difference cannot wrap.
	n := (uint64(to) - uint64(from)) / uint64(step)
	if n >= MaxItems {
		return fmt.Errorf("range %q expands to more than %d values", item, MaxItems)
	}
	for i := 0; i <= int(n); i++ {
		add(from + i*step)
	}
	return nil
}
