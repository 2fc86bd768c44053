// Package pattern expands SPIM file-name patterns such as
// "spim_TL{tt}_Angle{a}.lsm". A placeholder is a run of one repeated letter
// in braces: t for timepoint, c for channel, a for angle. The run length is
// the zero-padding width.
package pattern

import (
	"fmt"
	"strings"
)

// Expand substitutes the timepoint, channel and angle into p. Unknown
// placeholders are left untouched.
func Expand(p string, timepoint, channel, angle int) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if p[i] != '{' {
			b.WriteByte(p[i])
			continue
		}
		end := strings.IndexByte(p[i:], '}')
		if end < 2 {
			b.WriteByte(p[i])
			continue
		}
		token := p[i+1 : i+end]
		v, ok := value(token, timepoint, channel, angle)
		if !ok {
			b.WriteByte(p[i])
			continue
		}
		fmt.Fprintf(&b, "%0*d", len(token), v)
		i += end
	}
	return b.String()
}

// HasChannel reports whether p contains a channel placeholder.
func HasChannel(p string) bool {
	for i := 0; i < len(p); i++ {
		if p[i] != '{' {
			continue
		}
		end := strings.IndexByte(p[i:], '}')
		if end < 2 {
			continue
		}
		if token := p[i+1 : i+end]; strings.Trim(token, "c") == "" {
			return true
		}
	}
	return false
}

func value(token string, timepoint, channel, angle int) (int, bool) {
	if strings.Trim(token, token[:1]) != "" {
		return 0, false
	}
	switch token[0] {
	case 't':
		return timepoint, true
	case 'c':
		return channel, true
	case 'a':
		return angle, true
	}
	return 0, false
}
