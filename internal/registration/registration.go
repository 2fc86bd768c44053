// Package registration discovers per-view registration files for each
// channel and classifies them into individual and time-point registrations.
package registration

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"spimfuse/internal/fsutil"
)

const (
	// Marker identifies registration files.
	Marker = ".registration"
	// TimepointMarker precedes the reference timepoint of a time-lapse registration.
	TimepointMarker = ".registration.to_"
	// ZScalingKey prefixes the z-stretching line inside a registration file.
	ZScalingKey = "z-scaling:"
	// Unresolved is the z-stretching sentinel used until a file provides a value.
	Unresolved = -1.0
	// Individual is the reference timepoint of a Global record.
	Individual = -1
)

var (
	ErrDirectoryNotFound             = errors.New("registration directory not found")
	ErrNoRegistrationFilesFound      = errors.New("no registration files available")
	ErrMalformedRegistrationFileName = errors.New("malformed registration file name")
)

// Kind distinguishes individual from time-point registrations.
type Kind int

const (
	Global Kind = iota
	TimepointKeyed
)

func (k Kind) String() string {
	if k == Global {
		return "individual"
	}
	return "timepoint"
}

// Record is one registration available for a channel.
type Record struct {
	Channel   int
	Kind      Kind
	Timepoint int    // Individual for Global records
	File      string // first file that produced the record
}

// Index is the result of scanning a registration directory.
type Index struct {
	Dir         string
	Channels    []int
	Records     [][]Record // parallel to Channels
	ZStretching float64
}

// Total returns the number of records across all channels.
func (ix *Index) Total() int {
	n := 0
	for _, recs := range ix.Records {
		n += len(recs)
	}
	return n
}

// ZStretchingResolved reports whether any file provided a z-stretching value.
func (ix *Index) ZStretchingResolved() bool {
	return ix.ZStretching >= 0
}

// Scan lists dir once per channel and collects the registration records
// whose file names contain that channel's base name. baseNames must be
// parallel to channels.
func Scan(dir string, channels []int, baseNames []string, log *slog.Logger) (*Index, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(channels) != len(baseNames) {
		return nil, fmt.Errorf("scan %s: %d channels but %d base names", dir, len(channels), len(baseNames))
	}
	if !fsutil.IsDir(dir) {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, dir)
	}

	ix := &Index{
		Dir:         dir,
		Channels:    append([]int(nil), channels...),
		Records:     make([][]Record, len(channels)),
		ZStretching: Unresolved,
	}

	for c, channel := range channels {
		base := baseNames[c]
		names, err := fsutil.ListNames(dir, func(name string) bool {
			return strings.Contains(name, base) && strings.Contains(name, Marker)
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}

		seen := make(map[int]struct{})
		for _, name := range names {
			tp, err := ParseTimepoint(name)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[tp]; !dup {
				seen[tp] = struct{}{}
				kind := TimepointKeyed
				if tp == Individual {
					kind = Global
				}
				ix.Records[c] = append(ix.Records[c], Record{Channel: channel, Kind: kind, Timepoint: tp, File: name})
			}

			if !ix.ZStretchingResolved() {
				z, err := LoadZStretching(filepath.Join(dir, name))
				if err != nil {
					log.Debug("z-stretching lookup failed", "file", name, "error", err)
					continue
				}
				ix.ZStretching = z
				if ix.ZStretchingResolved() {
					log.Info("z-stretching resolved", "file", name, "z_stretching", z)
				}
			}
		}
	}

	if ix.Total() == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRegistrationFilesFound, dir)
	}

	for c, recs := range ix.Records {
		for _, r := range recs {
			log.Debug("registration record", "channel", ix.Channels[c], "kind", r.Kind.String(), "timepoint", r.Timepoint)
		}
	}
	return ix, nil
}

// ParseTimepoint classifies a registration file name. It returns Individual
// for names ending in Marker and the reference timepoint for names of the
// form "<...>.registration.to_<n>".
func ParseTimepoint(name string) (int, error) {
	if strings.HasSuffix(name, Marker) {
		return Individual, nil
	}
	i := strings.LastIndex(name, TimepointMarker)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMalformedRegistrationFileName, name)
	}
	tp, err := strconv.Atoi(name[i+len(TimepointMarker):])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedRegistrationFileName, name, err)
	}
	return tp, nil
}

// LoadZStretching reads the z-stretching factor from a registration file.
// The last "z-scaling:" line wins. A file without such a line yields
// Unresolved and no error.
func LoadZStretching(path string) (float64, error) {
	z := Unresolved
	var parseErr error
	err := fsutil.EachLine(path, func(line string) bool {
		i := strings.Index(line, ZScalingKey)
		if i < 0 {
			return true
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line[i+len(ZScalingKey):]), 64)
		if err != nil {
			parseErr = fmt.Errorf("parse %q: %w", line, err)
			return false
		}
		z = v
		return true
	})
	if err != nil {
		return Unresolved, err
	}
	if parseErr != nil {
		return Unresolved, parseErr
	}
	return z, nil
}
