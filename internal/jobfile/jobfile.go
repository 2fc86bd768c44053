// Package jobfile writes resolved fusion jobs to disk for the reconstruction
// engine and reads them back.
package jobfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"spimfuse/internal/fusion"
)

// Writer emits one file per job into Dir.
type Writer struct {
	Dir    string
	Format string // yaml or json
}

// NewWriter returns a Writer for dir. An empty format means yaml.
func NewWriter(dir, format string) *Writer {
	if format == "" {
		format = "yaml"
	}
	return &Writer{Dir: dir, Format: strings.ToLower(format)}
}

// Submit writes job to "<Dir>/<job id>.<ext>" and returns the path.
func (w *Writer) Submit(ctx context.Context, job fusion.JobConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("refusing to write invalid job %s: %w", job.ID, err)
	}
	data, ext, err := Encode(job, w.Format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(w.Dir, job.ID+ext)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write job file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write job file: %w", err)
	}
	return path, nil
}

// Encode serializes job in the given format and returns the file extension.
func Encode(job fusion.JobConfig, format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encode job: %w", err)
		}
		return append(data, '\n'), ".json", nil
	case "yaml", "yml", "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(job); err != nil {
			return nil, "", fmt.Errorf("encode job: %w", err)
		}
		_ = enc.Close()
		return buf.Bytes(), ".yaml", nil
	default:
		return nil, "", fmt.Errorf("unsupported job file format %q", format)
	}
}

// Read loads and validates a job file. The format follows the extension.
func Read(path string) (fusion.JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fusion.JobConfig{}, err
	}
	var job fusion.JobConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &job)
	} else {
		err = yaml.Unmarshal(data, &job)
	}
	if err != nil {
		return fusion.JobConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := job.Validate(); err != nil {
		return fusion.JobConfig{}, fmt.Errorf("invalid job in %s: %w", path, err)
	}
	return job, nil
}
