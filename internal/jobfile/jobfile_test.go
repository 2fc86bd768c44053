package jobfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spimfuse/internal/fusion"
)

func sampleJob() fusion.JobConfig {
	a := fusion.Assignment{
		Channels:           []fusion.ChannelAssignment{{Channel: 0, ReferenceTimepoint: -1, SourceChannel: 0}},
		ReferenceTimepoint: -1,
	}
	src := fusion.Source{DataDir: "/data", FilePattern: "spim_TL{t}_Angle{a}.lsm", TimepointList: []int{1, 2}, AngleList: []int{0, 45}}
	return fusion.BuildJob("job-1", src, a, fusion.DefaultRunDefaults().Params, 3.25)
}

func TestWriterRoundTrip(t *testing.T) {
	for _, format := range []string{"yaml", "json"} {
		t.Run(format, func(t *testing.T) {
			w := NewWriter(filepath.Join(t.TempDir(), "jobs"), format)
			job := sampleJob()

			path, err := w.Submit(context.Background(), job)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if !strings.HasPrefix(filepath.Ext(path), "."+format[:2]) {
				t.Fatalf("unexpected extension for %s: %s", format, path)
			}

			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got.ID != job.ID || got.Mode != job.Mode || got.ZStretching != job.ZStretching {
				t.Fatalf("round trip mismatch: %+v", got)
			}
			if got.DataDir != "/data" || len(got.AngleList) != 2 || got.Output != fusion.DefaultOutputContainer {
				t.Fatalf("source fields lost: %+v", got.Source)
			}
		})
	}
}

func TestWriterRejectsInvalidJob(t *testing.T) {
	job := sampleJob()
	job.OverrideZStretching = false
	if _, err := NewWriter(t.TempDir(), "").Submit(context.Background(), job); err == nil {
		t.Fatalf("expected invalid job to be rejected")
	}
}

func TestWriterHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewWriter(t.TempDir(), "yaml").Submit(ctx, sampleJob()); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestReadRejectsInconsistentJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := `id: bad
channels: [0, 1]
assignment:
  - {channel: 0, reference_timepoint: 5, source_channel: 0}
  - {channel: 1, reference_timepoint: -1, source_channel: 1}
time_lapse_registration: true
reference_timepoint: 5
mode: all-at-once
override_z_stretching: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if _, _, err := Encode(sampleJob(), "xml"); err == nil {
		t.Fatalf("expected error for xml")
	}
}
