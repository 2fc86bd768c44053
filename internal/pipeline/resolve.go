package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"spimfuse/internal/fusion"
	"spimfuse/internal/logging"
	"spimfuse/internal/pattern"
	"spimfuse/internal/rangeparse"
	"spimfuse/internal/registration"
)

var (
	ErrChannelParse   = errors.New("cannot parse channels")
	ErrTimepointParse = errors.New("cannot parse timepoints")
	ErrAngleParse     = errors.New("cannot parse angles")
)

// Options configure a resolution.
type Options struct {
	RegistrationSubdir string
	Log                *slog.Logger
	NewID              func() string
}

func (o Options) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// Discovery is everything known about a dataset before the operator chooses.
type Discovery struct {
	Source   fusion.Source
	Channels []int
	Index    *registration.Index
	Choices  *fusion.ChoiceList
}

// Outcome is a successfully resolved job together with the defaults to
// remember for the next run.
type Outcome struct {
	Job      fusion.JobConfig
	Defaults fusion.RunDefaults
}

// Discover parses the source ranges, derives one representative file name
// per channel and scans the registration directory.
func Discover(src SourceInput, opts Options) (*Discovery, error) {
	log := opts.logger()

	channels := []int{0}
	channelPattern := ""
	if src.Multichannel {
		parsed, err := rangeparse.Parse(src.Channels)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrChannelParse, err)
		}
		if len(parsed) == 0 {
			return nil, fmt.Errorf("%w: there are no channels given: %q", ErrChannelParse, src.Channels)
		}
		channels = parsed
		channelPattern = src.Channels
		if len(channels) > 1 && !pattern.HasChannel(src.FilePattern) {
			log.Warn("file pattern has no channel placeholder, all channels share one base name", "pattern", src.FilePattern)
		}
	}

	timepoints, err := rangeparse.Parse(src.Timepoints)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimepointParse, err)
	}
	if len(timepoints) == 0 {
		return nil, fmt.Errorf("%w: no timepoints given", ErrTimepointParse)
	}
	angles, err := rangeparse.Parse(src.Angles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAngleParse, err)
	}
	if len(angles) == 0 {
		return nil, fmt.Errorf("%w: no angles given", ErrAngleParse)
	}

	baseNames := make([]string, len(channels))
	for i, ch := range channels {
		baseNames[i] = pattern.Expand(src.FilePattern, timepoints[0], ch, angles[0])
	}

	regDir := filepath.Join(src.DataDir, opts.RegistrationSubdir)
	ix, err := registration.Scan(regDir, channels, baseNames, log)
	if err != nil {
		return nil, err
	}

	return &Discovery{
		Source: fusion.Source{
			DataDir:         src.DataDir,
			RegistrationDir: regDir,
			FilePattern:     src.FilePattern,
			Timepoints:      src.Timepoints,
			Angles:          src.Angles,
			ChannelPattern:  channelPattern,
			TimepointList:   timepoints,
			AngleList:       angles,
			Multichannel:    src.Multichannel,
		},
		Channels: channels,
		Index:    ix,
		Choices:  fusion.BuildChoices(ix),
	}, nil
}

// Resolve runs one resolution strictly in sequence: source input, discovery,
// operator selection, assignment and job assembly. Any error aborts the run
// and leaves defaults for the caller to keep.
func Resolve(ctx context.Context, defaults fusion.RunDefaults, p Provider, opts Options) (Outcome, error) {
	log := opts.logger()
	newID := opts.NewID
	if newID == nil {
		newID = NewJobID
	}
	id := newID()

	src, err := p.Source(ctx, defaults)
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	disc, err := Discover(src, opts)
	if err != nil {
		logging.LogProcessingStep(log, id, "discover", "failed", map[string]any{
			"data_dir": src.DataDir,
			"error":    err.Error(),
		})
		return Outcome{}, err
	}
	logging.LogProcessingStep(log, id, "discover", "completed", map[string]any{
		"registration_dir": disc.Source.RegistrationDir,
		"channels":         disc.Channels,
		"choices":          disc.Choices.Len(),
		"z_stretching":     disc.Index.ZStretching,
	})

	sel, err := p.Selection(ctx, disc.Choices, defaults)
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	logging.LogProcessingStep(log, id, "selection", "completed", map[string]any{
		"choices": sel.Choices,
		"mode":    sel.Params.Mode.String(),
	})

	assignment, err := fusion.Resolve(disc.Choices, sel.Choices)
	if err != nil {
		logging.LogProcessingStep(log, id, "assign", "failed", map[string]any{
			"choices": sel.Choices,
			"error":   err.Error(),
		})
		return Outcome{}, err
	}
	for _, ca := range assignment.Channels {
		log.Debug("registration assignment", "channel", ca.Channel, "source_channel", ca.SourceChannel, "reference_timepoint", ca.ReferenceTimepoint)
	}
	logging.LogProcessingStep(log, id, "assign", "completed", map[string]any{
		"reference_timepoint": assignment.ReferenceTimepoint,
		"time_lapse":          assignment.TimeLapse(),
	})

	job := fusion.BuildJob(id, disc.Source, assignment, sel.Params, disc.Index.ZStretching)
	logging.LogProcessingStep(log, id, "build", "completed", map[string]any{
		"mode":  job.Mode.String(),
		"scale": job.Scale,
	})

	next := fusion.RunDefaults{
		Multichannel: src.Multichannel,
		DataDir:      src.DataDir,
		FilePattern:  src.FilePattern,
		Timepoints:   src.Timepoints,
		Angles:       src.Angles,
		Channels:     defaults.Channels,
		Params:       sel.Params,
	}
	if src.Multichannel {
		next.Channels = src.Channels
	}
	return Outcome{Job: job, Defaults: next}, nil
}

// NewJobID returns a time-prefixed unique job identifier.
func NewJobID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("fusion-%s-%s", ts, uuid.NewString()[:8])
}
