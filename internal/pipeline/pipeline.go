package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spimfuse/internal/fusion"
	"spimfuse/internal/logging"
)

// Engine consumes a resolved job, typically by handing it to the
// reconstruction engine. It returns where the job was delivered.
type Engine interface {
	Submit(ctx context.Context, job fusion.JobConfig) (string, error)
}

// jobStore is the persistence the dispatcher needs; *storage.Store
// satisfies it.
type jobStore interface {
	LoadDefaults(fallback fusion.RunDefaults) (fusion.RunDefaults, error)
	SaveDefaults(d fusion.RunDefaults) error
	RecordJobQueued(job fusion.JobConfig) error
	RecordJobResult(id, status, outputPath, errMsg string) error
}

// Result captures the outcome of a dispatched run.
type Result struct {
	Job        fusion.JobConfig
	OutputPath string
	Defaults   fusion.RunDefaults
}

// Dispatcher runs resolutions one at a time and delivers the jobs.
type Dispatcher struct {
	log      *slog.Logger
	store    jobStore
	engine   Engine
	fallback fusion.RunDefaults
	opts     Options
}

// New creates a Dispatcher. fallback seeds the run defaults until a run has
// completed and stored its own.
func New(logger *slog.Logger, store jobStore, engine Engine, fallback fusion.RunDefaults, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Log = logger
	return &Dispatcher{
		log:      logger,
		store:    store,
		engine:   engine,
		fallback: fallback,
		opts:     opts,
	}
}

// Defaults returns the run defaults the next run will start from.
func (d *Dispatcher) Defaults() (fusion.RunDefaults, error) {
	if d.store == nil {
		return d.fallback, nil
	}
	return d.store.LoadDefaults(d.fallback)
}

// Run resolves a job with p, records it and hands it to the engine. Stored
// defaults are replaced only when every step succeeded.
func (d *Dispatcher) Run(ctx context.Context, p Provider) (Result, error) {
	defaults, err := d.Defaults()
	if err != nil {
		d.log.Warn("stored defaults unreadable, using configured defaults", "error", err)
		defaults = d.fallback
	}

	out, err := Resolve(ctx, defaults, p, d.opts)
	if err != nil {
		if !errors.Is(err, ErrCanceled) {
			d.log.Error("fusion resolution failed", "error", err)
		}
		return Result{}, err
	}

	job := out.Job
	start := time.Now()
	logging.LogJobStart(d.log, job.ID, job.DataDir, job.Channels, map[string]any{
		"mode":                job.Mode.String(),
		"reference_timepoint": job.ReferenceTimepoint,
		"time_lapse":          job.TimeLapseRegistration,
		"scale":               job.Scale,
	})

	if d.store != nil {
		if err := d.store.RecordJobQueued(job); err != nil {
			d.log.Warn("failed to record job", "id", job.ID, "error", err)
		}
	}

	path, err := d.engine.Submit(ctx, job)
	duration := time.Since(start)
	if err != nil {
		logging.LogJobError(d.log, job.ID, duration, err, map[string]any{
			"data_dir": job.DataDir,
		})
		if d.store != nil {
			_ = d.store.RecordJobResult(job.ID, "failed", "", err.Error())
		}
		return Result{}, err
	}

	if d.store != nil {
		if err := d.store.RecordJobResult(job.ID, "completed", path, ""); err != nil {
			d.log.Warn("failed to record job result", "id", job.ID, "error", err)
		}
		if err := d.store.SaveDefaults(out.Defaults); err != nil {
			d.log.Warn("failed to save run defaults", "error", err)
		}
	}
	logging.LogJobComplete(d.log, job.ID, duration, map[string]any{
		"output":       path,
		"z_stretching": job.ZStretching,
	})

	return Result{Job: job, OutputPath: path, Defaults: out.Defaults}, nil
}
