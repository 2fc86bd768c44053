package pipeline

import (
	"context"
	"errors"

	"spimfuse/internal/fusion"
)

// ErrCanceled is returned by a Provider when the operator declines to
// continue. The run is aborted without side effects.
var ErrCanceled = errors.New("canceled by operator")

// SourceInput names the dataset to fuse.
type SourceInput struct {
	Multichannel bool
	DataDir      string
	FilePattern  string
	Timepoints   string
	Angles       string
	Channels     string // ignored unless Multichannel
}

// SelectionInput is the operator's answer to the choice list.
type SelectionInput struct {
	Choices []int // flattened choice index per channel
	Params  fusion.Params
}

// Provider collects raw operator input. Interactive prompts and command-line
// flags both implement it.
type Provider interface {
	Source(ctx context.Context, defaults fusion.RunDefaults) (SourceInput, error)
	Selection(ctx context.Context, choices *fusion.ChoiceList, defaults fusion.RunDefaults) (SelectionInput, error)
}
