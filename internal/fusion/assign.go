package fusion

import (
	"errors"
	"fmt"

	"spimfuse/internal/registration"
)

var (
	ErrInconsistentReferenceTimepoint = errors.New("inconsistent choice of reference timepoint, only same reference timepoints or individual registration are allowed")
	ErrInvalidChoice                  = errors.New("invalid registration choice")
)

// ChannelAssignment records which registration a channel is fused with.
type ChannelAssignment struct {
	Channel            int `json:"channel" yaml:"channel"`
	ReferenceTimepoint int `json:"reference_timepoint" yaml:"reference_timepoint"`
	SourceChannel      int `json:"source_channel" yaml:"source_channel"`
	SourceIndex        int `json:"source_index" yaml:"source_index"`
}

// Assignment is the validated per-channel registration selection.
type Assignment struct {
	Channels           []ChannelAssignment
	ReferenceTimepoint int
}

// TimeLapse reports whether all channels use a shared reference timepoint.
func (a Assignment) TimeLapse() bool {
	return a.ReferenceTimepoint >= 0
}

// Resolve maps selected[i], the entry picked for the i-th channel, back to
// its registration and checks that every channel uses the same reference
// timepoint.
func Resolve(l *ChoiceList, selected []int) (Assignment, error) {
	if len(l.Channels) == 0 {
		return Assignment{}, fmt.Errorf("%w: no channels", ErrInvalidChoice)
	}
	if len(selected) != len(l.Channels) {
		return Assignment{}, fmt.Errorf("%w: %d selections for %d channels", ErrInvalidChoice, len(selected), len(l.Channels))
	}

	a := Assignment{Channels: make([]ChannelAssignment, len(l.Channels))}
	for c, idx := range selected {
		e, ok := l.At(idx)
		if !ok {
			return Assignment{}, fmt.Errorf("%w: index %d for channel %d (have %d choices)", ErrInvalidChoice, idx, l.Channels[c], l.Len())
		}
		a.Channels[c] = ChannelAssignment{
			Channel:            l.Channels[c],
			ReferenceTimepoint: e.Timepoint,
			SourceChannel:      e.SourceChannel,
			SourceIndex:        e.SourceIndex,
		}
	}

	tp := a.Channels[0].ReferenceTimepoint
	for _, ca := range a.Channels[1:] {
		if ca.ReferenceTimepoint != tp {
			return Assignment{}, fmt.Errorf("%w: channel %d uses %s, channel %d uses %s",
				ErrInconsistentReferenceTimepoint,
				a.Channels[0].Channel, describe(tp), ca.Channel, describe(ca.ReferenceTimepoint))
		}
	}
	a.ReferenceTimepoint = tp
	return a, nil
}

func describe(tp int) string {
	if tp == registration.Individual {
		return "individual registration"
	}
	return fmt.Sprintf("reference timepoint %d", tp)
}
