// Package fusion turns a registration index into the choices offered to the
// operator, resolves the operator's selection and builds the fusion job.
package fusion

import (
	"fmt"

	"spimfuse/internal/registration"
)

// Choice is one selectable registration, flattened across channels.
type Choice struct {
	Index         int
	Label         string
	SourceChannel int // channel id the registration belongs to
	SourceIndex   int // position of that channel in the channel list
	Timepoint     int // registration.Individual for individual registrations
}

// ChoiceList is the canonical ordered list of choices. The same list is used
// to present the options and to map a picked index back to its registration.
type ChoiceList struct {
	Channels []int
	Entries  []Choice
	suggest  []int
}

// Label renders the display text of a registration of channel.
func Label(channel, timepoint int) string {
	if timepoint == registration.Individual {
		return fmt.Sprintf("Individual registration of channel %d", channel)
	}
	return fmt.Sprintf("Time-point registration (reference=%d) of channel %d", timepoint, channel)
}

// BuildChoices flattens the index channel-major, keeping discovery order
// within a channel.
func BuildChoices(ix *registration.Index) *ChoiceList {
	l := &ChoiceList{
		Channels: append([]int(nil), ix.Channels...),
		suggest:  make([]int, len(ix.Channels)),
	}

	first := -1
	for c, recs := range ix.Records {
		l.suggest[c] = -1
		for _, r := range recs {
			idx := len(l.Entries)
			l.Entries = append(l.Entries, Choice{
				Index:         idx,
				Label:         Label(ix.Channels[c], r.Timepoint),
				SourceChannel: ix.Channels[c],
				SourceIndex:   c,
				Timepoint:     r.Timepoint,
			})
			if l.suggest[c] == -1 {
				l.suggest[c] = idx
				if first == -1 {
					first = idx
				}
			}
		}
	}
	for c := range l.suggest {
		if l.suggest[c] == -1 {
			l.suggest[c] = first
		}
	}
	return l
}

// Len returns the number of entries.
func (l *ChoiceList) Len() int { return len(l.Entries) }

// At returns the entry at i.
func (l *ChoiceList) At(i int) (Choice, bool) {
	if i < 0 || i >= len(l.Entries) {
		return Choice{}, false
	}
	return l.Entries[i], true
}

// Labels returns the display labels in order.
func (l *ChoiceList) Labels() []string {
	labels := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		labels[i] = e.Label
	}
	return labels
}

// Suggestions returns the default choice index for every channel.
func (l *ChoiceList) Suggestions() []int {
	return append([]int(nil), l.suggest...)
}
