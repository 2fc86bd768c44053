package fusion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"

	"spimfuse/internal/registration"
)

func rec(channel, tp int) registration.Record {
	kind := registration.TimepointKeyed
	if tp == registration.Individual {
		kind = registration.Global
	}
	return registration.Record{Channel: channel, Kind: kind, Timepoint: tp}
}

func index(channels []int, tps ...[]int) *registration.Index {
	ix := &registration.Index{Channels: channels, Records: make([][]registration.Record, len(channels)), ZStretching: registration.Unresolved}
	for c, list := range tps {
		for _, tp := range list {
			ix.Records[c] = append(ix.Records[c], rec(channels[c], tp))
		}
	}
	return ix
}

func TestBuildChoicesLabelsAndOrder(t *testing.T) {
	l := BuildChoices(index([]int{0}, []int{-1, 3}))
	assert.Equal(t, []string{
		"Individual registration of channel 0",
		"Time-point registration (reference=3) of channel 0",
	}, l.Labels())
	assert.Equal(t, []int{0}, l.Suggestions())
}

func TestBuildChoicesSuggestions(t *testing.T) {
	l := BuildChoices(index([]int{4, 7, 9}, []int{}, []int{5, -1}, []int{5}))
	require.Equal(t, 3, l.Len())
	assert.Equal(t, "Time-point registration (reference=5) of channel 7", l.Entries[0].Label)
	assert.Equal(t, "Time-point registration (reference=5) of channel 9", l.Entries[2].Label)
	// Channel 4 has nothing of its own and falls back to the first suggestion.
	assert.Equal(t, []int{0, 0, 2}, l.Suggestions())
}

func TestResolveConsistentTimepoint(t *testing.T) {
	l := BuildChoices(index([]int{0, 1}, []int{-1, 5}, []int{5, -1}))
	a, err := Resolve(l, []int{1, 2})
	require.NoError(t, err)
	assert.True(t, a.TimeLapse())
	assert.Equal(t, 5, a.ReferenceTimepoint)
	assert.Equal(t, ChannelAssignment{Channel: 0, ReferenceTimepoint: 5, SourceChannel: 0, SourceIndex: 0}, a.Channels[0])
	assert.Equal(t, ChannelAssignment{Channel: 1, ReferenceTimepoint: 5, SourceChannel: 1, SourceIndex: 1}, a.Channels[1])
}

func TestResolveCrossChannelSource(t *testing.T) {
	l := BuildChoices(index([]int{0, 1}, []int{-1}, []int{}))
	a, err := Resolve(l, []int{0, 0})
	require.NoError(t, err)
	assert.False(t, a.TimeLapse())
	assert.Equal(t, 0, a.Channels[1].SourceChannel)
	assert.Equal(t, 1, a.Channels[1].Channel)
}

func TestResolveRejectsMixedTimepoints(t *testing.T) {
	l := BuildChoices(index([]int{0, 1}, []int{5}, []int{-1}))
	_, err := Resolve(l, []int{0, 1})
	require.ErrorIs(t, err, ErrInconsistentReferenceTimepoint)
}

func TestResolveRejectsBadSelections(t *testing.T) {
	l := BuildChoices(index([]int{0, 1}, []int{-1}, []int{-1}))
	for _, sel := range [][]int{{0}, {0, 2}, {-1, 0}, {0, 1, 1}} {
		_, err := Resolve(l, sel)
		require.ErrorIs(t, err, ErrInvalidChoice, "selection %v", sel)
	}
	_, err := Resolve(&ChoiceList{}, nil)
	require.ErrorIs(t, err, ErrInvalidChoice)
}

func genIndex(t *rapid.T) *registration.Index {
	n := rapid.IntRange(1, 5).Draw(t, "channels")
	channels := make([]int, n)
	tps := make([][]int, n)
	for c := 0; c < n; c++ {
		channels[c] = c * 2
		set := rapid.SliceOfDistinct(rapid.IntRange(-1, 20), rapid.ID[int]).Draw(t, "timepoints")
		if len(set) == 0 {
			set = []int{-1}
		}
		tps[c] = set
	}
	return index(channels, tps...)
}

func TestChoicesLengthMatchesRecordCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ix := genIndex(t)
		l := BuildChoices(ix)
		if l.Len() != ix.Total() || l.Len() == 0 {
			t.Fatalf("got %d choices for %d records", l.Len(), ix.Total())
		}
	})
}

func TestResolveInvertsFlattening(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ix := genIndex(t)
		l := BuildChoices(ix)
		k := rapid.IntRange(0, l.Len()-1).Draw(t, "entry")
		sel := make([]int, len(l.Channels))
		for i := range sel {
			sel[i] = k
		}
		a, err := Resolve(l, sel)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		e := l.Entries[k]
		for _, ca := range a.Channels {
			if ca.SourceChannel != e.SourceChannel || ca.ReferenceTimepoint != e.Timepoint {
				t.Fatalf("entry %d resolved to %+v, want channel %d timepoint %d", k, ca, e.SourceChannel, e.Timepoint)
			}
		}
	})
}

func TestResolveAlwaysRejectsMismatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 6).Draw(t, "channels")
		channels := make([]int, n)
		tps := make([][]int, n)
		for c := range channels {
			channels[c] = c
			tps[c] = []int{-1, 1, 2}
		}
		l := BuildChoices(index(channels, tps...))
		sel := make([]int, n)
		base := rapid.IntRange(0, 2).Draw(t, "base")
		for c := range sel {
			sel[c] = c*3 + base
		}
		odd := rapid.IntRange(0, n-1).Draw(t, "odd")
		sel[odd] = odd*3 + (base+rapid.IntRange(1, 2).Draw(t, "shift"))%3

		if _, err := Resolve(l, sel); err == nil {
			t.Fatalf("expected inconsistency for selection %v", sel)
		}
	})
}

func TestBuildJobTimeLapseNeverDisplays(t *testing.T) {
	l := BuildChoices(index([]int{0, 1}, []int{5}, []int{5}))
	a, err := Resolve(l, []int{0, 1})
	require.NoError(t, err)

	p := DefaultRunDefaults().Params
	p.Mode = ModeSequential
	p.Display = true
	job := BuildJob("job-1", Source{DataDir: "/data"}, a, p, 3.5)

	assert.False(t, job.ShowOutputImage)
	assert.True(t, job.TimeLapseRegistration)
	assert.Equal(t, 5, job.ReferenceTimepoint)
	assert.True(t, job.SequentialFusion())
	assert.False(t, job.ParallelFusion())
	assert.False(t, job.MultipleImageFusion())
	assert.True(t, job.OverrideZStretching)
	assert.InDelta(t, 3.5, job.ZStretching, 1e-9)
	assert.Equal(t, []int{0, 1}, job.Channels)
	require.NoError(t, job.Validate())
}

func TestBuildJobIndividualRegistration(t *testing.T) {
	l := BuildChoices(index([]int{0}, []int{-1}))
	a, err := Resolve(l, []int{0})
	require.NoError(t, err)

	p := Params{Mode: ModeIndependent, Display: true, Save: false, Scale: 2,
		CropOffset: Vec3{1, 2, 3}, CropSize: Vec3{4, 5, 6}, Blending: true, ContentBased: true}
	job := BuildJob("job-2", Source{}, a, p, registration.Unresolved)

	assert.True(t, job.ShowOutputImage)
	assert.False(t, job.WriteOutputImage)
	assert.False(t, job.TimeLapseRegistration)
	assert.Equal(t, registration.Individual, job.ReferenceTimepoint)
	assert.True(t, job.MultipleImageFusion())
	assert.Equal(t, 2, job.Scale)
	assert.Equal(t, Vec3{1, 2, 3}, job.CropOffset)
	assert.Equal(t, Vec3{4, 5, 6}, job.CropSize)
	assert.True(t, job.UseLinearBlending)
	assert.True(t, job.UseContentBased)
	assert.False(t, job.ZStretchingResolved())
	assert.Equal(t, DefaultOutputContainer, job.Output)
	require.NoError(t, job.Validate())
}

func TestValidateCatchesBrokenJobs(t *testing.T) {
	l := BuildChoices(index([]int{0, 1}, []int{5}, []int{5}))
	a, err := Resolve(l, []int{0, 1})
	require.NoError(t, err)
	job := BuildJob("j", Source{}, a, DefaultRunDefaults().Params, 1)

	broken := job
	broken.ShowOutputImage = true
	require.Error(t, broken.Validate())

	broken = job
	broken.Assignment = append([]ChannelAssignment(nil), job.Assignment...)
	broken.Assignment[1].ReferenceTimepoint = -1
	require.ErrorIs(t, broken.Validate(), ErrInconsistentReferenceTimepoint)

	broken = job
	broken.Mode = Mode(7)
	require.Error(t, broken.Validate())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"all-at-once":             ModeAllAtOnce,
		"Sequential":              ModeSequential,
		"2":                       ModeIndependent,
		"Fuse views sequentially": ModeSequential,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("blend")
	require.Error(t, err)
}

func TestJobSerializesModeByName(t *testing.T) {
	l := BuildChoices(index([]int{0}, []int{-1}))
	a, err := Resolve(l, []int{0})
	require.NoError(t, err)
	job := BuildJob("j", Source{DataDir: "/d"}, a, Params{Mode: ModeSequential}, 1)

	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode":"sequential"`)
	assert.Contains(t, string(data), `"data_dir":"/d"`)

	out, err := yaml.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(out), "mode: sequential")
	assert.Contains(t, string(out), "data_dir: /d")
}
