package fusion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"spimfuse/internal/registration"
)

// Mode selects how the registered views are fused. Exactly one mode is active
// per job.
type Mode int

const (
	ModeAllAtOnce Mode = iota
	ModeSequential
	ModeIndependent
)

var modeNames = [...]string{"all-at-once", "sequential", "independent-images"}

// ModeLabels are the operator-facing descriptions, indexed by Mode.
var ModeLabels = [...]string{
	"Fuse all views at once",
	"Fuse views sequentially",
	"Create independent registered images",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
	return modeNames[m]
}

// Label returns the operator-facing description of m.
func (m Mode) Label() string {
	if m < 0 || int(m) >= len(ModeLabels) {
		return m.String()
	}
	return ModeLabels[m]
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m >= ModeAllAtOnce && m <= ModeIndependent
}

// ParseMode accepts a mode name, its position ("0".."2") or its label.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for i, name := range modeNames {
		if strings.EqualFold(s, name) || strings.EqualFold(s, ModeLabels[i]) || s == strconv.Itoa(i) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown fusion mode %q (want %s)", s, strings.Join(modeNames[:], "|"))
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid fusion mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Vec3 is an integer triple used for crop offsets and sizes.
type Vec3 struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

func (v Vec3) String() string {
	return fmt.Sprintf("%d,%d,%d", v.X, v.Y, v.Z)
}

// Params are the operator's fusion settings.
type Params struct {
	Mode         Mode `json:"mode" yaml:"mode"`
	Blending     bool `json:"blending" yaml:"blending"`
	ContentBased bool `json:"content_based" yaml:"content_based"`
	Scale        int  `json:"scale" yaml:"scale"`
	CropOffset   Vec3 `json:"crop_offset" yaml:"crop_offset"`
	CropSize     Vec3 `json:"crop_size" yaml:"crop_size"`
	Display      bool `json:"display" yaml:"display"`
	Save         bool `json:"save" yaml:"save"`
}

// Source describes where the views and their registrations live.
type Source struct {
	DataDir         string `json:"data_dir" yaml:"data_dir"`
	RegistrationDir string `json:"registration_dir" yaml:"registration_dir"`
	FilePattern     string `json:"file_pattern" yaml:"file_pattern"`
	Timepoints      string `json:"timepoints" yaml:"timepoints"`
	Angles          string `json:"angles" yaml:"angles"`
	ChannelPattern  string `json:"channel_pattern" yaml:"channel_pattern"`
	TimepointList   []int  `json:"timepoint_list" yaml:"timepoint_list"`
	AngleList       []int  `json:"angle_list" yaml:"angle_list"`
	Multichannel    bool   `json:"multichannel" yaml:"multichannel"`
}

// OutputContainer describes the image container the engine should fuse into.
type OutputContainer struct {
	Kind     string `json:"kind" yaml:"kind"`
	CellSize int    `json:"cell_size" yaml:"cell_size"`
}

// DefaultOutputContainer is a cell container with 256-voxel cells.
var DefaultOutputContainer = OutputContainer{Kind: "cell", CellSize: 256}

// JobConfig is the resolved fusion job handed to the reconstruction engine.
// Build it with BuildJob; it is not modified afterwards.
type JobConfig struct {
	ID     string `json:"id" yaml:"id"`
	Source `json:",inline" yaml:",inline"`

	Channels              []int               `json:"channels" yaml:"channels"`
	Assignment            []ChannelAssignment `json:"assignment" yaml:"assignment"`
	TimeLapseRegistration bool                `json:"time_lapse_registration" yaml:"time_lapse_registration"`
	ReferenceTimepoint    int                 `json:"reference_timepoint" yaml:"reference_timepoint"`

	Mode              Mode `json:"mode" yaml:"mode"`
	UseLinearBlending bool `json:"use_linear_blending" yaml:"use_linear_blending"`
	UseContentBased   bool `json:"use_content_based" yaml:"use_content_based"`
	Scale             int  `json:"scale" yaml:"scale"`
	CropOffset        Vec3 `json:"crop_offset" yaml:"crop_offset"`
	CropSize          Vec3 `json:"crop_size" yaml:"crop_size"`
	ShowOutputImage   bool `json:"show_output_image" yaml:"show_output_image"`
	WriteOutputImage  bool `json:"write_output_image" yaml:"write_output_image"`

	ReadSegmentation    bool            `json:"read_segmentation" yaml:"read_segmentation"`
	ReadRegistration    bool            `json:"read_registration" yaml:"read_registration"`
	OverrideZStretching bool            `json:"override_z_stretching" yaml:"override_z_stretching"`
	ZStretching         float64         `json:"z_stretching" yaml:"z_stretching"`
	Output              OutputContainer `json:"output" yaml:"output"`
}

// BuildJob merges the assignment and the operator's parameters. Time-lapse
// jobs never display their output, whatever p.Display says.
func BuildJob(id string, src Source, a Assignment, p Params, zStretching float64) JobConfig {
	channels := make([]int, len(a.Channels))
	for i, ca := range a.Channels {
		channels[i] = ca.Channel
	}
	ref := registration.Individual
	if a.TimeLapse() {
		ref = a.ReferenceTimepoint
	}

	return JobConfig{
		ID:                    id,
		Source:                src,
		Channels:              channels,
		Assignment:            append([]ChannelAssignment(nil), a.Channels...),
		TimeLapseRegistration: a.TimeLapse(),
		ReferenceTimepoint:    ref,
		Mode:                  p.Mode,
		UseLinearBlending:     p.Blending,
		UseContentBased:       p.ContentBased,
		Scale:                 p.Scale,
		CropOffset:            p.CropOffset,
		CropSize:              p.CropSize,
		ShowOutputImage:       p.Display && !a.TimeLapse(),
		WriteOutputImage:      p.Save,
		ReadSegmentation:      true,
		ReadRegistration:      true,
		OverrideZStretching:   true,
		ZStretching:           zStretching,
		Output:                DefaultOutputContainer,
	}
}

// ParallelFusion reports whether all views are fused at once.
func (j JobConfig) ParallelFusion() bool { return j.Mode == ModeAllAtOnce }

// SequentialFusion reports whether views are fused one after another.
func (j JobConfig) SequentialFusion() bool { return j.Mode == ModeSequential }

// MultipleImageFusion reports whether independent registered images are written.
func (j JobConfig) MultipleImageFusion() bool { return j.Mode == ModeIndependent }

// ZStretchingResolved reports whether a registration file declared z-stretching.
func (j JobConfig) ZStretchingResolved() bool { return j.ZStretching >= 0 }

// Validate checks the invariants of a built job. It is used on jobs read
// back from disk.
func (j JobConfig) Validate() error {
	var errs []error
	if !j.Mode.Valid() {
		errs = append(errs, fmt.Errorf("invalid fusion mode %d", int(j.Mode)))
	}
	if len(j.Channels) == 0 {
		errs = append(errs, errors.New("no channels"))
	}
	if len(j.Assignment) != len(j.Channels) {
		errs = append(errs, fmt.Errorf("%d assignments for %d channels", len(j.Assignment), len(j.Channels)))
	}
	for i, ca := range j.Assignment {
		if i < len(j.Channels) && ca.Channel != j.Channels[i] {
			errs = append(errs, fmt.Errorf("assignment %d is for channel %d, want %d", i, ca.Channel, j.Channels[i]))
		}
		if ca.ReferenceTimepoint != j.ReferenceTimepoint {
			errs = append(errs, fmt.Errorf("%w: channel %d", ErrInconsistentReferenceTimepoint, ca.Channel))
		}
	}
	if j.TimeLapseRegistration != (j.ReferenceTimepoint >= 0) {
		errs = append(errs, errors.New("time-lapse flag does not match reference timepoint"))
	}
	if j.TimeLapseRegistration && j.ShowOutputImage {
		errs = append(errs, errors.New("time-lapse jobs cannot display their output"))
	}
	if !j.OverrideZStretching {
		errs = append(errs, errors.New("z-stretching override must be set"))
	}
	return errors.Join(errs...)
}
