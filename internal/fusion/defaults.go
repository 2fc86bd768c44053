package fusion

// RunDefaults are the last-used operator inputs. They seed the next run and
// are replaced only after a run completes successfully.
type RunDefaults struct {
	Multichannel bool   `json:"multichannel" yaml:"multichannel"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	FilePattern  string `json:"file_pattern" yaml:"file_pattern"`
	Timepoints   string `json:"timepoints" yaml:"timepoints"`
	Angles       string `json:"angles" yaml:"angles"`
	Channels     string `json:"channels" yaml:"channels"`
	Params       Params `json:"params" yaml:"params"`
}

// DefaultRunDefaults returns the values used before any run has completed.
func DefaultRunDefaults() RunDefaults {
	return RunDefaults{
		Multichannel: false,
		FilePattern:  "spim_TL{tt}_Angle{a}.lsm",
		Timepoints:   "18",
		Angles:       "0-270:45",
		Channels:     "0, 1",
		Params: Params{
			Mode:       ModeAllAtOnce,
			Blending:   true,
			Scale:      1,
			CropOffset: Vec3{X: 285, Y: 353, Z: 375},
			CropSize:   Vec3{X: 727, Y: 395, Z: 325},
			Display:    true,
			Save:       true,
		},
	}
}
