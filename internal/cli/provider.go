package cli

import (
	"context"
	"fmt"

	"spimfuse/internal/fusion"
	"spimfuse/internal/pipeline"

	"github.com/spf13/cobra"
)

// sourceFlags name the dataset.
type sourceFlags struct {
	multichannel bool
	dataDir      string
	pattern      string
	timepoints   string
	angles       string
	channels     string
}

// selectionFlags carry the fusion parameters and registration choices.
type selectionFlags struct {
	choices      []int
	mode         string
	blending     bool
	contentBased bool
	scale        int
	cropOffset   []int
	cropSize     []int
	display      bool
	save         bool
}

func addSourceFlags(cmd *cobra.Command, f *sourceFlags) {
	cmd.Flags().BoolVar(&f.multichannel, "multichannel", false, "multi-channel dataset (default: last used)")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "SPIM data directory (default: last used)")
	cmd.Flags().StringVarP(&f.pattern, "pattern", "p", "", "file name pattern, e.g. spim_TL{tt}_Ch{c}_Angle{a}.lsm")
	cmd.Flags().StringVarP(&f.timepoints, "timepoints", "t", "", "timepoints to process, e.g. 1-10")
	cmd.Flags().StringVarP(&f.angles, "angles", "a", "", "angles to process, e.g. 0-315:45")
	cmd.Flags().StringVar(&f.channels, "channels", "", "channels to process, e.g. \"0, 1\" (implies --multichannel)")
}

func addSelectionFlags(cmd *cobra.Command, f *selectionFlags) {
	cmd.Flags().IntSliceVar(&f.choices, "choice", nil, "registration choice index per channel (default: suggested choices)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "fusion mode (all-at-once|sequential|independent-images)")
	cmd.Flags().BoolVar(&f.blending, "blending", true, "apply linear blending")
	cmd.Flags().BoolVar(&f.contentBased, "content-based", false, "apply content-based weighting")
	cmd.Flags().IntVar(&f.scale, "scale", 1, "downsample the output image n-times")
	cmd.Flags().IntSliceVar(&f.cropOffset, "crop-offset", nil, "crop offset x,y,z")
	cmd.Flags().IntSliceVar(&f.cropSize, "crop-size", nil, "crop size x,y,z")
	cmd.Flags().BoolVar(&f.display, "display", true, "display the fused image")
	cmd.Flags().BoolVar(&f.save, "save", true, "save the fused image")
}

// flagProvider answers from command-line flags, falling back to the run
// defaults for anything not given and to the suggested registrations.
type flagProvider struct {
	src     *sourceFlags
	sel     *selectionFlags
	changed func(name string) bool
}

func (p *flagProvider) Source(ctx context.Context, d fusion.RunDefaults) (pipeline.SourceInput, error) {
	in := p.source(d)
	if in.DataDir == "" {
		return in, fmt.Errorf("no data directory given")
	}
	return in, nil
}

// source merges the flags given on the command line over d.
func (p *flagProvider) source(d fusion.RunDefaults) pipeline.SourceInput {
	in := pipeline.SourceInput{
		Multichannel: d.Multichannel,
		DataDir:      d.DataDir,
		FilePattern:  d.FilePattern,
		Timepoints:   d.Timepoints,
		Angles:       d.Angles,
		Channels:     d.Channels,
	}
	if p.changed("multichannel") {
		in.Multichannel = p.src.multichannel
	}
	if p.changed("channels") {
		in.Channels = p.src.channels
		if !p.changed("multichannel") {
			in.Multichannel = true
		}
	}
	if p.changed("data-dir") {
		in.DataDir = p.src.dataDir
	}
	if p.changed("pattern") {
		in.FilePattern = p.src.pattern
	}
	if p.changed("timepoints") {
		in.Timepoints = p.src.timepoints
	}
	if p.changed("angles") {
		in.Angles = p.src.angles
	}
	return in
}

func (p *flagProvider) Selection(ctx context.Context, l *fusion.ChoiceList, d fusion.RunDefaults) (pipeline.SelectionInput, error) {
	params, err := p.params(d.Params)
	if err != nil {
		return pipeline.SelectionInput{}, err
	}
	choices := l.Suggestions()
	if p.changed("choice") {
		choices = append([]int(nil), p.sel.choices...)
	}
	return pipeline.SelectionInput{Choices: choices, Params: params}, nil
}

func (p *flagProvider) params(base fusion.Params) (fusion.Params, error) {
	out := base
	if p.changed("mode") {
		m, err := fusion.ParseMode(p.sel.mode)
		if err != nil {
			return out, err
		}
		out.Mode = m
	}
	if p.changed("blending") {
		out.Blending = p.sel.blending
	}
	if p.changed("content-based") {
		out.ContentBased = p.sel.contentBased
	}
	if p.changed("scale") {
		if p.sel.scale < 0 {
			return out, fmt.Errorf("--scale must not be negative")
		}
		out.Scale = p.sel.scale
	}
	if p.changed("crop-offset") {
		v, err := vec3Flag("crop-offset", p.sel.cropOffset)
		if err != nil {
			return out, err
		}
		out.CropOffset = v
	}
	if p.changed("crop-size") {
		v, err := vec3Flag("crop-size", p.sel.cropSize)
		if err != nil {
			return out, err
		}
		out.CropSize = v
	}
	if p.changed("display") {
		out.Display = p.sel.display
	}
	if p.changed("save") {
		out.Save = p.sel.save
	}
	return out, nil
}

func vec3Flag(name string, xs []int) (fusion.Vec3, error) {
	if len(xs) != 3 {
		return fusion.Vec3{}, fmt.Errorf("--%s needs exactly 3 integers, got %d", name, len(xs))
	}
	for _, x := range xs {
		if x < 0 {
			return fusion.Vec3{}, fmt.Errorf("--%s values must not be negative", name)
		}
	}
	return fusion.Vec3{X: xs[0], Y: xs[1], Z: xs[2]}, nil
}
