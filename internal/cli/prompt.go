package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"spimfuse/internal/fusion"
	"spimfuse/internal/pipeline"
)

// promptProvider asks the operator on a terminal. Every question offers the
// value from the flags or the last run as its default; an empty answer
// accepts it, "q" or end of input cancels.
type promptProvider struct {
	in    *bufio.Reader
	out   io.Writer
	flags *flagProvider
}

func newPromptProvider(in io.Reader, out io.Writer, flags *flagProvider) *promptProvider {
	return &promptProvider{in: bufio.NewReader(in), out: out, flags: flags}
}

func (p *promptProvider) Source(ctx context.Context, d fusion.RunDefaults) (pipeline.SourceInput, error) {
	in := p.flags.source(d)

	var err error
	if in.Multichannel, err = p.askBool("Multi-channel dataset", in.Multichannel); err != nil {
		return in, err
	}
	if in.DataDir, err = p.askString("SPIM data directory", in.DataDir); err != nil {
		return in, err
	}
	if in.FilePattern, err = p.askString("Pattern of SPIM files", in.FilePattern); err != nil {
		return in, err
	}
	if in.Timepoints, err = p.askString("Timepoints to process", in.Timepoints); err != nil {
		return in, err
	}
	if in.Angles, err = p.askString("Angles to process", in.Angles); err != nil {
		return in, err
	}
	if in.Multichannel {
		if in.Channels, err = p.askString("Channels to process", in.Channels); err != nil {
			return in, err
		}
	}
	if strings.TrimSpace(in.DataDir) == "" {
		return in, fmt.Errorf("no data directory given")
	}
	return in, nil
}

func (p *promptProvider) Selection(ctx context.Context, l *fusion.ChoiceList, d fusion.RunDefaults) (pipeline.SelectionInput, error) {
	var sel pipeline.SelectionInput

	params, err := p.flags.params(d.Params)
	if err != nil {
		return sel, err
	}
	defaults := l.Suggestions()
	if p.flags.changed("choice") && len(p.flags.sel.choices) == len(defaults) {
		defaults = p.flags.sel.choices
	}

	fmt.Fprintln(p.out, "Available registrations:")
	for i, label := range l.Labels() {
		fmt.Fprintf(p.out, "  [%d] %s\n", i, label)
	}
	sel.Choices = make([]int, len(l.Channels))
	for i, ch := range l.Channels {
		idx, err := p.askIndex(fmt.Sprintf("Registration for channel %d", ch), defaults[i], l.Len())
		if err != nil {
			return sel, err
		}
		sel.Choices[i] = idx
	}

	fmt.Fprintln(p.out, "Fusion methods:")
	for m := fusion.ModeAllAtOnce; m.Valid(); m++ {
		fmt.Fprintf(p.out, "  [%d] %s (%s)\n", int(m), m.Label(), m)
	}
	if params.Mode, err = p.askMode(params.Mode); err != nil {
		return sel, err
	}
	if params.Blending, err = p.askBool("Apply blending", params.Blending); err != nil {
		return sel, err
	}
	if params.ContentBased, err = p.askBool("Apply content based weightening", params.ContentBased); err != nil {
		return sel, err
	}
	if params.Scale, err = p.askInt("Downsample output image n-times", params.Scale); err != nil {
		return sel, err
	}
	if params.CropOffset, err = p.askVec3("Crop offset output image", params.CropOffset); err != nil {
		return sel, err
	}
	if params.CropSize, err = p.askVec3("Crop size output image", params.CropSize); err != nil {
		return sel, err
	}
	if params.Display, err = p.askBool("Display fused image", params.Display); err != nil {
		return sel, err
	}
	if params.Save, err = p.askBool("Save fused image", params.Save); err != nil {
		return sel, err
	}
	sel.Params = params
	return sel, nil
}

// readLine returns the trimmed answer, or ErrCanceled on "q" or end of input.
func (p *promptProvider) readLine(question, def string) (string, error) {
	fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		fmt.Fprintln(p.out)
		if errors.Is(err, io.EOF) {
			return "", pipeline.ErrCanceled
		}
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "q" || line == "quit" {
		return "", pipeline.ErrCanceled
	}
	return line, nil
}

func (p *promptProvider) askString(question, def string) (string, error) {
	answer, err := p.readLine(question, def)
	if err != nil || answer == "" {
		return def, err
	}
	return answer, nil
}

func (p *promptProvider) askBool(question string, def bool) (bool, error) {
	shown := "y/N"
	if def {
		shown = "Y/n"
	}
	for {
		answer, err := p.readLine(question, shown)
		if err != nil {
			return def, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes", "true", "1":
			return true, nil
		case "n", "no", "false", "0":
			return false, nil
		}
		fmt.Fprintf(p.out, "Please answer y or n.\n")
	}
}

func (p *promptProvider) askInt(question string, def int) (int, error) {
	for {
		answer, err := p.readLine(question, strconv.Itoa(def))
		if err != nil {
			return def, err
		}
		if answer == "" {
			return def, nil
		}
		n, err := parseCount(answer)
		if err == nil {
			return n, nil
		}
		fmt.Fprintf(p.out, "%v\n", err)
	}
}

func (p *promptProvider) askVec3(question string, def fusion.Vec3) (fusion.Vec3, error) {
	v := def
	var err error
	if v.X, err = p.askInt(question+" x", def.X); err != nil {
		return def, err
	}
	if v.Y, err = p.askInt(question+" y", def.Y); err != nil {
		return def, err
	}
	if v.Z, err = p.askInt(question+" z", def.Z); err != nil {
		return def, err
	}
	return v, nil
}

func (p *promptProvider) askIndex(question string, def, n int) (int, error) {
	for {
		idx, err := p.askInt(question, def)
		if err != nil {
			return def, err
		}
		if idx < n {
			return idx, nil
		}
		fmt.Fprintf(p.out, "Choose a registration between 0 and %d.\n", n-1)
	}
}

func (p *promptProvider) askMode(def fusion.Mode) (fusion.Mode, error) {
	for {
		answer, err := p.readLine("Fusion method", def.String())
		if err != nil {
			return def, err
		}
		if answer == "" {
			return def, nil
		}
		m, err := fusion.ParseMode(answer)
		if err == nil {
			return m, nil
		}
		fmt.Fprintf(p.out, "%v\n", err)
	}
}

// parseCount reads a non-negative number, rounding fractional input.
func parseCount(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	n := int(math.Round(f))
	if n < 0 {
		return 0, fmt.Errorf("%q must not be negative", s)
	}
	return n, nil
}
