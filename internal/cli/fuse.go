package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"spimfuse/internal/fusion"
	"spimfuse/internal/pipeline"

	"github.com/spf13/cobra"
)

func newFuseCmd(root *Root) *cobra.Command {
	var (
		src       sourceFlags
		sel       selectionFlags
		yes       bool
		outputDir string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "fuse [data_dir]",
		Short: "Resolve registrations into a fusion job",
		Long: `Resolve the registrations of a SPIM dataset into a fusion job.

By default every value is asked for interactively, offering the flags or the
values of the last successful run as defaults. With --yes the flags and the
suggested registrations are used as given.`,
		Example: `  spimfuse fuse /data/embryo --multichannel --channels "0, 1"
  spimfuse fuse /data/embryo --yes --choice 0,0 --mode sequential --scale 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.dataDir = args[0]
			}
			flags := &flagProvider{src: &src, sel: &sel, changed: changedFunc(cmd, args)}

			var p pipeline.Provider = flags
			if !yes {
				p = newPromptProvider(root.in, cmd.OutOrStdout(), flags)
			}

			res, err := root.dispatcher(outputDir, format).Run(cmd.Context(), p)
			if errors.Is(err, pipeline.ErrCanceled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Canceled.")
				return nil
			}
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), res.Job)
			fmt.Fprintf(cmd.OutOrStdout(), "Job written to %s\n", res.OutputPath)
			return nil
		},
	}

	addSourceFlags(cmd, &src)
	addSelectionFlags(cmd, &sel)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not prompt, use flags and suggested registrations")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for job files (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "job file format, yaml or json (default from config)")

	return cmd
}

// changedFunc reports which values the operator gave explicitly. A
// positional data directory counts as --data-dir.
func changedFunc(cmd *cobra.Command, args []string) func(string) bool {
	return func(name string) bool {
		if name == "data-dir" && len(args) > 0 {
			return true
		}
		return cmd.Flags().Changed(name)
	}
}

func printJob(w io.Writer, job fusion.JobConfig) {
	fmt.Fprintf(w, "Fusion job %s\n", job.ID)
	fmt.Fprintf(w, "  Data directory:   %s\n", job.DataDir)
	fmt.Fprintf(w, "  Registrations:    %s\n", job.RegistrationDir)
	for _, ca := range job.Assignment {
		fmt.Fprintf(w, "  Channel %d:        %s\n", ca.Channel, fusion.Label(ca.SourceChannel, ca.ReferenceTimepoint))
	}
	fmt.Fprintf(w, "  Mode:             %s\n", job.Mode.Label())
	fmt.Fprintf(w, "  Blending:         %s\n", flagList(job.UseLinearBlending, job.UseContentBased))
	fmt.Fprintf(w, "  Scale:            %d\n", job.Scale)
	fmt.Fprintf(w, "  Crop:             offset %s size %s\n", job.CropOffset, job.CropSize)
	if job.ZStretchingResolved() {
		fmt.Fprintf(w, "  Z-stretching:     %g\n", job.ZStretching)
	} else {
		fmt.Fprintf(w, "  Z-stretching:     unresolved\n")
	}
	fmt.Fprintf(w, "  Show / write:     %t / %t\n", job.ShowOutputImage, job.WriteOutputImage)
}

func flagList(linear, contentBased bool) string {
	var parts []string
	if linear {
		parts = append(parts, "linear")
	}
	if contentBased {
		parts = append(parts, "content-based")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
