package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"spimfuse/internal/fusion"
	"spimfuse/internal/jobfile"
	"spimfuse/internal/pipeline"
	"spimfuse/internal/registration"
	"spimfuse/internal/watch"

	"github.com/spf13/cobra"
)

func newChoicesCmd(root *Root) *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "choices [data_dir]",
		Short: "List the registrations available for a dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.dataDir = args[0]
			}
			disc, err := root.discover(cmd, args, &src)
			if err != nil {
				return err
			}
			printChoices(cmd.OutOrStdout(), disc)
			return nil
		},
	}
	addSourceFlags(cmd, &src)
	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		src      sourceFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [data_dir]",
		Short: "Print the registrations every time the registration directory changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.dataDir = args[0]
			}
			out := cmd.OutOrStdout()

			disc, err := root.discover(cmd, args, &src)
			if err != nil && !errors.Is(err, registration.ErrNoRegistrationFilesFound) {
				return err
			}
			regDir := root.cfg.RegistrationDir(src.dataDir)
			if disc != nil {
				regDir = disc.Source.RegistrationDir
				printChoices(out, disc)
			} else {
				fmt.Fprintf(out, "No registration files in %s yet.\n", regDir)
			}

			w, err := watch.New(regDir, debounce, root.log)
			if err != nil {
				return fmt.Errorf("watch %s: %w", regDir, err)
			}

			return w.Run(cmd.Context(), func(events []watch.Event) {
				for _, ev := range events {
					fmt.Fprintf(out, "%s %s %s\n", ev.Time.Format("15:04:05"), ev.Operation, ev.Name)
				}
				disc, err := root.discover(cmd, args, &src)
				if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
					return
				}
				printChoices(out, disc)
			})
		},
	}
	addSourceFlags(cmd, &src)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long for a burst of changes to settle")
	return cmd
}

// discover scans the dataset named by the flags, filling in the stored
// defaults for anything not given.
func (r *Root) discover(cmd *cobra.Command, args []string, src *sourceFlags) (*pipeline.Discovery, error) {
	defaults, err := r.store.LoadDefaults(r.cfg.Defaults)
	if err != nil {
		return nil, err
	}
	p := &flagProvider{src: src, changed: changedFunc(cmd, args)}
	in, err := p.Source(cmd.Context(), defaults)
	if err != nil {
		return nil, err
	}
	src.dataDir = in.DataDir
	return pipeline.Discover(in, r.options())
}

func printChoices(w io.Writer, disc *pipeline.Discovery) {
	fmt.Fprintf(w, "Registrations in %s:\n", disc.Source.RegistrationDir)
	suggested := disc.Choices.Suggestions()
	for _, e := range disc.Choices.Entries {
		var marks []int
		for i, s := range suggested {
			if s == e.Index {
				marks = append(marks, disc.Channels[i])
			}
		}
		if len(marks) > 0 {
			fmt.Fprintf(w, "  [%d] %s (suggested for channel %v)\n", e.Index, e.Label, marks)
		} else {
			fmt.Fprintf(w, "  [%d] %s\n", e.Index, e.Label)
		}
	}
	if disc.Index.ZStretchingResolved() {
		fmt.Fprintf(w, "Z-stretching: %g\n", disc.Index.ZStretching)
	} else {
		fmt.Fprintln(w, "Z-stretching: unresolved")
	}
}

func newDefaultsCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Inspect the values remembered from the last run",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the remembered values",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := root.store.LoadDefaults(root.cfg.Defaults)
			if err != nil {
				return err
			}
			printDefaults(cmd.OutOrStdout(), d)
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the remembered values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.store.ResetDefaults(); err != nil {
				return err
			}
			root.log.Info("run defaults reset")
			fmt.Fprintln(cmd.OutOrStdout(), "Defaults reset.")
			return nil
		},
	}

	cmd.AddCommand(showCmd, resetCmd)
	return cmd
}

func printDefaults(w io.Writer, d fusion.RunDefaults) {
	fmt.Fprintf(w, "Multi-channel:  %t\n", d.Multichannel)
	fmt.Fprintf(w, "Data directory: %s\n", d.DataDir)
	fmt.Fprintf(w, "File pattern:   %s\n", d.FilePattern)
	fmt.Fprintf(w, "Timepoints:     %s\n", d.Timepoints)
	fmt.Fprintf(w, "Angles:         %s\n", d.Angles)
	fmt.Fprintf(w, "Channels:       %s\n", d.Channels)
	fmt.Fprintf(w, "Mode:           %s\n", d.Params.Mode)
	fmt.Fprintf(w, "Blending:       %s\n", flagList(d.Params.Blending, d.Params.ContentBased))
	fmt.Fprintf(w, "Scale:          %d\n", d.Params.Scale)
	fmt.Fprintf(w, "Crop offset:    %s\n", d.Params.CropOffset)
	fmt.Fprintf(w, "Crop size:      %s\n", d.Params.CropSize)
	fmt.Fprintf(w, "Display/save:   %t / %t\n", d.Params.Display, d.Params.Save)
}

func newJobsCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent fusion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := root.store.RecentJobs(limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tCHANNELS\tREFERENCE\tMODE\tOUTPUT")
			for _, j := range jobs {
				ref := "individual"
				if j.ReferenceTimepoint >= 0 {
					ref = fmt.Sprint(j.ReferenceTimepoint)
				}
				out := j.OutputPath
				if j.Error != "" {
					out = j.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					j.ID, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04"), j.Channels, ref, j.Mode, out)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to list")
	return cmd
}

func newShowCmd(root *Root) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <job file|job id>",
		Short: "Print a fusion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := root.loadJob(args[0])
			if err != nil {
				return err
			}
			data, _, err := jobfile.Encode(job, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format, yaml or json")
	return cmd
}

// loadJob reads a job file, falling back to the job stored under that ID.
func (r *Root) loadJob(ref string) (fusion.JobConfig, error) {
	if _, err := os.Stat(ref); err == nil {
		return jobfile.Read(ref)
	}
	job, err := r.store.Job(ref)
	if err != nil {
		return fusion.JobConfig{}, fmt.Errorf("no job file or stored job %q: %w", ref, err)
	}
	return job, nil
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration:\n\n")
			fmt.Fprintf(w, "Database Path:       %s\n", root.cfg.Paths.DatabasePath)
			fmt.Fprintf(w, "Default Data Dir:    %s\n", root.cfg.Paths.DefaultDataDir)
			fmt.Fprintf(w, "Output Directory:    %s\n", root.cfg.Paths.OutputDir)
			fmt.Fprintf(w, "Output Format:       %s\n", root.cfg.Output.Format)
			fmt.Fprintf(w, "Registration Subdir: %s\n", root.cfg.Registration.Subdir)
			fmt.Fprintf(w, "Log Level:           %s\n", root.cfg.Logging.Level)
			fmt.Fprintf(w, "Log Format:          %s\n", root.cfg.Logging.Format)
			fmt.Fprintf(w, "Log Directory:       %s\n", root.cfg.Logging.LogDir)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("spimfuse %s\n", Version)
		},
	}
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute(root *Root) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(root).ExecuteContext(ctx)
}
