package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"spimfuse/internal/config"
	"spimfuse/internal/jobfile"
	"spimfuse/internal/logging"
	"spimfuse/internal/pipeline"
	"spimfuse/internal/storage"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

type engineFactory func(outputDir, format string) pipeline.Engine

// Root carries the dependencies shared by all commands. Fields left nil are
// initialized from the configuration before a command runs.
type Root struct {
	cfg        *config.Config
	configPath string
	log        *slog.Logger
	store      *storage.Store
	newEngine  engineFactory
	in         io.Reader
}

// NewRoot returns a Root. cfg, log and store may be nil.
func NewRoot(cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		cfg:   cfg,
		log:   logger,
		store: store,
		newEngine: func(outputDir, format string) pipeline.Engine {
			return jobfile.NewWriter(outputDir, format)
		},
		in: os.Stdin,
	}
}

// init loads whatever the command line did not inject.
func (r *Root) init() error {
	if r.cfg == nil {
		cfg, err := config.Load(r.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
	}
	if r.log == nil {
		logger, err := logging.Setup(r.cfg)
		if err != nil {
			return err
		}
		r.log = logger
	}
	if r.store == nil {
		store, err := storage.New(r.cfg.Paths.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database %s: %w", r.cfg.Paths.DatabasePath, err)
		}
		r.store = store
	}
	return nil
}

// Close releases the database.
func (r *Root) Close() error {
	return r.store.Close()
}

func (r *Root) options() pipeline.Options {
	return pipeline.Options{
		RegistrationSubdir: r.cfg.Registration.Subdir,
		Log:                r.log,
	}
}

func (r *Root) dispatcher(outputDir, format string) *pipeline.Dispatcher {
	if outputDir == "" {
		outputDir = r.cfg.Paths.OutputDir
	}
	if format == "" {
		format = r.cfg.Output.Format
	}
	return pipeline.New(r.log, r.store, r.newEngine(outputDir, format), r.cfg.Defaults, r.options())
}

// NewRootCmd creates the root Cobra command.
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spimfuse",
		Short: "Resolve multi-view registrations into fusion jobs",
		Long: `spimfuse inspects the registration files of a multi-view (SPIM) dataset,
lets you pick which registration every channel is fused with and writes a
validated fusion job for the reconstruction engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return root.init()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&root.configPath, "config", "c", "",
		"config file (default: $SPIMFUSE_CONFIG or ~/.config/spimfuse/config.json)")

	rootCmd.AddCommand(newFuseCmd(root))
	rootCmd.AddCommand(newChoicesCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newDefaultsCmd(root))
	rootCmd.AddCommand(newJobsCmd(root))
	rootCmd.AddCommand(newShowCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}
