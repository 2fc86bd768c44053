package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"spimfuse/internal/fsutil"
	"spimfuse/internal/fusion"
)

const (
	defaultConfigPath = "~/.config/spimfuse/config.json"
	envPrefix         = "SPIMFUSE"
)

// Config holds user-editable settings.
type Config struct {
	Logging      Logging            `mapstructure:"logging" json:"logging"`
	Paths        Paths              `mapstructure:"paths" json:"paths"`
	Registration Registration       `mapstructure:"registration" json:"registration"`
	Output       Output             `mapstructure:"output" json:"output"`
	Defaults     fusion.RunDefaults `mapstructure:"-" json:"defaults"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"`           // text, json
	FileOutput bool   `mapstructure:"file_output" json:"file_output"` // Enable file logging
	LogDir     string `mapstructure:"log_dir" json:"log_dir"`
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultDataDir string `mapstructure:"default_data_dir" json:"default_data_dir"`
	OutputDir      string `mapstructure:"output_dir" json:"output_dir"`
	DatabasePath   string `mapstructure:"database_path" json:"database_path"`
}

// Registration locates registration files relative to the data directory.
type Registration struct {
	Subdir string `mapstructure:"subdir" json:"subdir"`
}

// Output controls how emitted job files are written.
type Output struct {
	Format string `mapstructure:"format" json:"format"` // yaml, json
}

// Load reads configuration from path, or from SPIMFUSE_CONFIG, or from the
// default location, falling back to built-in defaults when no file exists.
// SPIMFUSE_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	if fsutil.FirstExisting(expanded) != "" {
		v.SetConfigFile(expanded)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", expanded, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Defaults, err = runDefaults(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot honour.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Output.Format) {
	case "yaml", "yml", "json":
	default:
		errs = append(errs, fmt.Errorf("output.format must be yaml or json, got %q", c.Output.Format))
	}
	if c.Registration.Subdir == "" {
		errs = append(errs, errors.New("registration.subdir must not be empty"))
	}
	if c.Paths.DatabasePath == "" {
		errs = append(errs, errors.New("paths.database_path must not be empty"))
	}
	if !c.Defaults.Params.Mode.Valid() {
		errs = append(errs, fmt.Errorf("defaults.mode is invalid"))
	}
	return errors.Join(errs...)
}

// RegistrationDir returns the registration directory for a data directory.
func (c *Config) RegistrationDir(dataDir string) string {
	return filepath.Join(dataDir, c.Registration.Subdir)
}

func defaultConfig() *Config {
	return &Config{
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DefaultDataDir: ".",
			OutputDir:      "./fusion-jobs",
			DatabasePath:   filepath.Join(os.TempDir(), "spimfuse.db"),
		},
		Registration: Registration{Subdir: "registration"},
		Output:       Output{Format: "yaml"},
		Defaults:     fusion.DefaultRunDefaults(),
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file_output", cfg.Logging.FileOutput)
	v.SetDefault("logging.log_dir", cfg.Logging.LogDir)
	v.SetDefault("paths.default_data_dir", cfg.Paths.DefaultDataDir)
	v.SetDefault("paths.output_dir", cfg.Paths.OutputDir)
	v.SetDefault("paths.database_path", cfg.Paths.DatabasePath)
	v.SetDefault("registration.subdir", cfg.Registration.Subdir)
	v.SetDefault("output.format", cfg.Output.Format)

	d := cfg.Defaults
	v.SetDefault("defaults.multichannel", d.Multichannel)
	v.SetDefault("defaults.file_pattern", d.FilePattern)
	v.SetDefault("defaults.timepoints", d.Timepoints)
	v.SetDefault("defaults.angles", d.Angles)
	v.SetDefault("defaults.channels", d.Channels)
	v.SetDefault("defaults.mode", d.Params.Mode.String())
	v.SetDefault("defaults.blending", d.Params.Blending)
	v.SetDefault("defaults.content_based", d.Params.ContentBased)
	v.SetDefault("defaults.scale", d.Params.Scale)
	v.SetDefault("defaults.crop_offset", []int{d.Params.CropOffset.X, d.Params.CropOffset.Y, d.Params.CropOffset.Z})
	v.SetDefault("defaults.crop_size", []int{d.Params.CropSize.X, d.Params.CropSize.Y, d.Params.CropSize.Z})
	v.SetDefault("defaults.display", d.Params.Display)
	v.SetDefault("defaults.save", d.Params.Save)
}

// runDefaults reads the "defaults" section. Crop boxes are written as
// three-element arrays in the config file.
func runDefaults(v *viper.Viper) (fusion.RunDefaults, error) {
	mode, err := fusion.ParseMode(v.GetString("defaults.mode"))
	if err != nil {
		return fusion.RunDefaults{}, fmt.Errorf("defaults.mode: %w", err)
	}
	offset, err := vec3(v, "defaults.crop_offset")
	if err != nil {
		return fusion.RunDefaults{}, err
	}
	size, err := vec3(v, "defaults.crop_size")
	if err != nil {
		return fusion.RunDefaults{}, err
	}
	return fusion.RunDefaults{
		Multichannel: v.GetBool("defaults.multichannel"),
		DataDir:      v.GetString("paths.default_data_dir"),
		FilePattern:  v.GetString("defaults.file_pattern"),
		Timepoints:   v.GetString("defaults.timepoints"),
		Angles:       v.GetString("defaults.angles"),
		Channels:     v.GetString("defaults.channels"),
		Params: fusion.Params{
			Mode:         mode,
			Blending:     v.GetBool("defaults.blending"),
			ContentBased: v.GetBool("defaults.content_based"),
			Scale:        v.GetInt("defaults.scale"),
			CropOffset:   offset,
			CropSize:     size,
			Display:      v.GetBool("defaults.display"),
			Save:         v.GetBool("defaults.save"),
		},
	}, nil
}

func vec3(v *viper.Viper, key string) (fusion.Vec3, error) {
	xs := v.GetIntSlice(key)
	if len(xs) != 3 {
		return fusion.Vec3{}, fmt.Errorf("%s: want 3 integers, got %v", key, v.Get(key))
	}
	return fusion.Vec3{X: xs[0], Y: xs[1], Z: xs[2]}, nil
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
