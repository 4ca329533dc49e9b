// Package config loads and validates the TOML run configuration accepted by
// `mtrip run --config`. A config file is the file-based equivalent of
// passing every flag on the command line; the CLI rejects any other run
// flag alongside --config, except --tui and --print.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// RunConfig mirrors the flags of the `mtrip run` command.
type RunConfig struct {
	Input      string `toml:"input"`
	Output     string `toml:"output"`
	Threads    int    `toml:"threads"`
	NoValidate bool   `toml:"novalidate"`
	NoSave     bool   `toml:"nosave"`
	Print      bool   `toml:"print"`
	Binary     string `toml:"binary"`
	TUI        bool   `toml:"tui"`
	PlotPath   string `toml:"plotPath"`
}

// Config is the top-level structure of an mtrip TOML config file.
type Config struct {
	Run *RunConfig `toml:"run"`
}

// LoadConfig reads and parses a TOML config file. Validation is a separate
// step so callers can report parse and semantic errors distinctly.
func LoadConfig(configPath string) (*Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if _, err := toml.Decode(string(configData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Run == nil {
		config.Run = &RunConfig{}
	}
	return &config, nil
}

// ValidateRun checks the run section for semantic problems: an empty or
// nonexistent input path, a negative thread count, or output locations whose
// directories do not exist. Whether the input file is readable is not
// checked here.
func (c *Config) ValidateRun() error {
	r := c.Run
	if r == nil {
		return fmt.Errorf("run configuration section missing in config file")
	}
	if r.Input == "" {
		return fmt.Errorf("input file is required")
	}
	if _, err := os.Stat(r.Input); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", r.Input)
	}
	if r.Threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", r.Threads)
	}
	if err := validateParentDir("output", r.Output); err != nil {
		return err
	}
	if err := validateParentDir("binary", r.Binary); err != nil {
		return err
	}
	if err := validateParentDir("plotPath", r.PlotPath); err != nil {
		return err
	}
	return nil
}

// EffectiveThreads resolves the configured thread count, defaulting to the
// number of hardware threads.
func (r *RunConfig) EffectiveThreads() int {
	if r.Threads <= 0 {
		return runtime.NumCPU()
	}
	return r.Threads
}

// EffectiveOutput resolves the output path, defaulting to out_<input> next
// to the input file.
func (r *RunConfig) EffectiveOutput() string {
	if r.Output != "" {
		return r.Output
	}
	return DefaultOutputPath(r.Input)
}

// DefaultOutputPath returns out_<base> in the input file's directory.
func DefaultOutputPath(input string) string {
	dir := filepath.Dir(input)
	return filepath.Join(dir, "out_"+filepath.Base(input))
}

func validateParentDir(what, path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return nil
		}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%s directory does not exist: %s", what, dir)
	}
	return nil
}
