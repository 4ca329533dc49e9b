package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChristianF88/mtrip/config"
	"github.com/ChristianF88/mtrip/version"
	cli "github.com/urfave/cli/v2"
)

// parseDate attempts to parse the build date
func parseDate(d string) time.Time {
	t, err := time.Parse(time.RFC3339, d)
	if err != nil {
		return time.Now()
	}
	return t
}

// Shared flag definitions to eliminate duplication
var (
	// Configuration flags
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to TOML configuration file (mutually exclusive with other flags except --tui and --print)",
	}

	// Run flags
	threadsFlag = &cli.IntFlag{
		Name:    "threads",
		Aliases: []string{"t"},
		Usage:   "Maximum number of concurrent threads (defaults to number of CPUs)",
		Value:   0,
	}
	novalidateFlag = &cli.BoolFlag{
		Name:  "novalidate",
		Usage: "Skip the line-by-line sanity check of each input Newick string (for a small speedup)",
		Value: false,
	}
	nosaveFlag = &cli.BoolFlag{
		Name:    "nosave",
		Aliases: []string{"n"},
		Usage:   "Don't save the median trees to a file (must be used with --print)",
		Value:   false,
	}
	printFlag = &cli.BoolFlag{
		Name:    "print",
		Aliases: []string{"p"},
		Usage:   "Print the output to the screen",
		Value:   false,
	}
	binaryFlag = &cli.StringFlag{
		Name:    "binary",
		Aliases: []string{"b"},
		Usage:   "Serialize the run (weights, stack, maximizing splits) to this path for reuse by mtrip-combine and mtrip-suboptimal",
	}
	tuiFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Launch TUI (Terminal User Interface) mode",
		Value: false,
	}
	plotPathFlag = &cli.StringFlag{
		Name:  "plotPath",
		Usage: "Path where to save the per-layer DP chart (e.g., '/path/to/layers.html'). If not provided, no plot will be generated.",
	}

	// Suboptimal-specific flags
	minScoreFlag = &cli.Int64Flag{
		Name:    "minscore",
		Aliases: []string{"m"},
		Usage:   "Each sampled tree must have a score greater than or equal to this",
		Value:   -1,
	}
	fractionFlag = &cli.Float64Flag{
		Name:    "fraction",
		Aliases: []string{"f"},
		Usage:   "Each sampled tree must score at least this fraction of the maximal score (0 < f <= 1)",
		Value:   0.99,
	}
	nTreesFlag = &cli.IntFlag{
		Name:    "ntrees",
		Aliases: []string{"c", "count"},
		Usage:   "Output at most this many trees",
		Value:   100,
	}
	burninFlag = &cli.IntFlag{
		Name:  "burnin",
		Usage: "Find this many viable candidates before randomly choosing a subsample (defaults to 4x ntrees)",
		Value: 0,
	}
	seedFlag = &cli.Int64Flag{
		Name:    "seed",
		Aliases: []string{"s"},
		Usage:   "Seed for the random walk over the space of splits",
		Value:   0,
	}
)

// Shared validation functions
func validateConfigModeFlags(c *cli.Context, allowedFlags []string) error {
	// Create a map for quick lookup of allowed flags
	allowed := make(map[string]bool)
	for _, flag := range allowedFlags {
		allowed[flag] = true
	}

	// Check all possible flags
	flagsToCheck := []string{
		"threads", "novalidate", "nosave", "print", "binary", "tui", "plotPath",
	}

	for _, flag := range flagsToCheck {
		if c.IsSet(flag) && !allowed[flag] {
			return fmt.Errorf("when using --config, only %v flags are allowed", allowedFlags)
		}
	}
	return nil
}

func validateInputExists(inputPath string) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputPath)
	}
	return nil
}

func validatePlotPath(plotPath string) error {
	if plotPath != "" {
		plotDir := filepath.Dir(plotPath)
		if plotDir == "." {
			plotDir, _ = os.Getwd()
		}
		if _, err := os.Stat(plotDir); os.IsNotExist(err) {
			return fmt.Errorf("plot directory does not exist: %s", plotDir)
		}
	}
	return nil
}

func validateOutputFlags(nosave, print bool) error {
	if nosave && !print {
		return fmt.Errorf("the flag --nosave cannot be used without --print, otherwise the output goes nowhere")
	}
	return nil
}

// Command handler functions to reduce deep nesting

// handleRunCommand processes the run command with proper separation of concerns
func handleRunCommand(c *cli.Context) error {
	configPath := c.String("config")
	if configPath != "" {
		return handleRunConfigMode(c, configPath)
	}
	return handleRunFlagsMode(c)
}

// handleRunConfigMode handles the run command when using a config file
func handleRunConfigMode(c *cli.Context, configPath string) error {
	// Validate only allowed flags in config mode
	if err := validateConfigModeFlags(c, []string{"tui", "print"}); err != nil {
		return err
	}
	if c.Args().Len() > 0 {
		return fmt.Errorf("positional input/output arguments are not allowed with --config")
	}

	// Load and validate config
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateRun(); err != nil {
		return fmt.Errorf("invalid run configuration: %w", err)
	}

	run := cfg.Run
	if c.IsSet("tui") {
		run.TUI = c.Bool("tui")
	}
	if c.IsSet("print") {
		run.Print = c.Bool("print")
	}
	if err := validateOutputFlags(run.NoSave, run.Print); err != nil {
		return err
	}

	fmt.Println("Running from config file:")
	return RunMedian(run)
}

// handleRunFlagsMode handles the run command when using CLI flags only
func handleRunFlagsMode(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("an input file with one Newick string per line is required")
	}
	if c.Args().Len() > 2 {
		return fmt.Errorf("at most two positional arguments (input and output file) are allowed")
	}

	run := &config.RunConfig{
		Input:      c.Args().Get(0),
		Output:     c.Args().Get(1),
		Threads:    c.Int("threads"),
		NoValidate: c.Bool("novalidate"),
		NoSave:     c.Bool("nosave"),
		Print:      c.Bool("print"),
		Binary:     c.String("binary"),
		TUI:        c.Bool("tui"),
		PlotPath:   c.String("plotPath"),
	}

	if err := validateInputExists(run.Input); err != nil {
		return err
	}
	if err := validateOutputFlags(run.NoSave, run.Print); err != nil {
		return err
	}
	if err := validatePlotPath(run.PlotPath); err != nil {
		return err
	}
	if run.Threads < 0 {
		return fmt.Errorf("the number of threads must be a positive integer, or 0 for the default guess")
	}

	return RunMedian(run)
}

// handleCombineCommand merges two or more serialized artifacts and re-runs
// the DP on the summed weight table.
func handleCombineCommand(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("need at least two artifact files to combine")
	}
	return RunCombine(c.Args().Slice(), c.String("output"), c.Int("threads"), c.Bool("print"))
}

// handleSuboptimalCommand samples near-optimal trees from a serialized
// artifact.
func handleSuboptimalCommand(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("an input artifact file is required")
	}
	if c.Args().Len() > 2 {
		return fmt.Errorf("at most two positional arguments (artifact and output file) are allowed")
	}

	fraction := c.Float64("fraction")
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("fraction must be greater than 0 and at most 1, got %g", fraction)
	}
	if c.Int("ntrees") <= 0 {
		return fmt.Errorf("the number of requested trees must be positive")
	}
	if burnin := c.Int("burnin"); burnin != 0 && burnin < c.Int("ntrees") {
		return fmt.Errorf("burnin number less than requested number of trees")
	}

	return RunSuboptimal(SuboptimalOptions{
		ArtifactPath: c.Args().Get(0),
		OutputPath:   c.Args().Get(1),
		MinScore:     c.Int64("minscore"),
		Fraction:     fraction,
		NTrees:       c.Int("ntrees"),
		Burnin:       c.Int("burnin"),
		Seed:         c.Int64("seed"),
		Print:        c.Bool("print"),
	})
}

// App is the mtrip binary: exact median triplet trees from a file of Newick
// strings.
var App = &cli.App{
	Name:     "mtrip",
	Usage:    "Compute all exact median triplet trees for a file of Newick strings",
	Version:  version.Version,
	Compiled: parseDate(version.Date),
	Commands: []*cli.Command{
		{
			Name:      "run",
			Usage:     "Read a file with one Newick string per line and output every median triplet tree",
			ArgsUsage: "<input> [output]",
			Flags: []cli.Flag{
				// Configuration
				configFlag,
				// Run-specific flags
				threadsFlag,
				novalidateFlag,
				nosaveFlag,
				binaryFlag,
				// Output flags
				printFlag,
				tuiFlag,
				plotPathFlag,
			},
			Action: handleRunCommand,
		},
	},
}

// CombineApp is the mtrip-combine binary: merge serialized artifacts over
// the same label set and re-run the DP on the summed weights.
var CombineApp = &cli.App{
	Name:      "mtrip-combine",
	Usage:     "Combine two or more mtrip artifacts sharing one label set",
	Version:   version.Version,
	Compiled:  parseDate(version.Date),
	ArgsUsage: "<artifact1> <artifact2> [...]",
	Flags: []cli.Flag{
		threadsFlag,
		printFlag,
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output artifact path (defaults to combined_weights.mtrip, never overwriting)",
		},
	},
	Action: handleCombineCommand,
}

// SuboptimalApp is the mtrip-suboptimal binary: sample distinct trees whose
// score clears a threshold, from a serialized artifact.
var SuboptimalApp = &cli.App{
	Name:      "mtrip-suboptimal",
	Usage:     "Sample near-optimal triplet trees from an mtrip artifact",
	Version:   version.Version,
	Compiled:  parseDate(version.Date),
	ArgsUsage: "<artifact> [output]",
	Flags: []cli.Flag{
		minScoreFlag,
		fractionFlag,
		nTreesFlag,
		burninFlag,
		seedFlag,
		printFlag,
	},
	Action: handleSuboptimalCommand,
}
