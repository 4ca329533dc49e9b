package cli

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ChristianF88/mtrip/artifact"
	"github.com/ChristianF88/mtrip/bipartition"
	"github.com/ChristianF88/mtrip/config"
	"github.com/ChristianF88/mtrip/median"
	"github.com/ChristianF88/mtrip/mtriperr"
	"github.com/ChristianF88/mtrip/newick"
	"github.com/ChristianF88/mtrip/output"
	"github.com/ChristianF88/mtrip/suboptimal"
	"github.com/ChristianF88/mtrip/tui"
	"github.com/ChristianF88/mtrip/version"
)

// ============================================================================
// CONFIGURATION STRUCTS
// ============================================================================

// Note: the run command uses config.RunConfig directly; only the suboptimal
// utility needs its own option bundle.

// SuboptimalOptions contains everything mtrip-suboptimal needs for one run
type SuboptimalOptions struct {
	ArtifactPath string
	OutputPath   string
	MinScore     int64
	Fraction     float64
	NTrees       int
	Burnin       int
	Seed         int64
	Print        bool
}

// ============================================================================
// MAIN ENTRY POINTS - These are the only functions that should be called externally
// ============================================================================

// RunMedian is the unified run entry point - flags mode and config mode both
// funnel into it.
func RunMedian(run *config.RunConfig) error {
	tic := time.Now()
	threads := run.EffectiveThreads()
	outFile := run.EffectiveOutput()

	fmt.Println("Input parameters:")
	fmt.Printf("Newick file: %s\n", run.Input)
	if run.NoSave {
		fmt.Println("Output file: outputting to stdout instead.")
	} else {
		fmt.Printf("Output file: %s\n", outFile)
	}
	fmt.Printf("Max threads: %d\n", threads)
	if run.NoValidate {
		fmt.Println("Not validating Newick strings!")
	}
	fmt.Println()

	fmt.Println("Parsing input text file.")
	lines, err := readNewickLines(run.Input)
	if err != nil {
		fmt.Printf("Can't open input file %s for reading. Aborting.\n", run.Input)
		return err
	}
	if !run.NoValidate {
		fmt.Println("* Checking for matching parentheses and semicolon in each GT.")
		if err := validateNewickLines(lines); err != nil {
			return err
		}
	}
	trees, err := parseTrees(lines)
	if err != nil {
		return err
	}

	_, reverse := bipartition.BuildLabelMap(trees)
	n := len(reverse)
	if n >= mtriperr.SoftWarnThreshold {
		fmt.Printf("Warning: attempting to find exact trees with %d tips. The computation might run out of memory, or take an unreasonable amount of time.\n", n)
	}
	if err := mtriperr.CheckScale(n); err != nil {
		return err
	}

	if run.TUI {
		return runMedianTUI(run, trees, lines, threads, outFile)
	}

	var stats []median.LayerStat
	fmt.Println("Finding median trees. This might take a while!")
	res, err := median.Run(trees, threads, consoleHooks(&stats))
	if err != nil {
		return err
	}

	fmt.Printf("Best possible triplet count is %d, out of a maximum of %d.\n",
		res.Optimum(), res.TheoreticalBound())

	medianTrees := collectTrees(res)
	fmt.Println("Done!")

	if !run.NoSave {
		if output.WriteTrees(outFile, medianTrees, run.Print) == nil {
			fmt.Printf("* Wrote all median triplet trees to %s.\n", outFile)
		}
	} else if run.Print {
		fmt.Println()
		for _, tree := range medianTrees {
			fmt.Println(tree)
		}
	}

	if run.PlotPath != "" {
		if err := output.PlotLayerStats(stats, run.PlotPath); err != nil {
			fmt.Printf("Could not generate layer plot: %v\n", err)
		}
	}

	if run.Binary != "" {
		if err := saveArtifact(run, res, lines, medianTrees, threads); err != nil {
			fmt.Printf("Can't write to %s. Aborting serializing the processed data. (%v)\n", run.Binary, err)
		} else {
			fmt.Printf("* Serialized weights to %s.\n", run.Binary)
		}
	}

	fmt.Printf("Finished in %.2f seconds.\n", time.Since(tic).Seconds())
	return nil
}

// RunCombine merges artifacts over the same label set, re-runs the DP on the
// summed weight table, and writes a fresh artifact.
func RunCombine(paths []string, outPath string, threads int, print bool) error {
	fmt.Println("This utility is for combining artifacts produced by mtrip.")

	artifacts := make([]*artifact.Artifact, 0, len(paths))
	for i, p := range paths {
		a, err := artifact.Load(p)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Printf("Adding weight contributions of %s.\n", p)
		}
		artifacts = append(artifacts, a)
	}

	merged, err := artifact.Merge(artifacts)
	if err != nil {
		return err
	}
	n := merged.N()
	if err := mtriperr.CheckScale(n); err != nil {
		return err
	}

	fmt.Println("Computing stack")
	stack, best, err := median.BuildStack(n, merged.W, threads, nil)
	if err != nil {
		return err
	}
	res := &median.Result{
		N:             n,
		ReverseLabels: merged.ReverseLabels,
		W:             merged.W,
		Stack:         stack,
		Best:          best,
		InputCount:    len(merged.InputTrees),
	}

	fmt.Println("Finding the median trees")
	trees := collectTrees(res)

	merged.Version = "combined_" + version.Version
	merged.Stack = stack
	merged.Best = res.BestBySubset()
	merged.OptimalTrees = trees

	if outPath == "" {
		outPath = freshArtifactPath("combined_weights")
	}
	if err := artifact.Save(outPath, merged); err != nil {
		fmt.Println("Failed to write combined artifact.")
		return err
	}
	if err := artifact.WriteSidecar(outPath, &artifact.Sidecar{
		Version:    merged.Version,
		Threads:    threads,
		CreatedAt:  time.Now().Format(time.RFC3339),
		InputFiles: paths,
	}); err != nil {
		fmt.Printf("Could not write sidecar: %v\n", err)
	}
	fmt.Printf("Wrote combined artifact to %s.\n", outPath)

	if print {
		fmt.Println()
		for _, tree := range trees {
			fmt.Println(tree)
		}
	}
	return nil
}

// RunSuboptimal samples trees scoring at least the configured threshold from
// a serialized artifact.
func RunSuboptimal(opts SuboptimalOptions) error {
	fmt.Println("Input parameters:")
	fmt.Printf("Input file  : %s\n", opts.ArtifactPath)
	if opts.OutputPath != "" {
		fmt.Printf("Output file : %s\n", opts.OutputPath)
	} else {
		fmt.Println("Output file : outputting to stdout instead")
		opts.Print = true
	}
	fmt.Printf("Max n trees : %d\n", opts.NTrees)
	if opts.Burnin <= 0 {
		opts.Burnin = 4 * opts.NTrees
	}
	fmt.Printf("Burnin count: %d\n", opts.Burnin)
	fmt.Printf("RNG seed    : %d\n", opts.Seed)

	a, err := artifact.Load(opts.ArtifactPath)
	if err != nil {
		return err
	}
	n := a.N()
	universe := (1 << uint(n)) - 1
	maxScore := a.Stack[universe]
	fmt.Printf("Data for %d species and maximum triplet score %d.\n", n, maxScore)

	minScore := opts.MinScore
	if byFraction := int64(math.Ceil(opts.Fraction * float64(maxScore))); byFraction > minScore {
		minScore = byFraction
	}
	fmt.Printf("* Setting minimum viable tree score to %d (max of -m and -f flags)\n", minScore)

	fmt.Println("Finding trees")
	candidates := suboptimal.Search(n, a.W, a.Stack, suboptimal.Params{
		MinScore: minScore,
		NTrees:   opts.NTrees,
		Burnin:   opts.Burnin,
		Seed:     opts.Seed,
	})
	if len(candidates) < opts.NTrees {
		fmt.Printf("* Could only find %d trees satisfying the constraint (%d requested)\n",
			len(candidates), opts.NTrees)
	}
	fmt.Printf("Found %d trees satisfying the given constraints.\n", len(candidates))

	scores := make([]int64, len(candidates))
	trees := make([]string, len(candidates))
	for i, cand := range candidates {
		scores[i] = cand.Score
		trees[i] = cand.Render(a.ReverseLabels)
	}

	if opts.OutputPath != "" {
		output.WriteScoredTrees(opts.OutputPath, scores, trees, opts.Print)
		return nil
	}
	for i := range trees {
		fmt.Printf("#%d\n%s\n", scores[i], trees[i])
	}
	return nil
}

// ============================================================================
// CORE EXECUTION LOGIC
// ============================================================================

// runMedianTUI runs the pipeline behind the live dashboard: the analysis
// happens in a background goroutine, results and files are written when it
// finishes, and the terminal stays in the TUI until the user quits.
func runMedianTUI(run *config.RunConfig, trees []*newick.Node, lines []inputLine, threads int, outFile string) error {
	app := tui.NewApp(run.Input, threads)

	go func() {
		res, err := median.Run(trees, threads, app.Hooks())
		if err != nil {
			app.ShowError(fmt.Sprintf("Analysis failed: %v", err))
			return
		}

		medianTrees := collectTrees(res)

		if !run.NoSave {
			output.WriteTrees(outFile, medianTrees, false)
		}
		if run.Binary != "" {
			saveArtifact(run, res, lines, medianTrees, threads)
		}

		app.SetComplete(medianTrees, res.Optimum(), res.TheoreticalBound(), int64(len(medianTrees)))
	}()

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// consoleHooks narrates progress on stdout and captures per-layer stats for
// the optional plot.
func consoleHooks(stats *[]median.LayerStat) *median.Hooks {
	var lastPct atomic.Int64
	lastPct.Store(-1)
	return &median.Hooks{
		Phase: func(name string) {
			fmt.Printf("* %s.\n", strings.ToUpper(name[:1])+name[1:])
		},
		Weight: func(done, total uint64) {
			pct := int64(done * 100 / total)
			// Only narrate every 10%, the builder visits 2^n subsets.
			if pct%10 == 0 && lastPct.Swap(pct) != pct {
				fmt.Printf("    %d%% of subsets processed.\n", pct)
			}
		},
		LayerDone: func(stat median.LayerStat) {
			*stats = append(*stats, stat)
			fmt.Printf("    layer k=%d done: best score %d, %d maximizing splits.\n",
				stat.K, stat.BestScore, stat.Ties)
		},
	}
}

// ============================================================================
// HELPER FUNCTIONS - Input reading and artifact plumbing
// ============================================================================

// inputLine is one Newick string with the 1-based line number it came from,
// surviving comment and blank-line filtering for error reporting.
type inputLine struct {
	text string
	num  int
}

// readNewickLines reads one Newick string per line, skipping blank lines and
// "#" comments.
func readNewickLines(path string) ([]inputLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mtriperr.New(mtriperr.KindIO, err)
	}
	defer f.Close()

	var lines []inputLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	num := 0
	for scanner.Scan() {
		num++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, inputLine{text: text, num: num})
	}
	if err := scanner.Err(); err != nil {
		return nil, mtriperr.New(mtriperr.KindIO, err)
	}
	return lines, nil
}

// validateNewickLines runs the cheap pre-parse sanity check: terminal
// semicolon and balanced parenthesis counts, reported with line numbers.
func validateNewickLines(lines []inputLine) error {
	for _, line := range lines {
		if !strings.HasSuffix(line.text, ";") {
			fmt.Printf("Line %d doesn't end with a semicolon! Aborting!\n", line.num)
			return mtriperr.WithLine(mtriperr.KindInputSyntax, line.num,
				fmt.Errorf("missing terminal semicolon"))
		}
		if strings.Count(line.text, "(") != strings.Count(line.text, ")") {
			fmt.Printf("Line %d doesn't have an equal number of left and right brackets! Aborting!\n", line.num)
			return mtriperr.WithLine(mtriperr.KindInputSyntax, line.num,
				fmt.Errorf("unbalanced parentheses"))
		}
	}
	return nil
}

func parseTrees(lines []inputLine) ([]*newick.Node, error) {
	trees := make([]*newick.Node, 0, len(lines))
	for _, line := range lines {
		tree, err := newick.Parse(line.text)
		if err != nil {
			return nil, mtriperr.WithLine(mtriperr.KindInputSyntax, line.num, err)
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

func collectTrees(res *median.Result) []string {
	var trees []string
	for tree := range res.OptimalTrees() {
		trees = append(trees, tree)
	}
	return trees
}

func saveArtifact(run *config.RunConfig, res *median.Result, lines []inputLine, medianTrees []string, threads int) error {
	inputTrees := make([]string, len(lines))
	for i, line := range lines {
		inputTrees[i] = line.text
	}
	a := &artifact.Artifact{
		Version:       version.Version,
		InputTrees:    inputTrees,
		OptimalTrees:  medianTrees,
		ReverseLabels: res.ReverseLabels,
		W:             res.W,
		Stack:         res.Stack,
		Best:          res.BestBySubset(),
	}
	if err := artifact.Save(run.Binary, a); err != nil {
		return err
	}
	return artifact.WriteSidecar(run.Binary, &artifact.Sidecar{
		Threads:    threads,
		CreatedAt:  time.Now().Format(time.RFC3339),
		InputFiles: []string{run.Input},
	})
}

// freshArtifactPath returns base.mtrip, or base_<k>.mtrip for the first k
// that does not collide with an existing file.
func freshArtifactPath(base string) string {
	candidate := base + ".mtrip"
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	for suffix := 1; ; suffix++ {
		candidate = fmt.Sprintf("%s_%d.mtrip", base, suffix)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
