package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChristianF88/mtrip/artifact"
	"github.com/ChristianF88/mtrip/config"
	"github.com/ChristianF88/mtrip/testutil"
)

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	return App.Run(append([]string{"mtrip"}, args...))
}

func TestRunMedianEndToEnd(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{
		"((A,B),(C,D));",
		"((A,B),(C,D));",
		"((A,B),(C,D));",
	})
	defer cleanup()
	outPath := filepath.Join(t.TempDir(), "out.nwk")

	if err := runApp(t, "run", input, outPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "((A,B),(C,D));\n" {
		t.Errorf("output = %q, want the unanimous input tree", string(data))
	}
}

func TestRunMedianSkipsComments(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{
		"# a comment line",
		"((A,B),C);",
		"",
		"# another",
		"((A,B),C);",
	})
	defer cleanup()
	outPath := filepath.Join(t.TempDir(), "out.nwk")

	if err := runApp(t, "run", input, outPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "((A,B),C);\n" {
		t.Errorf("output = %q, want the duplicated input tree", string(data))
	}
}

func TestRunMedianRejectsBadLine(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{
		"((A,B),C);",
		"((A,B),C)", // missing semicolon on line 2
	})
	defer cleanup()

	err := runApp(t, "run", input, filepath.Join(t.TempDir(), "out.nwk"))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the offending line", err)
	}
}

func TestRunRequiresInput(t *testing.T) {
	if err := runApp(t, "run"); err == nil {
		t.Fatal("expected error when no input file is given")
	}
}

func TestRunMissingInputFile(t *testing.T) {
	err := runApp(t, "run", filepath.Join(t.TempDir(), "missing.nwk"))
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestNosaveRequiresPrint(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{"(A,B);"})
	defer cleanup()

	if err := runApp(t, "run", "--nosave", input); err == nil {
		t.Fatal("expected error for --nosave without --print")
	}
}

func TestConfigModeRejectsOtherFlags(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{"((A,B),C);"})
	defer cleanup()
	cfgPath := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(cfgPath, []byte("[run]\ninput = \""+input+"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runApp(t, "run", "--config", cfgPath, "--threads", "2"); err == nil {
		t.Fatal("expected error combining --config with --threads")
	}
}

func TestRunConfigMode(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{"((A,B),C);"})
	defer cleanup()
	outPath := filepath.Join(t.TempDir(), "out.nwk")
	cfgPath := filepath.Join(t.TempDir(), "run.toml")
	cfgContent := "[run]\ninput = \"" + input + "\"\noutput = \"" + outPath + "\"\nthreads = 1\n"
	if err := os.WriteFile(cfgPath, []byte(cfgContent), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runApp(t, "run", "--config", cfgPath); err != nil {
		t.Fatalf("config-mode run: %v", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("output file not written: %v", err)
	}
}

func TestCombineEndToEnd(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{
		"((A,B),(C,D));",
		"((A,B),(C,D));",
		"((A,B),(C,D));",
	})
	defer cleanup()
	dir := t.TempDir()

	first := filepath.Join(dir, "first.mtrip")
	second := filepath.Join(dir, "second.mtrip")
	for _, binPath := range []string{first, second} {
		run := &config.RunConfig{
			Input:   input,
			Output:  filepath.Join(dir, "out.nwk"),
			Threads: 1,
			Binary:  binPath,
		}
		if err := RunMedian(run); err != nil {
			t.Fatalf("RunMedian: %v", err)
		}
	}

	combined := filepath.Join(dir, "combined.mtrip")
	if err := RunCombine([]string{first, second}, combined, 1, false); err != nil {
		t.Fatalf("RunCombine: %v", err)
	}

	a, err := artifact.Load(combined)
	if err != nil {
		t.Fatalf("loading combined artifact: %v", err)
	}
	universe := (1 << uint(a.N())) - 1
	if got := a.Stack[universe]; got != 24 {
		t.Errorf("combined optimum = %d, want 24 (twice the single-run 12)", got)
	}
	if len(a.OptimalTrees) != 1 || a.OptimalTrees[0] != "((A,B),(C,D));" {
		t.Errorf("combined optimal trees = %v", a.OptimalTrees)
	}
	if len(a.InputTrees) != 6 {
		t.Errorf("combined input trees = %d, want 6", len(a.InputTrees))
	}
}

func TestSuboptimalEndToEnd(t *testing.T) {
	input, cleanup := testutil.GenerateNewickFile(t, []string{
		"((A,B),C);",
		"((A,C),B);",
	})
	defer cleanup()
	dir := t.TempDir()
	binPath := filepath.Join(dir, "run.mtrip")

	run := &config.RunConfig{
		Input:   input,
		Output:  filepath.Join(dir, "out.nwk"),
		Threads: 1,
		Binary:  binPath,
	}
	if err := RunMedian(run); err != nil {
		t.Fatalf("RunMedian: %v", err)
	}

	subOut := filepath.Join(dir, "sub.nwk")
	err := RunSuboptimal(SuboptimalOptions{
		ArtifactPath: binPath,
		OutputPath:   subOut,
		MinScore:     -1,
		Fraction:     1.0,
		NTrees:       10,
		Burnin:       40,
		Seed:         0,
	})
	if err != nil {
		t.Fatalf("RunSuboptimal: %v", err)
	}

	data, err := os.ReadFile(subOut)
	if err != nil {
		t.Fatalf("reading suboptimal output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (two #score/tree pairs): %v", len(lines), lines)
	}
	if lines[0] != "#1" || lines[2] != "#1" {
		t.Errorf("score lines = %q,%q, want #1,#1", lines[0], lines[2])
	}
}

func TestValidateNewickLines(t *testing.T) {
	tests := []struct {
		name    string
		lines   []inputLine
		wantErr bool
	}{
		{
			name:    "valid",
			lines:   []inputLine{{text: "((A,B),C);", num: 1}},
			wantErr: false,
		},
		{
			name:    "missing semicolon",
			lines:   []inputLine{{text: "((A,B),C)", num: 3}},
			wantErr: true,
		},
		{
			name:    "unbalanced parens",
			lines:   []inputLine{{text: "((A,B),C;", num: 2}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNewickLines(tt.lines)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFreshArtifactPathAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	first := freshArtifactPath("combined_weights")
	if first != "combined_weights.mtrip" {
		t.Fatalf("first path = %q", first)
	}
	if err := os.WriteFile(first, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	second := freshArtifactPath("combined_weights")
	if second != "combined_weights_1.mtrip" {
		t.Fatalf("second path = %q", second)
	}
}
