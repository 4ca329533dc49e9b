package artifact

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ChristianF88/mtrip/bipartition"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		Version:       "1.0.0",
		InputTrees:    []string{"((A,B),C);", "((A,C),B);"},
		OptimalTrees:  []string{"((A,B),C);", "(B,(A,C));"},
		ReverseLabels: []string{"A", "B", "C"},
		W:             []int64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0},
		Stack:         []int64{0, 0, 0, 0, 0, 0, 0, 1},
		Best: map[uint32][]bipartition.Split{
			7: {{A: 3, B: 4}, {A: 2, B: 5}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mtrip")
	want := sampleArtifact()
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Version != want.Version {
		t.Errorf("Version = %q, want %q", got.Version, want.Version)
	}
	if !slices.Equal(got.InputTrees, want.InputTrees) {
		t.Errorf("InputTrees = %v, want %v", got.InputTrees, want.InputTrees)
	}
	if !slices.Equal(got.OptimalTrees, want.OptimalTrees) {
		t.Errorf("OptimalTrees = %v, want %v", got.OptimalTrees, want.OptimalTrees)
	}
	if !slices.Equal(got.ReverseLabels, want.ReverseLabels) {
		t.Errorf("ReverseLabels = %v, want %v", got.ReverseLabels, want.ReverseLabels)
	}
	if !slices.Equal(got.W, want.W) {
		t.Errorf("W differs after round trip")
	}
	if !slices.Equal(got.Stack, want.Stack) {
		t.Errorf("Stack differs after round trip")
	}
	if !slices.Equal(got.Best[7], want.Best[7]) {
		t.Errorf("Best[7] = %v, want %v", got.Best[7], want.Best[7])
	}
	if got.N() != 3 {
		t.Errorf("N() = %d, want 3", got.N())
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.mtrip")
	if err := os.WriteFile(path, []byte("definitely not an artifact"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected magic-token error, got nil")
	}
}

func TestLoadRejectsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mtrip")
	if err := os.WriteFile(path, []byte(Magic), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error for magic-only file, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.mtrip")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestMergeSumsWeights(t *testing.T) {
	a := sampleArtifact()
	b := sampleArtifact()
	b.W[13] = 5

	merged, err := Merge([]*Artifact{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := merged.W[13]; got != 6 {
		t.Errorf("merged W[13] = %d, want 6", got)
	}
	if got := merged.W[14]; got != 2 {
		t.Errorf("merged W[14] = %d, want 2", got)
	}
	if got := len(merged.InputTrees); got != 4 {
		t.Errorf("merged input trees = %d, want 4", got)
	}
	if len(merged.Stack) != 0 || len(merged.Best) != 0 {
		t.Error("merge must leave stack and best empty for the caller's DP re-run")
	}
}

func TestMergeRejectsLabelMismatch(t *testing.T) {
	a := sampleArtifact()
	b := sampleArtifact()
	b.ReverseLabels = []string{"A", "C", "B"}

	if _, err := Merge([]*Artifact{a, b}); err == nil {
		t.Fatal("expected label-order mismatch error, got nil")
	}
}

func TestMergeRejectsSingle(t *testing.T) {
	if _, err := Merge([]*Artifact{sampleArtifact()}); err == nil {
		t.Fatal("expected error for a single artifact, got nil")
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mtrip")
	want := &Sidecar{
		Threads:    4,
		CreatedAt:  "2026-08-02T00:00:00Z",
		InputFiles: []string{"trees.nwk"},
	}
	if err := WriteSidecar(path, want); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}

	got, err := LoadSidecar(path)
	if err != nil {
		t.Fatalf("LoadSidecar: %v", err)
	}
	if got.Magic != Magic {
		t.Errorf("sidecar magic = %q, want %q", got.Magic, Magic)
	}
	if got.Threads != 4 || got.CreatedAt != want.CreatedAt {
		t.Errorf("sidecar = %+v, want %+v", got, want)
	}
	if !slices.Equal(got.InputFiles, want.InputFiles) {
		t.Errorf("sidecar input files = %v, want %v", got.InputFiles, want.InputFiles)
	}
}
