package testutil

import (
	"os"
	"strings"
	"testing"
)

// GenerateNewickFile creates a temporary gene-tree file with one Newick
// string per line for testing purposes.
// Returns the file path and a cleanup function.
func GenerateNewickFile(t *testing.T, lines []string) (string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_trees_*.nwk")
	if err != nil {
		t.Fatalf("Failed to create temp Newick file: %v", err)
	}

	var content strings.Builder
	for _, line := range lines {
		content.WriteString(line)
		content.WriteString("\n")
	}

	if _, err := tmpFile.WriteString(content.String()); err != nil {
		t.Fatalf("Failed to write to temp Newick file: %v", err)
	}

	tmpFile.Close()

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	return tmpFile.Name(), cleanup
}

// TempFilePath returns a cross-platform temporary file path
// with the given pattern. Does not create the file.
func TempFilePath(t *testing.T, pattern string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	path := tmpFile.Name()
	tmpFile.Close()
	os.Remove(path) // Remove immediately, just need the path

	return path
}

// TempDirPath returns a cross-platform temporary directory path
func TempDirPath(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
