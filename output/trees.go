// Package output writes the results of a run: the optimal-tree list (to a
// file, with a stdout fallback when the file cannot be opened) and the
// optional HTML chart of the DP's per-layer progression.
package output

import (
	"bufio"
	"fmt"
	"os"
)

// WriteTrees writes one ";"-terminated tree per line to path. When print is
// set, the trees are echoed to stdout as well. If the output file cannot be
// created or written, the trees are dumped to stdout instead and the error
// is returned so the caller can set a non-zero exit code knowingly or, as
// the mtrip CLI does, downgrade it to a warning because the data was not
// lost.
func WriteTrees(path string, trees []string, print bool) error {
	writeErr := writeTreeFile(path, trees)
	if writeErr != nil {
		fmt.Printf("Could not write to %s (%v). Outputting to stdout instead.\n", path, writeErr)
		print = true
	}

	if print {
		for _, tree := range trees {
			fmt.Println(tree)
		}
	}
	return writeErr
}

func writeTreeFile(path string, trees []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, tree := range trees {
		if _, err := bw.WriteString(tree + "\n"); err != nil {
			return fmt.Errorf("failed to write tree: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush output file: %w", err)
	}
	return nil
}

// WriteScoredTrees writes pairs of lines per tree: a "#<score>" comment line
// followed by the tree itself, the format produced by mtrip-suboptimal.
func WriteScoredTrees(path string, scores []int64, trees []string, print bool) error {
	lines := make([]string, 0, 2*len(trees))
	for i, tree := range trees {
		lines = append(lines, fmt.Sprintf("#%d", scores[i]), tree)
	}
	return WriteTrees(path, lines, print)
}
