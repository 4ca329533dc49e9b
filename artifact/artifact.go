// Package artifact persists a finished run so the DP tables can be reused
// without recomputation: by mtrip itself (--binary), by mtrip-combine to
// merge runs over the same label set, and by mtrip-suboptimal to sample
// near-optimal trees. The on-disk format is a fixed magic token followed by
// a gob-encoded payload; the token is checked before the decoder ever runs,
// so a foreign file fails fast instead of producing garbage tables. A TOML
// sidecar next to the binary file carries the human-readable run metadata.
package artifact

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ChristianF88/mtrip/bipartition"
	"github.com/ChristianF88/mtrip/mtriperr"
	"github.com/ChristianF88/mtrip/version"
)

// Magic is the leading token of every artifact file.
const Magic = "MTRPv1\n"

// Artifact is the serialized payload: everything a downstream utility needs
// to re-enumerate, combine, or sample without re-running the weight builder.
type Artifact struct {
	Version       string
	InputTrees    []string
	OptimalTrees  []string
	ReverseLabels []string
	W             []int64
	Stack         []int64
	Best          map[uint32][]bipartition.Split
}

// N returns the label-universe size recorded in the artifact.
func (a *Artifact) N() int {
	return len(a.ReverseLabels)
}

// Save writes the artifact to path: magic token first, gob payload after.
func Save(path string, a *Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to create artifact file: %w", err))
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(Magic); err != nil {
		return mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to write artifact magic: %w", err))
	}
	if err := gob.NewEncoder(bw).Encode(a); err != nil {
		return mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to encode artifact: %w", err))
	}
	if err := bw.Flush(); err != nil {
		return mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to flush artifact: %w", err))
	}
	return nil
}

// Load reads an artifact from path, validating the magic token before
// decoding the payload.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to read artifact file: %w", err))
	}
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, mtriperr.New(mtriperr.KindIO, fmt.Errorf("%s does not look like an mtrip artifact (bad magic token)", path))
	}

	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data[len(Magic):])).Decode(&a); err != nil {
		return nil, mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to decode artifact: %w", err))
	}
	return &a, nil
}

// Sidecar is the TOML metadata file written next to an artifact.
type Sidecar struct {
	Magic      string   `toml:"magic"`
	Version    string   `toml:"version"`
	Threads    int      `toml:"threads"`
	CreatedAt  string   `toml:"createdAt"`
	InputFiles []string `toml:"inputFiles"`
}

// SidecarPath returns the conventional sidecar location for an artifact.
func SidecarPath(artifactPath string) string {
	return artifactPath + ".toml"
}

// WriteSidecar writes the metadata sidecar for the artifact at artifactPath.
func WriteSidecar(artifactPath string, sc *Sidecar) error {
	if sc.Magic == "" {
		sc.Magic = Magic
	}
	if sc.Version == "" {
		sc.Version = version.Version
	}
	f, err := os.Create(SidecarPath(artifactPath))
	if err != nil {
		return mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to create sidecar file: %w", err))
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(sc); err != nil {
		return mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to encode sidecar: %w", err))
	}
	return nil
}

// LoadSidecar reads the metadata sidecar for the artifact at artifactPath.
func LoadSidecar(artifactPath string) (*Sidecar, error) {
	var sc Sidecar
	if _, err := toml.DecodeFile(SidecarPath(artifactPath), &sc); err != nil {
		return nil, mtriperr.New(mtriperr.KindIO, fmt.Errorf("failed to read sidecar: %w", err))
	}
	return &sc, nil
}

// Merge element-wise sums the weight tables and concatenates the input trees
// of two or more artifacts sharing one label order. The stack, best table,
// and optimal-tree list of the result are left empty: the caller re-runs the
// DP on the summed weights.
func Merge(artifacts []*Artifact) (*Artifact, error) {
	if len(artifacts) < 2 {
		return nil, fmt.Errorf("need at least two artifacts to combine, got %d", len(artifacts))
	}

	first := artifacts[0]
	for i, a := range artifacts[1:] {
		if !sameLabels(first.ReverseLabels, a.ReverseLabels) {
			return nil, fmt.Errorf("artifact %d has a different label set; combining requires identical reverse_labels in identical order", i+2)
		}
		if len(a.W) != len(first.W) {
			return nil, fmt.Errorf("artifact %d has a weight table of length %d, want %d", i+2, len(a.W), len(first.W))
		}
	}

	merged := &Artifact{
		Version:       version.Version,
		ReverseLabels: append([]string(nil), first.ReverseLabels...),
		W:             make([]int64, len(first.W)),
	}
	for _, a := range artifacts {
		merged.InputTrees = append(merged.InputTrees, a.InputTrees...)
		for i, v := range a.W {
			merged.W[i] += v
		}
	}
	return merged, nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
