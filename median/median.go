// Package median is the core of mtrip: the bitset-indexed dynamic program
// that turns the triplet-weight table into the score table `stack`, records
// every maximizing split per subset, and reconstructs every median triplet
// tree by backtracking those splits.
//
// The DP fills subsets in increasing-cardinality order. stack[C] is 0 for
// any C with at most two labels; for larger C it is the maximum of
// W[A,B]+stack[A]+stack[B] over every canonical split (A,B) of C. Layers
// are processed with a fork-join barrier between them, so a worker scoring
// C only ever reads stack entries of strictly smaller cardinality that were
// published before the barrier.
package median

import (
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ChristianF88/mtrip/bipartition"
	"github.com/ChristianF88/mtrip/bitset"
	"github.com/ChristianF88/mtrip/mtriperr"
	"github.com/ChristianF88/mtrip/newick"
	"github.com/ChristianF88/mtrip/tripletweight"
)

// LayerStat summarizes one completed cardinality layer of the DP, for
// progress reporting and plotting.
type LayerStat struct {
	K         int   // cardinality of the layer
	Subsets   int   // number of subsets in the layer
	BestScore int64 // maximum stack value reached within the layer
	Ties      int   // total maximizing splits recorded across the layer
}

// Hooks carries optional progress callbacks. Every field may be nil. The
// Weight and Layer callbacks are invoked from worker goroutines and must be
// safe for concurrent use.
type Hooks struct {
	Phase     func(name string)
	Weight    func(done, total uint64)
	Layer     func(k, done, total int)
	LayerDone func(stat LayerStat)
}

func (h *Hooks) phase(name string) {
	if h != nil && h.Phase != nil {
		h.Phase(name)
	}
}

// Result bundles everything the pipeline produces: the label order, the
// triplet-weight table, the DP score table, and the maximizing splits. It is
// what downstream consumers (tree enumeration, serialization, combining,
// suboptimal sampling) operate on.
type Result struct {
	N             int
	ReverseLabels []string
	W             []int64
	Stack         []int64
	Best          [][]bipartition.Split
	InputCount    int
}

// Universe returns the subset code with every label present.
func (r *Result) Universe() bitset.Set {
	return bitset.Set(1)<<uint(r.N) - 1
}

// Optimum returns the globally optimal triplet count, stack[U].
func (r *Result) Optimum() int64 {
	return r.Stack[r.Universe()]
}

// TheoreticalBound returns the count the optimum could not possibly exceed:
// every input tree resolving every triplet, |inputs| * C(n,3). Not sharp
// when inputs are missing species.
func (r *Result) TheoreticalBound() int64 {
	n := int64(r.N)
	return int64(r.InputCount) * n * (n - 1) * (n - 2) / 6
}

// Run executes the full core pipeline on already-parsed gene trees: label
// mapping, bipartition tally, triplet-weight table, and the DP. Tree
// enumeration is exposed lazily through Result.OptimalTrees. threads<=0
// defaults to runtime.NumCPU().
func Run(trees []*newick.Node, threads int, hooks *Hooks) (*Result, error) {
	dict, reverse := bipartition.BuildLabelMap(trees)
	n := len(reverse)
	if err := mtriperr.CheckScale(n); err != nil {
		return nil, err
	}

	hooks.phase("tallying bipartitions")
	m := bipartition.Tally(trees, dict, threads)

	hooks.phase("building triplet-weight table")
	var weightHook func(done, total uint64)
	if hooks != nil {
		weightHook = hooks.Weight
	}
	w, err := tripletweight.Build(n, m, threads, weightHook)
	if err != nil {
		return nil, err
	}

	hooks.phase("filling score table")
	stack, best, err := BuildStack(n, w, threads, hooks)
	if err != nil {
		return nil, err
	}

	return &Result{
		N:             n,
		ReverseLabels: reverse,
		W:             w,
		Stack:         stack,
		Best:          best,
		InputCount:    len(trees),
	}, nil
}

// BuildStack fills the score table and the maximizing-split table for an
// n-label universe over the weight table w. Within a cardinality layer,
// subsets are scored concurrently; a barrier separates consecutive layers.
func BuildStack(n int, w []int64, threads int, hooks *Hooks) ([]int64, [][]bipartition.Split, error) {
	if err := mtriperr.CheckScale(n); err != nil {
		return nil, nil, err
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = 1
	}

	size := 1 << uint(n)
	stack := make([]int64, size)
	best := make([][]bipartition.Split, size)
	universe := bitset.Set(size - 1)

	for k := 3; k <= n; k++ {
		layer := make([]bitset.Set, 0, binomial(n, k))
		for c := range bitset.SubsetsOfCardinality(universe, k) {
			layer = append(layer, c)
		}

		workers := threads
		if workers > len(layer) {
			workers = len(layer)
		}
		chunk := (len(layer) + workers - 1) / workers

		var wg sync.WaitGroup
		var done atomic.Int64
		for start := 0; start < len(layer); start += chunk {
			end := min(start+chunk, len(layer))
			wg.Add(1)
			go func(subsets []bitset.Set) {
				defer wg.Done()
				for _, c := range subsets {
					scoreSubset(n, c, w, stack, best)
					if hooks != nil && hooks.Layer != nil {
						hooks.Layer(k, int(done.Add(1)), len(layer))
					}
				}
			}(layer[start:end])
		}
		wg.Wait()

		if hooks != nil && hooks.LayerDone != nil {
			stat := LayerStat{K: k, Subsets: len(layer)}
			for _, c := range layer {
				if stack[c] > stat.BestScore {
					stat.BestScore = stack[c]
				}
				stat.Ties += len(best[c])
			}
			hooks.LayerDone(stat)
		}
	}

	return stack, best, nil
}

// scoreSubset evaluates every canonical split of c and records the maximum
// and all ties. Ties are kept in discovery order; downstream enumeration is
// order-insensitive.
func scoreSubset(n int, c bitset.Set, w []int64, stack []int64, best [][]bipartition.Split) {
	maxScore := int64(-1)
	var ties []bipartition.Split

	for a := range bitset.ProperNonemptySubsets(c) {
		b := c ^ a
		if a >= b {
			continue
		}
		score := w[tripletweight.Pack(n, a, b)] + stack[a] + stack[b]
		if score < 0 {
			panic(mtriperr.New(mtriperr.KindOverflow,
				fmt.Errorf("score overflow at subset %d, split (%d,%d)", c, a, b)))
		}
		if score > maxScore {
			maxScore = score
			ties = ties[:0]
			ties = append(ties, bipartition.Split{A: a, B: b})
		} else if score == maxScore {
			ties = append(ties, bipartition.Split{A: a, B: b})
		}
	}

	stack[c] = maxScore
	best[c] = ties
}

// BestBySubset converts the dense maximizing-split table to the sparse
// mapping used by the serialized artifact: only subsets that actually carry
// splits appear.
func (r *Result) BestBySubset() map[uint32][]bipartition.Split {
	out := make(map[uint32][]bipartition.Split)
	for c, splits := range r.Best {
		if len(splits) > 0 {
			out[uint32(c)] = splits
		}
	}
	return out
}

// BestFromSubsetMap is the inverse of BestBySubset, rebuilding the dense
// table for a universe of n labels.
func BestFromSubsetMap(n int, m map[uint32][]bipartition.Split) [][]bipartition.Split {
	best := make([][]bipartition.Split, 1<<uint(n))
	for c, splits := range m {
		best[c] = splits
	}
	return best
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	out := 1
	for i := 0; i < k; i++ {
		out = out * (n - i) / (i + 1)
	}
	return out
}

// Labels returns the label names present in x, in ascending bit order.
func (r *Result) Labels(x bitset.Set) []string {
	out := make([]string, 0, bits.OnesCount32(x))
	for i := 0; i < r.N; i++ {
		if x&(1<<uint(i)) != 0 {
			out = append(out, r.ReverseLabels[i])
		}
	}
	return out
}
