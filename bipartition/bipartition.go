// Package bipartition turns parsed Newick gene trees into the
// observed-bipartition multiset M: for each internal node of each input
// tree, the canonicalized split (A,B) of its descendant leaf set is tallied
// with multiplicity. Polytomies are reduced to the binary splits induced by
// a left-to-right bifurcating contraction.
package bipartition

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ChristianF88/mtrip/bitset"
	"github.com/ChristianF88/mtrip/newick"
	"github.com/ChristianF88/mtrip/pools"
	"github.com/alphadose/haxmap"
)

// Split is a canonical bipartition: A < B, A&B == 0, both non-zero.
type Split struct {
	A, B bitset.Set
}

func pack(a, b bitset.Set) uint64 {
	return uint64(a)<<32 | uint64(b)
}

func unpack(k uint64) Split {
	return Split{A: bitset.Set(k >> 32), B: bitset.Set(k)}
}

// BuildLabelMap assigns a dense integer code 0..n-1 to every distinct leaf
// name seen across trees, in first-seen order. reverse[code] is the label's
// string name.
func BuildLabelMap(trees []*newick.Node) (dict map[string]int, reverse []string) {
	dict = make(map[string]int)
	leaves := pools.Pools.GetStringSlice()
	for _, tree := range trees {
		leaves = tree.Leaves(leaves[:0])
		for _, name := range leaves {
			if _, ok := dict[name]; !ok {
				dict[name] = len(reverse)
				reverse = append(reverse, name)
			}
		}
	}
	pools.Pools.ReturnStringSlice(leaves)
	return dict, reverse
}

// collectSplits recursively computes the subset code of n's descendant leaf
// set, appending every canonical split induced along the way to out. A
// polytomy with k>2 children is folded left-to-right: ((c1,c2),c3),... so
// each fold step contributes one binary split.
func collectSplits(n *newick.Node, dict map[string]int, out *[]Split) bitset.Set {
	if n.IsLeaf() {
		return 1 << uint(dict[n.Name])
	}

	acc := collectSplits(n.Children[0], dict, out)
	for _, child := range n.Children[1:] {
		code := collectSplits(child, dict, out)
		a, b := acc, code
		if a > b {
			a, b = b, a
		}
		*out = append(*out, Split{A: a, B: b})
		acc |= code
	}
	return acc
}

// Splits returns every canonical split induced by tree, given the global
// label dictionary.
func Splits(tree *newick.Node, dict map[string]int) []Split {
	var out []Split
	collectSplits(tree, dict, &out)
	return out
}

// Tally builds the observed-bipartition multiset M across every input tree.
// M is built by concurrent workers over an atomically-updated map: each
// worker computes the splits of its own trees and bumps a per-key
// *atomic.Int64 obtained from a shared haxmap.Map, so concurrent increments
// of the same observed bipartition never race and no worker ever blocks on
// another. threads<=0 defaults to runtime.NumCPU().
func Tally(trees []*newick.Node, dict map[string]int, threads int) map[Split]int64 {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = 1
	}
	if threads > len(trees) {
		threads = len(trees)
	}
	if threads < 1 {
		threads = 1
	}

	counts := haxmap.New[uint64, *atomic.Int64](uintptr(max(16, len(trees))))

	bump := func(sp Split) {
		k := pack(sp.A, sp.B)
		counter, _ := counts.GetOrSet(k, new(atomic.Int64))
		counter.Add(1)
	}

	if threads <= 1 || len(trees) < 30*threads {
		// Small inputs: parallel dispatch overhead would dominate.
		for _, tree := range trees {
			for _, sp := range Splits(tree, dict) {
				bump(sp)
			}
		}
	} else {
		var wg sync.WaitGroup
		chunk := (len(trees) + threads - 1) / threads
		for start := 0; start < len(trees); start += chunk {
			end := min(start+chunk, len(trees))
			wg.Add(1)
			go func(batch []*newick.Node) {
				defer wg.Done()
				for _, tree := range batch {
					for _, sp := range Splits(tree, dict) {
						bump(sp)
					}
				}
			}(trees[start:end])
		}
		wg.Wait()
	}

	out := make(map[Split]int64, counts.Len())
	counts.ForEach(func(k uint64, v *atomic.Int64) bool {
		out[unpack(k)] = v.Load()
		return true
	})
	return out
}
