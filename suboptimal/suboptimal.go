// Package suboptimal samples distinct full binary trees whose triplet score
// clears a caller-chosen threshold, using the weight and score tables of a
// finished median-tree run. The search walks the split lattice top-down:
// every top-level split whose maximal potential W[A,B]+stack[A]+stack[B]
// reaches the threshold opens a candidate, candidates are refined
// breadth-first until a burn-in quota of viable prefixes is collected, and
// each sampled prefix is then completed by a uniform random walk over the
// still-admissible split combinations.
package suboptimal

import (
	"math/rand"
	"sort"

	"github.com/ChristianF88/mtrip/bipartition"
	"github.com/ChristianF88/mtrip/bitset"
	"github.com/ChristianF88/mtrip/pools"
	"github.com/ChristianF88/mtrip/tripletweight"
)

// Candidate is a (partial or complete) tree in the split-lattice walk: the
// score of the splits fixed so far, the fixed splits keyed by their support,
// and the supports still awaiting a split.
type Candidate struct {
	Score   int64
	Biparts map[bitset.Set]bipartition.Split
	active  []bitset.Set
}

// Params bounds the sampling run. Burnin must be at least NTrees; callers
// that leave it zero get a 4*NTrees default.
type Params struct {
	MinScore int64
	NTrees   int
	Burnin   int
	Seed     int64
}

// searcher carries the tables shared by every step of one Search call.
type searcher struct {
	n        int
	w        []int64
	stack    []int64
	minScore int64
	rng      *rand.Rand
}

// maximalVal is the highest score any completion of the split (a,b) can
// reach: the split's own weight plus the best achievable on both sides.
func (s *searcher) maximalVal(a, b bitset.Set) int64 {
	return s.w[tripletweight.Pack(s.n, a, b)] + s.stack[a] + s.stack[b]
}

// splitsOf lists the canonical splits of x.
func splitsOf(x bitset.Set) []bipartition.Split {
	var out []bipartition.Split
	for a := range bitset.ProperNonemptySubsets(x) {
		b := x ^ a
		if a < b {
			out = append(out, bipartition.Split{A: a, B: b})
		}
	}
	return out
}

// Search returns up to NTrees candidates with Score >= MinScore, sorted by
// descending score. All returned candidates are fully split (no active
// subsets remain). It returns fewer than NTrees candidates only when the
// whole lattice holds fewer viable prefixes than requested.
func Search(n int, w, stack []int64, p Params) []*Candidate {
	if p.Burnin <= 0 {
		p.Burnin = 4 * p.NTrees
	}
	s := &searcher{
		n:        n,
		w:        w,
		stack:    stack,
		minScore: p.MinScore,
		rng:      rand.New(rand.NewSource(p.Seed)),
	}

	universe := bitset.Set(1)<<uint(n) - 1

	var candidates, finished []*Candidate
	for _, sp := range splitsOf(universe) {
		if s.maximalVal(sp.A, sp.B) < p.MinScore {
			continue
		}
		cand := &Candidate{
			Score:   s.w[tripletweight.Pack(n, sp.A, sp.B)],
			Biparts: map[bitset.Set]bipartition.Split{universe: sp},
		}
		for _, x := range [2]bitset.Set{sp.A, sp.B} {
			if bitset.PopCount(x) > 2 {
				cand.active = append(cand.active, x)
			}
		}
		if len(cand.active) > 0 {
			candidates = append(candidates, cand)
		} else {
			finished = append(finished, cand)
		}
	}

	// Burn in: breadth-first refinement until enough viable prefixes exist
	// to draw a sample from.
	for len(candidates) != 0 && len(candidates)+len(finished) < p.Burnin {
		var next []*Candidate
	expansion:
		for _, cand := range candidates {
			for _, combo := range s.viableCombos(cand) {
				child := cand.extend(s, combo)
				if len(child.active) > 0 {
					next = append(next, child)
				} else {
					finished = append(finished, child)
				}
				if len(next)+len(finished) >= p.Burnin {
					break expansion
				}
			}
		}
		candidates = next
	}

	// Draw the sample: everything if scarce, otherwise NTrees uniform picks
	// without replacement. The pooled prefixes pairwise disagree on some
	// fixed split, so their completions are distinct trees.
	pool := append(append([]*Candidate{}, candidates...), finished...)
	var chosen []*Candidate
	if len(pool) < p.NTrees {
		chosen = pool
	} else {
		chosen = make([]*Candidate, 0, p.NTrees)
		for _, i := range s.rng.Perm(len(pool))[:p.NTrees] {
			chosen = append(chosen, pool[i].clone())
		}
	}

	// Every sampled prefix is guaranteed completable; finish each with a
	// random walk over the admissible combinations.
	for _, cand := range chosen {
		for len(cand.active) != 0 {
			combos := s.viableCombos(cand)
			combo := combos[s.rng.Intn(len(combos))]
			applyCombo(s, cand, combo)
		}
	}

	sort.SliceStable(chosen, func(i, j int) bool {
		return chosen[i].Score > chosen[j].Score
	})
	return chosen
}

// viableCombos enumerates every assignment of one split per active subset
// whose maximal potential keeps the candidate at or above the threshold.
func (s *searcher) viableCombos(cand *Candidate) [][]bipartition.Split {
	options := make([][]bipartition.Split, len(cand.active))
	for i, x := range cand.active {
		options[i] = splitsOf(x)
	}

	need := s.minScore - cand.Score
	var out [][]bipartition.Split
	combo := make([]bipartition.Split, len(options))

	var walk func(i int)
	walk = func(i int) {
		if i == len(options) {
			var potential int64
			for _, sp := range combo {
				potential += s.maximalVal(sp.A, sp.B)
			}
			if potential >= need {
				out = append(out, append([]bipartition.Split(nil), combo...))
			}
			return
		}
		for _, sp := range options[i] {
			combo[i] = sp
			walk(i + 1)
		}
	}
	walk(0)
	return out
}

// extend returns a copy of cand with combo's splits fixed.
func (cand *Candidate) extend(s *searcher, combo []bipartition.Split) *Candidate {
	child := cand.clone()
	applyCombo(s, child, combo)
	return child
}

// applyCombo fixes one split per active subset, replacing the active list
// with the newly opened sides.
func applyCombo(s *searcher, cand *Candidate, combo []bipartition.Split) {
	cand.active = nil
	for _, sp := range combo {
		cand.Score += s.w[tripletweight.Pack(s.n, sp.A, sp.B)]
		cand.Biparts[sp.A|sp.B] = sp
		for _, x := range [2]bitset.Set{sp.A, sp.B} {
			if bitset.PopCount(x) > 2 {
				cand.active = append(cand.active, x)
			}
		}
	}
}

func (cand *Candidate) clone() *Candidate {
	biparts := make(map[bitset.Set]bipartition.Split, len(cand.Biparts))
	for k, v := range cand.Biparts {
		biparts[k] = v
	}
	return &Candidate{
		Score:   cand.Score,
		Biparts: biparts,
		active:  append([]bitset.Set(nil), cand.active...),
	}
}

// Render builds the ";"-terminated parenthesized expression of a completed
// candidate over the given label order.
func (cand *Candidate) Render(reverseLabels []string) string {
	universe := bitset.Set(1)<<uint(len(reverseLabels)) - 1
	return renderSubset(universe, reverseLabels, cand.Biparts) + ";"
}

func renderSubset(x bitset.Set, reverseLabels []string, biparts map[bitset.Set]bipartition.Split) string {
	names := labelsOf(x, reverseLabels)
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return joinPair(names[0], names[1])
	}
	sp := biparts[x]
	return joinPair(
		renderSubset(sp.A, reverseLabels, biparts),
		renderSubset(sp.B, reverseLabels, biparts),
	)
}

func labelsOf(x bitset.Set, reverseLabels []string) []string {
	out := make([]string, 0, bitset.PopCount(x))
	for i := 0; i < len(reverseLabels); i++ {
		if x&(1<<uint(i)) != 0 {
			out = append(out, reverseLabels[i])
		}
	}
	return out
}

func joinPair(a, b string) string {
	builder := pools.Pools.GetTreeBuilder()
	builder.WriteByte('(')
	builder.WriteString(a)
	builder.WriteByte(',')
	builder.WriteString(b)
	builder.WriteByte(')')
	s := builder.String()
	pools.Pools.ReturnTreeBuilder(builder)
	return s
}
