// Package tripletweight builds the dense triplet-weight table W: for each
// canonical split (A,B), the total number of rooted triplets xy|z, with x
// and y on one side of the split and z on the other, that some input gene
// tree resolves the same way. Lookup is by a base-3 packing of (A,B) rather
// than a hash map, since every (A,B) pair that can ever appear during the
// DP is known in advance from n alone.
//
// Canonicalization forces A<B numerically, which in turn forces the
// universe's top bit (n-1) to never belong to A: if it did, A would already
// exceed B regardless of any lower bits. That leaves exactly two states for
// the top bit (absent, or in B) and three states (absent, in A, in B) for
// each of the remaining n-1 bits, for a table of size 2*3^(n-1).
package tripletweight

import (
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ChristianF88/mtrip/bipartition"
	"github.com/ChristianF88/mtrip/bitset"
	"github.com/ChristianF88/mtrip/mtriperr"
)

// Size returns the number of entries in a weight table for n labels.
// n must be >= 1.
func Size(n int) int {
	if n <= 0 {
		return 0
	}
	return 2 * pow3(n-1)
}

func pow3(k int) int {
	out := 1
	for i := 0; i < k; i++ {
		out *= 3
	}
	return out
}

// Pack computes the dense table index for canonical split (A,B) of an
// n-label universe: trit i is 1 if label i is in A, 2 if in B, 0 otherwise.
// Because the top trit can never be 1 (the top bit of A|B always lands in B
// under A<B), the raw base-3 word leaves [3^(n-1), 2*3^(n-1)) unused; the
// upper region is shifted down over the gap, compacting the index range to
// [0, 2*3^(n-1)). Behavior is undefined if A and B are not disjoint, if
// either is zero, or if A does not numerically precede B.
func Pack(n int, A, B bitset.Set) int {
	idx := bitset.ToBase3(A) + 2*bitset.ToBase3(B)
	gap := uint64(pow3(n - 1))
	if idx >= 2*gap {
		idx -= gap
	}
	return int(idx)
}

// Unpack is the inverse of Pack: it recovers the canonical split (A,B) from
// a table index. Indexes that do not correspond to a canonical split (the
// table is not fully populated by reachable pairs) decode to whatever pair
// the trit expansion yields, including pairs with an empty side.
func Unpack(n, idx int) (A, B bitset.Set) {
	topPow := pow3(n - 1)
	if idx >= topPow {
		B |= 1 << uint(n-1)
		idx -= topPow
	}
	for i := 0; i < n-1; i++ {
		switch idx % 3 {
		case 1:
			A |= 1 << uint(i)
		case 2:
			B |= 1 << uint(i)
		}
		idx /= 3
	}
	return A, B
}

func combinations2(m int) int64 {
	return int64(m) * int64(m-1) / 2
}

// CommonTriplets counts the rooted triplets resolved identically by the two
// splits (a1,b1) and (a2,b2): a pair of labels kept together on one side of
// both splits, and a third label on the opposite side of both. Both role
// assignments are counted, so the result is symmetric under swapping either
// pair.
func CommonTriplets(a1, b1, a2, b2 bitset.Set) int64 {
	aa := bits.OnesCount32(a1 & a2)
	ab := bits.OnesCount32(a1 & b2)
	ba := bits.OnesCount32(b1 & a2)
	bb := bits.OnesCount32(b1 & b2)

	return combinations2(aa)*int64(bb) +
		combinations2(ab)*int64(ba) +
		combinations2(ba)*int64(ab) +
		combinations2(bb)*int64(aa)
}

// supportGroup is the set of observed splits sharing one support A|B,
// flattened for the hot accumulation loop.
type supportGroup struct {
	support bitset.Set
	a       []bitset.Set
	b       []bitset.Set
	count   []int64
}

// GroupBySupport arranges the observed-bipartition multiset by the support
// of each split. Cherry supports are kept here; Build drops them, since a
// two-label support can never resolve a triplet.
func GroupBySupport(m map[bipartition.Split]int64) map[bitset.Set][]bipartition.Split {
	groups := make(map[bitset.Set][]bipartition.Split)
	for split := range m {
		c := split.A | split.B
		groups[c] = append(groups[c], split)
	}
	return groups
}

// Build constructs the dense weight table for n labels from the observed
// bipartition multiset M. For every subset C with at least three labels and
// every canonical split (A,B) of C, the table entry accumulates
// count * CommonTriplets(A, B, A', B') over every observed split (A',B').
//
// Each resolved triplet of an input tree is separated at exactly one of that
// tree's splits, so the accumulation counts every co-resolved triplet once
// with no support-lattice bookkeeping. The observed splits are still grouped
// by support: a whole group is skipped when its support shares fewer than
// three labels with C, which is what keeps sparse inputs cheap.
//
// Workers claim query subsets C from a shared counter; every C writes a
// disjoint range of W entries, so no synchronization is needed on the table
// itself. threads<=0 defaults to runtime.NumCPU(). progress, if non-nil, is
// called after each completed subset with the number of subsets done and the
// total; it must be safe for concurrent use.
func Build(n int, m map[bipartition.Split]int64, threads int, progress func(done, total uint64)) ([]int64, error) {
	if err := mtriperr.CheckScale(n); err != nil {
		return nil, err
	}
	w := make([]int64, Size(n))
	if n < 3 {
		return w, nil
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = 1
	}

	groups := make([]supportGroup, 0, len(m))
	for support, splits := range GroupBySupport(m) {
		if bitset.PopCount(support) < 3 {
			// A two-label support can never place two labels on one side
			// and a third on the other.
			continue
		}
		g := supportGroup{support: support}
		for _, sp := range splits {
			g.a = append(g.a, sp.A)
			g.b = append(g.b, sp.B)
			g.count = append(g.count, m[sp])
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return w, nil
	}

	universe := bitset.Set(1)<<uint(n) - 1
	total := uint64(universe) + 1

	var next, done atomic.Uint64
	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relevant := make([]*supportGroup, 0, len(groups))
			for {
				c := bitset.Set(next.Add(1) - 1)
				if uint64(c) >= total {
					return
				}
				if bitset.PopCount(c) >= 3 {
					fillSubset(n, c, groups, relevant[:0], w)
				}
				if progress != nil {
					progress(done.Add(1), total)
				}
			}
		}()
	}
	wg.Wait()

	return w, nil
}

// fillSubset writes the weight of every canonical split of c. relevant is a
// scratch slice reused across calls by the owning worker.
func fillSubset(n int, c bitset.Set, groups []supportGroup, relevant []*supportGroup, w []int64) {
	for i := range groups {
		if bitset.PopCount(groups[i].support&c) >= 3 {
			relevant = append(relevant, &groups[i])
		}
	}
	if len(relevant) == 0 {
		return
	}

	for a := range bitset.ProperNonemptySubsets(c) {
		b := c ^ a
		if a >= b {
			continue
		}
		var acc int64
		for _, g := range relevant {
			for j := range g.a {
				acc += g.count[j] * CommonTriplets(a, b, g.a[j], g.b[j])
			}
		}
		if acc < 0 {
			panic(mtriperr.New(mtriperr.KindOverflow,
				fmt.Errorf("triplet weight overflow at split (%d,%d)", a, b)))
		}
		if acc != 0 {
			w[Pack(n, a, b)] = acc
		}
	}
}
