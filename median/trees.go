package median

import (
	"iter"
	"math/bits"

	"github.com/ChristianF88/mtrip/bitset"
	"github.com/ChristianF88/mtrip/pools"
)

// OptimalTrees streams every median triplet tree as a ";"-terminated
// parenthesized expression, one at a time. Splits are canonical (A<B) and
// cherry labels are rendered in ascending bit order, so each distinct tree
// is produced exactly once without any deduplication pass.
//
// Subtree lists are memoized per subset while the enumeration runs and
// dropped as soon as the last split referencing a subset has been consumed,
// so the peak footprint is bounded by the live frontier of the split DAG
// rather than the full cross product.
func (r *Result) OptimalTrees() iter.Seq[string] {
	return func(yield func(string) bool) {
		u := r.Universe()
		if u == 0 {
			return
		}
		if bits.OnesCount32(u) <= 2 {
			e := &enumerator{r: r}
			yield(e.smallTree(u) + ";")
			return
		}

		e := newEnumerator(r)
		e.countRefs(u)
		for _, sp := range r.Best[u] {
			aTrees := e.trees(sp.A)
			bTrees := e.trees(sp.B)
			for _, a := range aTrees {
				for _, b := range bTrees {
					if !yield(renderPair(a, b) + ";") {
						return
					}
				}
			}
			e.release(sp.A)
			e.release(sp.B)
		}
	}
}

// CountOptimalTrees returns the number of median trees without materializing
// them: the product-sum recursion over the maximizing-split DAG.
func (r *Result) CountOptimalTrees() int64 {
	memo := make(map[bitset.Set]int64)
	var count func(c bitset.Set) int64
	count = func(c bitset.Set) int64 {
		if bits.OnesCount32(c) <= 2 {
			return 1
		}
		if v, ok := memo[c]; ok {
			return v
		}
		var total int64
		for _, sp := range r.Best[c] {
			total += count(sp.A) * count(sp.B)
		}
		memo[c] = total
		return total
	}
	if r.Universe() == 0 {
		return 0
	}
	return count(r.Universe())
}

// enumerator materializes subtree lists bottom-up, reference-counted by the
// number of maximizing splits that still need each subset.
type enumerator struct {
	r    *Result
	memo map[bitset.Set][]string
	refs map[bitset.Set]int
}

func newEnumerator(r *Result) *enumerator {
	return &enumerator{
		r:    r,
		memo: make(map[bitset.Set][]string),
		refs: make(map[bitset.Set]int),
	}
}

// countRefs records, for every subset reachable from c through the
// maximizing-split DAG, how many split sides point at it.
func (e *enumerator) countRefs(c bitset.Set) {
	if bits.OnesCount32(c) <= 2 {
		return
	}
	for _, sp := range e.r.Best[c] {
		for _, child := range [2]bitset.Set{sp.A, sp.B} {
			e.refs[child]++
			if e.refs[child] == 1 {
				e.countRefs(child)
			}
		}
	}
}

// trees returns every optimal subtree expression on c, memoized.
func (e *enumerator) trees(c bitset.Set) []string {
	if cached, ok := e.memo[c]; ok {
		return cached
	}

	var out []string
	if bits.OnesCount32(c) <= 2 {
		out = []string{e.smallTree(c)}
	} else {
		for _, sp := range e.r.Best[c] {
			aTrees := e.trees(sp.A)
			bTrees := e.trees(sp.B)
			for _, a := range aTrees {
				for _, b := range bTrees {
					out = append(out, renderPair(a, b))
				}
			}
			e.release(sp.A)
			e.release(sp.B)
		}
	}

	e.memo[c] = out
	return out
}

// release consumes one reference to c, dropping its memoized subtree list
// once no pending split needs it.
func (e *enumerator) release(c bitset.Set) {
	e.refs[c]--
	if e.refs[c] <= 0 {
		delete(e.memo, c)
		delete(e.refs, c)
	}
}

// smallTree renders the two base cases: a sole label, or a cherry with its
// labels in ascending bit order.
func (e *enumerator) smallTree(c bitset.Set) string {
	names := e.r.Labels(c)
	if len(names) == 1 {
		return names[0]
	}
	return renderPair(names[0], names[1])
}

func renderPair(a, b string) string {
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
