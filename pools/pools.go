package pools

import (
	"strings"
	"sync"
)

// NewTreeStringBuilderPool creates a string builder pool optimized for Newick string creation
// Pre-allocates capacity for a typical parenthesized tree over ~16 short labels
func NewTreeStringBuilderPool() *sync.Pool {
	return &sync.Pool{
		New: func() interface{} {
			builder := &strings.Builder{}
			builder.Grow(128) // Pre-allocate for typical tree string
			return builder
		},
	}
}

// GetBuilderFromPool gets a string builder from the pool and resets it
func GetBuilderFromPool(pool *sync.Pool) *strings.Builder {
	builder := pool.Get().(*strings.Builder)
	builder.Reset()
	return builder
}

// ReturnBuilderToPool returns a string builder to the pool
func ReturnBuilderToPool(pool *sync.Pool, builder *strings.Builder) {
	pool.Put(builder)
}

// GlobalPools provides centralized memory pooling for performance optimization
type GlobalPools struct {
	StringSlices sync.Pool
	TreeBuilders sync.Pool
}

// Pools is the global instance of memory pools
var Pools = &GlobalPools{
	StringSlices: sync.Pool{
		New: func() interface{} {
			slice := make([]string, 0, 256)
			return &slice
		},
	},
	TreeBuilders: sync.Pool{
		New: func() interface{} {
			builder := &strings.Builder{}
			builder.Grow(128) // Pre-allocate for tree strings
			return builder
		},
	},
}

// GetStringSlice gets a string slice from the pool and resets it
func (gp *GlobalPools) GetStringSlice() []string {
	slicePtr := gp.StringSlices.Get().(*[]string)
	*slicePtr = (*slicePtr)[:0]
	return *slicePtr
}

// ReturnStringSlice returns a string slice to the pool
func (gp *GlobalPools) ReturnStringSlice(slice []string) {
	if cap(slice) < 2048 { // Prevent memory bloat
		emptySlice := slice[:0]
		gp.StringSlices.Put(&emptySlice)
	}
}

// GetTreeBuilder gets a string builder from the pool for tree rendering
func (gp *GlobalPools) GetTreeBuilder() *strings.Builder {
	builder := gp.TreeBuilders.Get().(*strings.Builder)
	builder.Reset()
	return builder
}

// ReturnTreeBuilder returns a string builder to the pool
func (gp *GlobalPools) ReturnTreeBuilder(builder *strings.Builder) {
	gp.TreeBuilders.Put(builder)
}

// Reset clears all pools (useful for testing)
func (gp *GlobalPools) Reset() {
	gp.StringSlices = sync.Pool{New: gp.StringSlices.New}
	gp.TreeBuilders = sync.Pool{New: gp.TreeBuilders.New}
}
