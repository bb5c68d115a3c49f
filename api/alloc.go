package api

// Allocator interface to the shared backing allocator that carves fresh
// memory for allocation buffers and oversized objects during a pause.
// Implementations are safe for concurrent use by all workers.
type Allocator interface {
	// ParAllocate carve `size` words of `space` memory. Returns false
	// when the heap has no more room for that space class, with no
	// side effect.
	ParAllocate(space Space, size int64, ctx AllocContext) (Addr, bool)

	// PlabSize preferred allocation-buffer size, in words, for space.
	PlabSize(space Space) int64
}
