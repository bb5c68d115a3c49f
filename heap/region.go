package heap

import "sync/atomic"

import "github.com/bnclabs/goevac/api"

// Region is a fixed-size extent of the heap. Collection-set regions are
// evacuation sources; free regions are handed to the backing allocator
// as survivor or promoted destinations.
type Region struct {
	index      int
	base       api.Addr
	limit      api.Addr
	top        api.Addr // next free word, guarded by heap.mu once shared
	space      api.Space
	young      bool
	youngindex int
	incset     bool
	ctx        api.AllocContext
	evacfailed uint32
}

// Index of this region within the heap.
func (r *Region) Index() int {
	return r.index
}

// Base first word address of this region.
func (r *Region) Base() api.Addr {
	return r.base
}

// IsYoung return whether this region belongs to the young generation.
func (r *Region) IsYoung() bool {
	return r.young
}

// YoungIndexInCset position of this region among the young regions of
// the collection set, -1 for non-young regions.
func (r *Region) YoungIndexInCset() int {
	if r.young == false {
		return -1
	}
	return r.youngindex
}

// InCSet return whether this region was chosen for reclamation.
func (r *Region) InCSet() bool {
	return r.incset
}

// AllocContext the allocation context carried by objects from this
// region into the backing allocator.
func (r *Region) AllocContext() api.AllocContext {
	return r.ctx
}

// EvacuationFailed return whether some object in this region could not
// be evacuated this pause.
func (r *Region) EvacuationFailed() bool {
	return atomic.LoadUint32(&r.evacfailed) == 1
}

// SetEvacuationFailed flag this region as evacuation-failed. Returns
// true for the first flagger only.
func (r *Region) SetEvacuationFailed() bool {
	return atomic.CompareAndSwapUint32(&r.evacfailed, 0, 1)
}

// Remaining unallocated words in this region.
func (r *Region) Remaining() int64 {
	return int64(r.limit - r.top)
}

func (r *Region) alloc(size int64) (api.Addr, bool) {
	if int64(r.limit-r.top) < size {
		return api.NilAddr, false
	}
	addr := r.top
	r.top += api.Addr(size)
	return addr, true
}
