package evac

import "github.com/bnclabs/goevac/api"

// Plab a bump allocation buffer over one contiguous extent of a
// destination space. Exclusively owned by one worker, no locking on
// the cursor.
type Plab struct {
	bottom api.Addr
	top    api.Addr
	end    api.Addr
}

func newPlab() *Plab {
	return &Plab{}
}

func (p *Plab) reset(addr api.Addr, words int64) {
	p.bottom, p.top, p.end = addr, addr, addr+api.Addr(words)
}

// Allocate bump `size` words off this buffer. Returns false with no
// side effect when the remainder is too small.
func (p *Plab) Allocate(size int64) (api.Addr, bool) {
	if int64(p.end-p.top) < size {
		return api.NilAddr, false
	}
	addr := p.top
	p.top += api.Addr(size)
	return addr, true
}

// Contains whether [addr, addr+size) was carved from this buffer.
func (p *Plab) Contains(addr api.Addr, size int64) bool {
	return addr >= p.bottom && addr+api.Addr(size) <= p.top
}

// Remaining words left in this buffer.
func (p *Plab) Remaining() int64 {
	return int64(p.end - p.top)
}

func (p *Plab) retire() int64 {
	remainder := p.Remaining()
	p.bottom, p.top, p.end = 0, 0, 0
	return remainder
}

// PlabAllocator owns one Plab per destination class and the waste
// accounting for one worker.
type PlabAllocator struct {
	backing api.Allocator
	bufs    [api.Numspaces]*Plab

	// configuration
	plabwords [api.Numspaces]int64
	wastepct  int64

	// accounting, in words
	allocated  int64 // carved from backing, buffers plus direct
	wasted     int64 // discarded buffer remainders
	undowasted int64 // reverted allocations
	retired    bool
}

// NewPlabAllocator create a per-worker allocator on top of the shared
// backing allocator. Buffer sizes come from the backing allocator,
// wastepct bounds the buffer fraction an oversized object may waste
// before it is allocated directly.
func NewPlabAllocator(backing api.Allocator, wastepct int64) *PlabAllocator {
	pa := &PlabAllocator{backing: backing, wastepct: wastepct}
	for _, space := range []api.Space{api.Survivor, api.Promoted} {
		pa.plabwords[space] = backing.PlabSize(space)
		pa.bufs[space] = newPlab()
	}
	return pa
}

// Allocate memory for one object: bump off the active buffer, falling
// back to AllocateDirectOrNewPlab on exhaustion.
func (pa *PlabAllocator) Allocate(space api.Space, size int64, ctx api.AllocContext) (api.Addr, bool) {
	if addr, ok := pa.PlabAllocate(space, size, ctx); ok {
		return addr, true
	}
	return pa.AllocateDirectOrNewPlab(space, size, ctx)
}

// PlabAllocate bump off the active buffer, never refills.
func (pa *PlabAllocator) PlabAllocate(space api.Space, size int64, ctx api.AllocContext) (api.Addr, bool) {
	return pa.bufs[space].Allocate(size)
}

// AllocateDirectOrNewPlab slow path. Oversized requests go straight to
// the backing allocator so a fresh buffer is not wasted on one object;
// otherwise the current buffer's remainder is retired into waste, a
// new buffer is obtained and the bump retried.
func (pa *PlabAllocator) AllocateDirectOrNewPlab(space api.Space, size int64, ctx api.AllocContext) (api.Addr, bool) {
	plabwords := pa.plabwords[space]
	if size*100 >= plabwords*pa.wastepct {
		addr, ok := pa.backing.ParAllocate(space, size, ctx)
		if ok {
			pa.allocated += size
		}
		return addr, ok
	}
	buf := pa.bufs[space]
	pa.wasted += buf.retire()
	addr, ok := pa.backing.ParAllocate(space, plabwords, ctx)
	if ok == false {
		return api.NilAddr, false
	}
	pa.allocated += plabwords
	buf.reset(addr, plabwords)
	return buf.Allocate(size)
}

// UndoAllocation revert the most recent allocation, made redundant by
// losing the copy race or by fault injection. The space is discarded,
// counted as undo waste.
func (pa *PlabAllocator) UndoAllocation(space api.Space, addr api.Addr, size int64, ctx api.AllocContext) {
	pa.undowasted += size
	if pa.bufs[space].Contains(addr, size) {
		return
	}
	// direct allocation, nothing to retract
}

// Waste report discarded remainders and reverted allocations, in
// words, tracked separately.
func (pa *PlabAllocator) Waste() (allocwaste, undowaste int64) {
	allocwaste = pa.wasted
	for _, space := range []api.Space{api.Survivor, api.Promoted} {
		allocwaste += pa.bufs[space].Remaining()
	}
	return allocwaste, pa.undowasted
}

// Allocated total words this worker carved from the backing allocator.
func (pa *PlabAllocator) Allocated() int64 {
	return pa.allocated
}

// RetirePlabs flush outstanding buffers into waste. Called exactly
// once at teardown.
func (pa *PlabAllocator) RetirePlabs() {
	if pa.retired {
		panicerr("plabs already retired")
	}
	pa.retired = true
	for _, space := range []api.Space{api.Survivor, api.Promoted} {
		pa.wasted += pa.bufs[space].retire()
	}
}
