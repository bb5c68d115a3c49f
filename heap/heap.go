// Package heap model the collector side of an evacuation pause: a word
// addressed heap divided into fixed size regions, object headers with
// atomic forwarding, the shared backing allocator that carves fresh
// allocation buffers, and the side tables consulted by workers.
package heap

import "fmt"
import "sync"
import "sync/atomic"

import "github.com/bnclabs/goevac/api"
import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

// PreservedMark an original object header squirreled away when its
// object had to be self-forwarded in place, replayed after the pause.
type PreservedMark struct {
	Obj api.Addr
	Hdr Header
}

// Heap word addressed heap. Construction, region setup and object
// seeding are single threaded; during a pause only the operations
// documented as concurrent are safe across workers.
type Heap struct {
	// 64-bit aligned stats
	allocated int64 // words carved by ParAllocate

	words   []uint64
	regions []*Region

	mu       sync.Mutex // guards targets, freelist
	targets  [api.Numspaces]*Region
	freelist []*Region

	dmu       sync.Mutex
	displaced []uint64

	preserved [][]PreservedMark // per worker, owner append only

	dedup   api.DedupHook
	printer api.RegionPrinter

	// settings
	capacity       int64
	regionwords    int64
	nworkers       int64
	compressedrefs bool
	plabsize       [api.Numspaces]int64
	setts          s.Settings
	logprefix      string

	youngcset int
}

// maximum capacity addressable by narrow, 32-bit reference slots.
const maxNarrowWords = int64(1<<32) - 2

// NewHeap create a new heap. Capacity is fully carved into free
// regions; use ReserveRegion and SetCollectionSet to shape a pause.
func NewHeap(name string, setts s.Settings) *Heap {
	h := &Heap{logprefix: fmt.Sprintf("HEAP [%s]", name)}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	h.readsettings(setts)

	if h.regionwords < api.MinRegionWords {
		panicerr("region.words %v less than %v", h.regionwords, api.MinRegionWords)
	} else if h.capacity < h.regionwords {
		panicerr("capacity %v less than one region %v", h.capacity, h.regionwords)
	} else if h.nworkers < 1 {
		panicerr("gc.workers %v invalid", h.nworkers)
	}
	if h.compressedrefs && h.capacity > maxNarrowWords {
		log.Warnf("%v capacity too large for compressedrefs, using wide refs\n", h.logprefix)
		h.compressedrefs = false
	}

	nregions := int(h.capacity / h.regionwords)
	h.capacity = int64(nregions) * h.regionwords
	h.words = make([]uint64, h.capacity)
	h.regions = make([]*Region, nregions)
	h.freelist = make([]*Region, 0, nregions)
	for i := 0; i < nregions; i++ {
		base := api.Addr(int64(i) * h.regionwords)
		r := &Region{
			index: i, base: base, top: base,
			limit:      base + api.Addr(h.regionwords),
			youngindex: -1,
		}
		h.regions[i] = r
		h.freelist = append(h.freelist, r)
	}
	h.displaced = make([]uint64, 0, 64)
	h.preserved = make([][]PreservedMark, h.nworkers)
	h.setts = setts

	log.Infof(
		"%v started, capacity %v in %v regions of %v words\n",
		h.logprefix, humanize.Bytes(uint64(h.capacity*api.Wordsize)),
		nregions, h.regionwords)
	return h
}

func (h *Heap) readsettings(setts s.Settings) {
	h.capacity = setts.Int64("capacity")
	h.regionwords = setts.Int64("region.words")
	h.nworkers = setts.Int64("gc.workers")
	h.compressedrefs = setts.Bool("compressedrefs")
	h.plabsize[api.Survivor] = setts.Int64("plab.survivorsize")
	h.plabsize[api.Promoted] = setts.Int64("plab.promotedsize")
}

// Workers number of workers this heap was configured for.
func (h *Heap) Workers() int {
	return int(h.nworkers)
}

// CompressedRefs whether reference slots use narrow encoding.
func (h *Heap) CompressedRefs() bool {
	return h.compressedrefs
}

//---- region setup and lookup

// ReserveRegion take a free region and classify it, for seeding the
// heap before a pause. Young regions age their objects on copy.
func (h *Heap) ReserveRegion(space api.Space, young bool) *Region {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.takefree()
	if r == nil {
		panic(api.ErrorOutofMemory)
	}
	r.space, r.young = space, young
	return r
}

// SetCollectionSet mark regions as chosen for reclamation. Young
// regions are indexed in argument order; must be called before workers
// are constructed.
func (h *Heap) SetCollectionSet(regions ...*Region) {
	young := 0
	for _, r := range regions {
		r.incset = true
		if r.young {
			r.youngindex = young
			young++
		}
	}
	h.youngcset = young
}

// YoungCsetLen number of young regions in the collection set.
func (h *Heap) YoungCsetLen() int {
	return h.youngcset
}

// RegionContaining the region covering a word address.
func (h *Heap) RegionContaining(addr api.Addr) *Region {
	return h.regions[int64(addr)/h.regionwords]
}

// CSetState classify an object address: NotInSet outside the
// collection set, otherwise the source region's space class.
func (h *Heap) CSetState(obj api.Addr) api.Space {
	r := h.RegionContaining(obj)
	if r.incset == false {
		return api.NotInSet
	}
	return r.space
}

//---- backing allocator, api.Allocator

// ParAllocate carve size words of space memory, refilling the target
// region from the free list when exhausted. Safe for concurrent use.
func (h *Heap) ParAllocate(space api.Space, size int64, ctx api.AllocContext) (api.Addr, bool) {
	if size > h.regionwords {
		return api.NilAddr, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if t := h.targets[space]; t != nil {
			if addr, ok := t.alloc(size); ok {
				atomic.AddInt64(&h.allocated, size)
				return addr, true
			}
		}
		r := h.takefree()
		if r == nil {
			return api.NilAddr, false
		}
		r.space, r.young = space, space.IsSurvivor()
		h.targets[space] = r
	}
}

// PlabSize preferred allocation-buffer size for space, api.Allocator.
func (h *Heap) PlabSize(space api.Space) int64 {
	return h.plabsize[space]
}

// AllocatedDuringGC total words carved by ParAllocate so far.
func (h *Heap) AllocatedDuringGC() int64 {
	return atomic.LoadInt64(&h.allocated)
}

func (h *Heap) takefree() *Region {
	if len(h.freelist) == 0 {
		return nil
	}
	r := h.freelist[len(h.freelist)-1]
	h.freelist = h.freelist[:len(h.freelist)-1]
	return r
}

//---- object seeding, single threaded

// NewObject allocate an object with nfields reference fields in region
// r, all fields nil. Returns the object address.
func (h *Heap) NewObject(r *Region, nfields int64, age uint) api.Addr {
	addr, ok := r.alloc(1 + nfields)
	if ok == false {
		panic(api.ErrorOutofMemory)
	}
	h.words[addr] = uint64(newHeader(1+nfields, age, false))
	return addr
}

// NewArray allocate a reference array of `length` elements in region
// r, all elements nil.
func (h *Heap) NewArray(r *Region, length int64, age uint) api.Addr {
	addr, ok := r.alloc(2 + length)
	if ok == false {
		panic(api.ErrorOutofMemory)
	}
	h.words[addr] = uint64(newHeader(2+length, age, true))
	h.words[addr+1] = uint64(length)
	return addr
}

//---- headers, concurrent

// Header snapshot the object's header word.
func (h *Heap) Header(obj api.Addr) Header {
	return Header(atomic.LoadUint64(&h.words[obj]))
}

// SetHeader store the object's header word. Only the claim winner may
// call this, after its forwarding CAS succeeded.
func (h *Heap) SetHeader(obj api.Addr, hdr Header) {
	atomic.StoreUint64(&h.words[obj], uint64(hdr))
}

// ForwardToAtomic attempt to claim obj by installing a forwarding
// marker over the snapshotted header. On success returns (to, true).
// On failure a peer forwarded the object first; returns its target.
func (h *Heap) ForwardToAtomic(obj api.Addr, snapshot Header, to api.Addr) (api.Addr, bool) {
	fwd := forwardHeader(to)
	if atomic.CompareAndSwapUint64(&h.words[obj], uint64(snapshot), uint64(fwd)) {
		return to, true
	}
	hdr := h.Header(obj)
	if hdr.IsForwarded() == false {
		panicerr("header %x lost race without forwarding", uint64(hdr))
	}
	return hdr.Forwardee(), false
}

// CopyWords bulk copy object words from source to destination. The
// destination is exclusively owned by the claim winner.
func (h *Heap) CopyWords(from, to api.Addr, n int64) {
	copy(h.words[to:to+api.Addr(n)], h.words[from:from+api.Addr(n)])
}

// PrefetchWrite hint that obj is about to be written. Best effort,
// performance only.
func (h *Heap) PrefetchWrite(obj api.Addr) {
	_ = h.words[obj]
}

//---- displaced headers

// DisplaceHeader move the object's neutral header into the displaced
// table and install a displaced marker, simulating a header overwritten
// by a concurrent mark-preservation mechanism. Setup only.
func (h *Heap) DisplaceHeader(obj api.Addr) {
	h.dmu.Lock()
	defer h.dmu.Unlock()
	hdr := h.Header(obj)
	if hdr.IsForwarded() || hdr.HasDisplaced() {
		panicerr("cannot displace header %x", uint64(hdr))
	}
	idx := int64(len(h.displaced))
	if idx >= int64(1<<24) {
		panic(api.ErrorOutofMemory)
	}
	h.displaced = append(h.displaced, uint64(hdr))
	marker := uint64(hdr)&(hdrSizeMask|hdrArrayBit) |
		uint64(idx)<<hdrDisplShift | hdrTagDisplaced
	h.SetHeader(obj, Header(marker))
}

// DisplacedHeader read the true header of a displaced marker.
func (h *Heap) DisplacedHeader(hdr Header) Header {
	return Header(h.displaced[hdr.displacedIndex()])
}

// SetDisplacedHeader replace the true header behind a displaced
// marker. Only the claim winner may call this.
func (h *Heap) SetDisplacedHeader(hdr Header, nh Header) {
	h.displaced[hdr.displacedIndex()] = uint64(nh)
}

//---- reference slots

// Ref decode the reference held in slot, narrow or wide encoding.
func (h *Heap) Ref(slot api.Addr, narrow bool) api.Addr {
	v := h.words[slot]
	if narrow {
		v &= 0xffffffff
	}
	if v == 0 {
		return api.NilAddr
	}
	return api.Addr(v) - 1
}

// SetRef encode target into slot. Target NilAddr clears the slot.
func (h *Heap) SetRef(slot api.Addr, target api.Addr, narrow bool) {
	var v uint64
	if target != api.NilAddr {
		v = uint64(target) + 1
	}
	if narrow && v > 0xffffffff {
		panicerr("target %v beyond narrow encoding", target)
	}
	h.words[slot] = v
}

// FieldSlot address of the i-th reference slot of obj. For arrays the
// elements follow the length word.
func (h *Heap) FieldSlot(obj api.Addr, i int64) api.Addr {
	if h.Header(obj).IsArray() {
		return obj + 2 + api.Addr(i)
	}
	return obj + 1 + api.Addr(i)
}

// SetField store a reference into the i-th field of obj, in the heap's
// configured encoding.
func (h *Heap) SetField(obj api.Addr, i int64, target api.Addr) {
	h.SetRef(h.FieldSlot(obj, i), target, h.compressedrefs)
}

// Field read the i-th reference field of obj.
func (h *Heap) Field(obj api.Addr, i int64) api.Addr {
	return h.Ref(h.FieldSlot(obj, i), h.compressedrefs)
}

//---- arrays

// ArrayLength read the length word. On an evacuated array destination
// this is the scan progress, the true length stays in the source copy.
func (h *Heap) ArrayLength(obj api.Addr) int64 {
	return int64(h.words[obj+1])
}

// SetArrayLength store the length word.
func (h *Heap) SetArrayLength(obj api.Addr, length int64) {
	h.words[obj+1] = uint64(length)
}

//---- preserved marks

// PreserveMark record the original header of a self-forwarded object,
// keyed by worker so appends never contend.
func (h *Heap) PreserveMark(worker int, obj api.Addr, hdr Header) {
	h.preserved[worker] = append(h.preserved[worker], PreservedMark{obj, hdr})
}

// RestorePreservedMarks replay preserved headers over self-forwarded
// objects after the pause. Returns the number restored.
func (h *Heap) RestorePreservedMarks() int {
	n := 0
	for w := range h.preserved {
		for _, pm := range h.preserved[w] {
			h.SetHeader(pm.Obj, pm.Hdr)
			n++
		}
		h.preserved[w] = h.preserved[w][:0]
	}
	if n > 0 {
		log.Infof("%v restored %v preserved marks\n", h.logprefix, n)
	}
	return n
}

//---- hooks

// SetDedupHook install the optional deduplication collaborator.
func (h *Heap) SetDedupHook(d api.DedupHook) {
	h.dedup = d
}

// DedupHook the installed deduplication collaborator, nil when
// disabled.
func (h *Heap) DedupHook() api.DedupHook {
	return h.dedup
}

// SetRegionPrinter install the region-failure diagnostic hook.
func (h *Heap) SetRegionPrinter(p api.RegionPrinter) {
	h.printer = p
}

// RegionPrinter the installed diagnostic hook, nil when disabled.
func (h *Heap) RegionPrinter() api.RegionPrinter {
	return h.printer
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
