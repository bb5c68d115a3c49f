// Package evac implement the per-worker algorithm of a parallel,
// copying evacuation pause: claim live objects out of collection-set
// regions with a single header compare-and-swap, copy them into
// survivor or promoted space through per-worker allocation buffers,
// and keep all workers busy through a stealable work queue. Degrades
// to in-place self-forwarding when memory runs out, never losing
// reachability.
package evac

import "fmt"
import "time"

import "github.com/bnclabs/goevac/api"
import "github.com/bnclabs/goevac/heap"
import "github.com/bnclabs/goevac/lib"
import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

// FailurePolicy injectable fault policy. When EvacuationShouldFail
// reports true the engine discards a successful allocation and takes
// the evacuation-failure path, exercising undo and self-forwarding
// deterministically.
type FailurePolicy interface {
	EvacuationShouldFail() bool
}

type neverFail struct{}

func (neverFail) EvacuationShouldFail() bool { return false }

// Worker per-worker evacuation state, one instance per worker per
// pause. All methods except construction are owner-only; peers reach
// this worker only through its queue's steal interface.
type Worker struct {
	// 64-bit aligned stats
	copied        int64 // words copied by this worker
	selfforwarded int64 // words retained in place
	termattempts  int64

	h        *heap.Heap
	id       int
	qs       *QueueSet
	refs     *WorkQueue
	pa       *PlabAllocator
	scanner  Scanner
	injector FailurePolicy

	dest [api.Numspaces]api.Space

	ages       *AgeTable
	survbase   []int64
	surviving  []int64 // slot 0 is non-young provenance
	h_copysize *lib.HistogramInt64
	seed       uint32

	start       time.Time
	strongroots time.Duration
	termtime    time.Duration

	// settings
	tenuring  int64
	chunksize int64
	setts     s.Settings
	logprefix string
}

// NewWorker construct worker state for one pause: the collector
// handle, this worker's id, the queue set shared by all workers and
// the reference-processing collaborator, nil for the default field
// scanner. Settings from Defaultsettings().
func NewWorker(h *heap.Heap, id int, qs *QueueSet, rp Scanner, setts s.Settings) *Worker {
	if id < 0 || id >= h.Workers() {
		panicerr("worker id %v, heap configured for %v", id, h.Workers())
	}
	w := &Worker{
		h: h, id: id, qs: qs, refs: qs.Queue(id),
		injector: neverFail{}, seed: 17,
		logprefix: fmt.Sprintf("EVAC [%d]", id),
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	w.tenuring = setts.Int64("tenuring.threshold")
	w.chunksize = setts.Int64("array.chunksize")
	w.pa = NewPlabAllocator(h, setts.Int64("plab.wastepct"))
	w.setts = setts

	if rp == nil {
		rp = &fieldScanner{}
	}
	rp.SetWorker(w)
	w.scanner = rp

	w.dest[api.NotInSet] = api.NotInSet
	// survivors that age out move to promoted space
	w.dest[api.Survivor] = api.Promoted
	w.dest[api.Promoted] = api.Promoted

	w.ages = NewAgeTable()
	// slot 0 tracks surviving words of non-young provenance; padding
	// keeps adjacent workers' arrays off shared cache lines
	w.survbase, w.surviving = lib.PaddedInt64s(1 + h.YoungCsetLen())
	w.h_copysize = lib.NewHistogramInt64(0, 1024, 64)

	w.start = time.Now()
	log.Debugf("%v started, tenuring threshold %v\n", w.logprefix, w.tenuring)
	return w
}

// SetEvacFailureInjector install a fault policy. Call before pushing
// any work; default is never fail.
func (w *Worker) SetEvacFailureInjector(fp FailurePolicy) *Worker {
	w.injector = fp
	return w
}

// PushRoot queue a root reference slot discovered by external
// scanning, in the heap's configured encoding.
func (w *Worker) PushRoot(slot api.Addr) {
	w.refs.Push(slotTask(slot, w.h.CompressedRefs()))
}

// Queue this worker's work queue.
func (w *Worker) Queue() *WorkQueue {
	return w.refs
}

//---- dispatch

// TrimQueue drain local and overflow parts to exhaustion. Overflow is
// drained first, then local, and the loop repeats because processing
// an entry may queue new children. No self-initiated stealing.
func (w *Worker) TrimQueue() {
	for {
		for {
			t, ok := w.refs.PopOverflow()
			if ok == false {
				break
			}
			w.dispatchReference(t)
		}
		for {
			t, ok := w.refs.PopLocal()
			if ok == false {
				break
			}
			w.dispatchReference(t)
		}
		if w.refs.IsEmpty() {
			return
		}
	}
}

// StealAndTrim repeatedly steal a task from a peer and drain the local
// queue, until no peer has stealable work.
func (w *Worker) StealAndTrim() {
	for {
		t, ok := w.qs.Steal(w.id, &w.seed)
		if ok == false {
			return
		}
		w.dispatchReference(t)
		w.TrimQueue()
	}
}

// EvacuateFollowers process queued references until the termination
// protocol declares the pass over. Termination time and attempts are
// accounted on this worker.
func (w *Worker) EvacuateFollowers(term *Terminator) {
	w.TrimQueue()
	for {
		w.StealAndTrim()
		start := time.Now()
		w.termattempts++
		done := term.OfferTermination()
		w.termtime += time.Since(start)
		if done {
			return
		}
	}
}

func (w *Worker) dispatchReference(t Task) {
	w.verifyTask(t)
	if t.isPartial() {
		w.processPartialArray(t.addr())
	} else {
		w.evacuateRef(t.addr(), t.isNarrow())
	}
	w.qs.taskDone()
}

// evacuateRef resolve the reference held in slot and write the
// resolved address back through the slot.
func (w *Worker) evacuateRef(slot api.Addr, narrow bool) {
	obj := w.h.Ref(slot, narrow)
	if obj == api.NilAddr {
		return
	}
	state := w.h.CSetState(obj)
	if state.InSet() == false {
		return
	}
	var to api.Addr
	if hdr := w.h.Header(obj); hdr.IsForwarded() {
		to = hdr.Forwardee()
	} else {
		to = w.CopyToSurvivorSpace(state, obj, hdr)
	}
	w.h.SetRef(slot, to, narrow)
}

// ResolveReference return obj's forwarding target, copying it now if
// no worker has claimed it yet. Objects outside the collection set
// resolve to themselves.
func (w *Worker) ResolveReference(obj api.Addr) api.Addr {
	state := w.h.CSetState(obj)
	if state.InSet() == false {
		return obj
	}
	hdr := w.h.Header(obj)
	if hdr.IsForwarded() {
		return hdr.Forwardee()
	}
	return w.CopyToSurvivorSpace(state, obj, hdr)
}

//---- age policy

// nextState destination class for an object of class state with the
// snapshotted header. Survivors below the tenuring threshold stay
// survivors, everything else follows the destination map. Age is
// reported through ageout.
func (w *Worker) nextState(state api.Space, hdr heap.Header, ageout *uint) api.Space {
	if state.IsSurvivor() {
		if hdr.HasDisplaced() {
			*ageout = w.h.DisplacedHeader(hdr).Age()
		} else {
			*ageout = hdr.Age()
		}
		if int64(*ageout) < w.tenuring {
			return state
		}
	}
	return w.dest[state]
}

// allocateInNextPlab escalation when survivor allocation is exhausted:
// try promoted space directly. On success the tenuring threshold drops
// to zero for the rest of the pass, retrying known-exhausted survivor
// space wastes cycles. If dest was already promoted there is nothing
// left to try.
func (w *Worker) allocateInNextPlab(state api.Space, dest *api.Space, size int64, ctx api.AllocContext) (api.Addr, bool) {
	if dest.IsSurvivor() {
		addr, ok := w.pa.Allocate(api.Promoted, size, ctx)
		if ok == false {
			return api.NilAddr, false
		}
		w.tenuring = 0
		*dest = api.Promoted
		return addr, true
	}
	return api.NilAddr, false
}

//---- copy and forward

// CopyToSurvivorSpace evacuate one unforwarded object: allocate, claim
// it with a single header CAS, copy, fix up metadata and queue the
// children. oldHdr must be snapshotted before any allocation attempt,
// a peer may overwrite the live header at any time. Returns the
// object's canonical destination, whoever won it.
func (w *Worker) CopyToSurvivorSpace(state api.Space, old api.Addr, oldHdr heap.Header) api.Addr {
	size := oldHdr.Size()
	from := w.h.RegionContaining(old)
	// +1 makes the -1 of non-young regions land on slot 0
	youngIndex := from.YoungIndexInCset() + 1
	ctx := from.AllocContext()

	age := uint(0)
	destState := w.nextState(state, oldHdr, &age)
	obj, ok := w.pa.PlabAllocate(destState, size, ctx)
	if ok == false {
		obj, ok = w.pa.AllocateDirectOrNewPlab(destState, size, ctx)
		if ok == false {
			obj, ok = w.allocateInNextPlab(state, &destState, size, ctx)
			if ok == false {
				return w.handleEvacuationFailure(old, oldHdr)
			}
		}
	}

	if w.injector.EvacuationShouldFail() {
		// after all allocation attempts, so the undo path is
		// exercised too
		w.pa.UndoAllocation(destState, obj, size, ctx)
		return w.handleEvacuationFailure(old, oldHdr)
	}

	w.h.PrefetchWrite(obj)

	fwd, won := w.h.ForwardToAtomic(old, oldHdr, obj)
	if won == false {
		w.pa.UndoAllocation(destState, obj, size, ctx)
		return fwd
	}

	w.h.CopyWords(old, obj, size)

	if destState.IsSurvivor() {
		if age < api.MaxAge {
			age++
		}
		if oldHdr.HasDisplaced() {
			// install the header first, otherwise obj looks
			// forwarded while the displaced copy is aged
			w.h.SetHeader(obj, oldHdr)
			aged := w.h.DisplacedHeader(oldHdr).SetAge(age)
			w.h.SetDisplacedHeader(oldHdr, aged)
		} else {
			w.h.SetHeader(obj, oldHdr.SetAge(age))
		}
		w.ages.Add(age, size)
	} else {
		w.h.SetHeader(obj, oldHdr)
	}

	if dedup := w.h.DedupHook(); dedup != nil {
		fromYoung, toYoung := state.IsSurvivor(), destState.IsSurvivor()
		dedup.EnqueueFromEvacuation(fromYoung, toYoung, w.id, obj)
	}

	w.surviving[youngIndex] += size
	w.copied += size
	w.h_copysize.Add(size)

	if oldHdr.IsArray() && w.h.ArrayLength(old) >= w.chunksize {
		// scan later in chunks; progress lives in the destination's
		// length word, the true length stays in the source copy
		w.h.SetArrayLength(obj, 0)
		w.refs.Push(partialTask(old))
	} else {
		to := w.h.RegionContaining(obj)
		w.scanner.ScanObject(obj, w.h.Header(obj), to)
	}
	return obj
}

// processPartialArray scan the next chunk of a large evacuated array,
// re-queueing a continuation while elements remain.
func (w *Worker) processPartialArray(from api.Addr) {
	to := w.h.Header(from).Forwardee()
	length := w.h.ArrayLength(from)
	start := w.h.ArrayLength(to)
	end := start + w.chunksize
	if end < length {
		w.h.SetArrayLength(to, end)
		w.refs.Push(partialTask(from))
	} else {
		end = length
		w.h.SetArrayLength(to, length)
	}
	w.scanner.ScanArrayRange(to, w.h.RegionContaining(to), start, end)
}

//---- evacuation failure

// handleEvacuationFailure retain the object in place when every
// allocation avenue is exhausted: self-forward, flag the region,
// preserve the original header for post-pause restoration and scan
// fields in place so downstream references stay discoverable.
func (w *Worker) handleEvacuationFailure(old api.Addr, oldHdr heap.Header) api.Addr {
	fwd, won := w.h.ForwardToAtomic(old, oldHdr, old)
	if won == false {
		// a peer copied it or won the self-forward
		return fwd
	}
	r := w.h.RegionContaining(old)
	if r.SetEvacuationFailed() {
		if printer := w.h.RegionPrinter(); printer != nil {
			printer.EvacFailure(r.Index())
		}
	}
	w.h.PreserveMark(w.id, old, oldHdr)
	w.selfforwarded += oldHdr.Size()
	w.scanner.ScanObject(old, oldHdr, r)
	return old
}

//---- teardown and accessors

// Flush retire outstanding buffers into waste, merge the age table
// into the central one and return the surviving young words, indexed
// by young region index plus one. Call once at pause end.
func (w *Worker) Flush(global *AgeTable) []int64 {
	w.pa.RetirePlabs()
	if global != nil {
		w.ages.MergeInto(global)
	}
	allocwaste, undowaste := w.pa.Waste()
	log.Infof(
		"%v copied %v, retained %v, waste %v\n",
		w.logprefix,
		humanize.Bytes(uint64(w.copied*api.Wordsize)),
		humanize.Bytes(uint64(w.selfforwarded*api.Wordsize)),
		humanize.Bytes(uint64((allocwaste+undowaste)*api.Wordsize)))
	log.Debugf("%v copy sizes %v\n", w.logprefix, w.h_copysize.Logstring())
	return w.surviving
}

// Waste this worker's allocation and undo waste, in words.
func (w *Worker) Waste() (allocwaste, undowaste int64) {
	return w.pa.Waste()
}

// Allocated words this worker requested from the backing allocator.
func (w *Worker) Allocated() int64 {
	return w.pa.Allocated()
}

// CopiedWords words successfully copied by this worker.
func (w *Worker) CopiedWords() int64 {
	return w.copied
}

// SelfForwardedWords words retained in place by this worker.
func (w *Worker) SelfForwardedWords() int64 {
	return w.selfforwarded
}

// AgeTable this worker's age table.
func (w *Worker) AgeTable() *AgeTable {
	return w.ages
}

// SurvivingYoungWords slot 0 counts non-young provenance, slots 1..N
// map to young collection-set regions.
func (w *Worker) SurvivingYoungWords() []int64 {
	return w.surviving
}

// TenuringThreshold current threshold, zero once the worker escalated
// past exhausted survivor space.
func (w *Worker) TenuringThreshold() int64 {
	return w.tenuring
}

// ElapsedTime since this worker was constructed.
func (w *Worker) ElapsedTime() time.Duration {
	return time.Since(w.start)
}

// StrongRootsTime accounted by the phase driver.
func (w *Worker) StrongRootsTime() time.Duration {
	return w.strongroots
}

// SetStrongRootsTime record time spent in root scanning.
func (w *Worker) SetStrongRootsTime(d time.Duration) {
	w.strongroots = d
}

// TermTime accumulated in termination offers.
func (w *Worker) TermTime() time.Duration {
	return w.termtime
}

// SetTermTime overwrite the termination time, for drivers that account
// it themselves.
func (w *Worker) SetTermTime(d time.Duration) {
	w.termtime = d
}

// TermAttempts number of termination offers by this worker.
func (w *Worker) TermAttempts() int64 {
	return w.termattempts
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
