package evac

import "sync/atomic"

import s "github.com/bnclabs/gosettings"

// WorkQueue per-worker queue of not-yet-processed references. The
// bounded local part is a lock-free deque, owner pushes and pops at the
// bottom while peers steal from the top. The unbounded overflow part is
// owner-only. Push, PopLocal, PopOverflow and IsEmpty are owner
// operations; Steal is peer-initiated through the QueueSet.
type WorkQueue struct {
	bottom int64  // owner writes, peers read
	top    int64  // peers CAS
	elems  []uint64
	mask   int64

	overflow []Task // owner only
	pending  *int64 // shared credit counter, owned by the QueueSet
}

func newWorkQueue(localsize int64, pending *int64) *WorkQueue {
	size := int64(1)
	for size < localsize {
		size <<= 1
	}
	return &WorkQueue{
		elems:   make([]uint64, size),
		mask:    size - 1,
		pending: pending,
	}
}

// Push a task, into local space when there is room, else overflow.
// Never blocks.
func (q *WorkQueue) Push(t Task) {
	atomic.AddInt64(q.pending, 1)
	b := atomic.LoadInt64(&q.bottom)
	top := atomic.LoadInt64(&q.top)
	if b-top >= int64(len(q.elems)) {
		q.overflow = append(q.overflow, t)
		return
	}
	atomic.StoreUint64(&q.elems[b&q.mask], uint64(t))
	atomic.StoreInt64(&q.bottom, b+1)
}

// PopLocal take the most recently pushed local task. Returns false
// when the local part is empty.
func (q *WorkQueue) PopLocal() (Task, bool) {
	b := atomic.LoadInt64(&q.bottom) - 1
	atomic.StoreInt64(&q.bottom, b)
	top := atomic.LoadInt64(&q.top)
	if b < top {
		// empty, restore bottom
		atomic.StoreInt64(&q.bottom, top)
		return 0, false
	}
	t := Task(atomic.LoadUint64(&q.elems[b&q.mask]))
	if b > top {
		return t, true
	}
	// last element, settle the race with stealers through top
	won := atomic.CompareAndSwapInt64(&q.top, top, top+1)
	atomic.StoreInt64(&q.bottom, top+1)
	if won == false {
		return 0, false
	}
	return t, true
}

// PopOverflow take the oldest overflowed task. Returns false when the
// overflow part is empty.
func (q *WorkQueue) PopOverflow() (Task, bool) {
	if len(q.overflow) == 0 {
		return 0, false
	}
	t := q.overflow[0]
	q.overflow = q.overflow[1:]
	return t, true
}

// Size estimate of stealable local tasks, safe to call from peers.
func (q *WorkQueue) Size() int64 {
	b := atomic.LoadInt64(&q.bottom)
	top := atomic.LoadInt64(&q.top)
	if b < top {
		return 0
	}
	return b - top
}

// IsEmpty whether both the local and overflow parts are drained. Does
// not account for peers in the middle of a steal.
func (q *WorkQueue) IsEmpty() bool {
	return q.Size() == 0 && len(q.overflow) == 0
}

func (q *WorkQueue) steal() (Task, bool) {
	top := atomic.LoadInt64(&q.top)
	b := atomic.LoadInt64(&q.bottom)
	if b-top <= 0 {
		return 0, false
	}
	t := Task(atomic.LoadUint64(&q.elems[top&q.mask]))
	if atomic.CompareAndSwapInt64(&q.top, top, top+1) == false {
		return 0, false
	}
	return t, true
}

// QueueSet the work queues of all workers in a pause, plus the shared
// outstanding-task credit counter backing termination detection. Every
// Push credits the counter, every completed dispatch debits it; the
// pass is over when it reaches zero.
type QueueSet struct {
	pending int64
	queues  []*WorkQueue
}

// NewQueueSet create one work queue per worker. Settings from
// Defaultsettings(), only "queue.localsize" is read.
func NewQueueSet(n int, setts s.Settings) *QueueSet {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	localsize := setts.Int64("queue.localsize")
	qs := &QueueSet{queues: make([]*WorkQueue, n)}
	for i := 0; i < n; i++ {
		qs.queues[i] = newWorkQueue(localsize, &qs.pending)
	}
	return qs
}

// Queue the work queue owned by worker i.
func (qs *QueueSet) Queue(i int) *WorkQueue {
	return qs.queues[i]
}

// TasksPending outstanding-task credit count: queued anywhere or held
// in a worker's hand.
func (qs *QueueSet) TasksPending() int64 {
	return atomic.LoadInt64(&qs.pending)
}

// StealableTasks estimate of tasks sitting in local queues.
func (qs *QueueSet) StealableTasks() int64 {
	n := int64(0)
	for _, q := range qs.queues {
		n += q.Size()
	}
	return n
}

// Steal try to take a task from a peer of worker `self`. Victims are
// picked best-of-2 with a Park-Miller sequence seeded per worker.
// Gives up after 2*N consecutive failures.
func (qs *QueueSet) Steal(self int, seed *uint32) (Task, bool) {
	n := len(qs.queues)
	if n < 2 {
		return 0, false
	}
	for attempt := 0; attempt < 2*n; attempt++ {
		k1 := int(nextrand(seed)) % n
		k2 := int(nextrand(seed)) % n
		if k1 == self {
			k1 = k2
		}
		if k2 == self || qs.queues[k1].Size() >= qs.queues[k2].Size() {
			k2 = k1
		}
		if k2 == self {
			continue
		}
		if t, ok := qs.queues[k2].steal(); ok {
			return t, true
		}
	}
	return 0, false
}

func (qs *QueueSet) taskDone() {
	atomic.AddInt64(&qs.pending, -1)
}

// Park-Miller minimal standard generator.
func nextrand(seed *uint32) uint32 {
	next := uint64(*seed) * 16807 % 2147483647
	if next == 0 {
		next = 17
	}
	*seed = uint32(next)
	return uint32(next)
}
