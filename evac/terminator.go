package evac

import "runtime"

// Terminator detect pass completion across workers. The consensus rule
// is the queue set's outstanding-task credit count: every push credits
// it, every completed dispatch debits it, so zero means no task is
// queued anywhere nor held in any worker's hand. A worker's offer
// returns false as soon as stealable work shows up, true when the
// count reaches zero.
type Terminator struct {
	qs *QueueSet
}

// NewTerminator over the queue set shared by all workers of the pass.
func NewTerminator(qs *QueueSet) *Terminator {
	return &Terminator{qs: qs}
}

// OfferTermination block until the pass is over or work appears.
// Returns true when the pass is over. May be entered and exited
// repeatedly by the same worker.
func (t *Terminator) OfferTermination() bool {
	for {
		if t.qs.TasksPending() == 0 {
			return true
		}
		if t.qs.StealableTasks() > 0 {
			return false
		}
		// tasks are in flight inside other workers
		runtime.Gosched()
	}
}
