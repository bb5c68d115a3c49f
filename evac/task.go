package evac

import "github.com/bnclabs/goevac/api"

// Task is a queued unit of evacuation work, a single tagged word so
// queues stay flat. It refers either to a reference-holding slot, in
// narrow or wide encoding, or to the source copy of a large array whose
// scan was deferred in chunks.
//
//   tag(1:0) addr(63:2)
//
// tag 00 - wide slot, addr is the slot address.
// tag 01 - narrow slot, addr is the slot address.
// tag 10 - partial array, addr is the from-space object address.
type Task uint64

const (
	taskTagMask    = uint64(0x3)
	taskTagWide    = uint64(0x0)
	taskTagNarrow  = uint64(0x1)
	taskTagPartial = uint64(0x2)
)

func slotTask(slot api.Addr, narrow bool) Task {
	tag := taskTagWide
	if narrow {
		tag = taskTagNarrow
	}
	return Task(uint64(slot)<<2 | tag)
}

func partialTask(from api.Addr) Task {
	return Task(uint64(from)<<2 | taskTagPartial)
}

func (t Task) isPartial() bool {
	return uint64(t)&taskTagMask == taskTagPartial
}

func (t Task) isNarrow() bool {
	return uint64(t)&taskTagMask == taskTagNarrow
}

func (t Task) addr() api.Addr {
	return api.Addr(uint64(t) >> 2)
}
