package evac

import s "github.com/bnclabs/gosettings"

// Defaultsettings for evacuation workers and their queues.
//
// "tenuring.threshold" (int64, default: 7)
//		Object age at which survivors promote. Degrades to zero for
//		the rest of the pass when survivor space runs out.
//
// "queue.localsize" (int64, default: 1024)
//		Capacity of the bounded local queue, rounded up to a power
//		of two; beyond it pushes spill to overflow.
//
// "array.chunksize" (int64, default: 50)
//		Arrays at least this long are scanned in chunks of this many
//		elements through re-queued partial tasks.
//
// "plab.wastepct" (int64, default: 10)
//		Oversized allocations go straight to the backing allocator
//		once they would waste more than this percentage of a fresh
//		allocation buffer.
//
func Defaultsettings() s.Settings {
	return s.Settings{
		"tenuring.threshold": int64(7),
		"queue.localsize":    int64(1024),
		"array.chunksize":    int64(50),
		"plab.wastepct":      int64(10),
	}
}
