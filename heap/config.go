package heap

import "runtime"

import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"

// Defaultsettings for heap instance.
//
// "capacity" (int64, default: free-ram/4 in words)
//		Heap capacity in words. The heap is carved into fixed size
//		regions at construction.
//
// "region.words" (int64, default: 65536)
//		Region size in words, must divide capacity and cannot be
//		less than api.MinRegionWords.
//
// "gc.workers" (int64, default: number of cpus)
//		Number of evacuation workers participating in a pause, used
//		to size per-worker side tables.
//
// "compressedrefs" (bool, default: true)
//		Store reference slots in narrow, 32-bit encoding. Disabled
//		automatically when capacity does not fit narrow encoding.
//
// "plab.survivorsize" (int64, default: 4096)
//		Allocation-buffer size, in words, for survivor space.
//
// "plab.promotedsize" (int64, default: 8192)
//		Allocation-buffer size, in words, for promoted space.
//
func Defaultsettings() s.Settings {
	_, _, free := getsysmem()
	capacity := (int64(free) / 8) / 4
	return s.Settings{
		"capacity":          capacity,
		"region.words":      int64(65536),
		"gc.workers":        int64(runtime.NumCPU()),
		"compressedrefs":    true,
		"plab.survivorsize": int64(4096),
		"plab.promotedsize": int64(8192),
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
