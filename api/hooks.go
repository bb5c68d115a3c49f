package api

// DedupHook optional collaborator notified for every successful copy,
// so interned-like data can be queued for deduplication outside the
// pause. Implementations must be safe for concurrent use.
type DedupHook interface {
	// EnqueueFromEvacuation record a freshly copied object.
	EnqueueFromEvacuation(fromYoung, toYoung bool, worker int, obj Addr)
}

// RegionPrinter diagnostic hook, invoked once per region by the first
// worker that flags the region as evacuation-failed.
type RegionPrinter interface {
	EvacFailure(region int)
}
