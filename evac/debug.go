//go:build debug
// +build debug

package evac

import "github.com/bnclabs/goevac/api"

// verifyTask invariant checks on every dequeued task, debug builds
// only.
func (w *Worker) verifyTask(t Task) {
	if t.isPartial() {
		obj := t.addr()
		if w.h.CSetState(obj).InSet() == false {
			panicerr("partial task %v outside collection set", obj)
		}
		hdr := w.h.Header(obj)
		if hdr.IsForwarded() == false {
			panicerr("partial task %v not forwarded", obj)
		}
		return
	}
	slot := t.addr()
	if slot < 0 {
		panicerr("task slot %v out of range", slot)
	}
	ref := w.h.Ref(slot, t.isNarrow())
	if ref == api.NilAddr {
		return
	}
	if w.h.RegionContaining(ref) == nil {
		panicerr("task ref %v outside heap", ref)
	}
}
