package evac

import "github.com/bnclabs/goevac/api"
import "github.com/bnclabs/goevac/heap"

// Scanner the field-scan collaborator: given an object it discovers
// child references and queues them on its worker. The default scanner
// queues every non-nil reference into the collection set; richer
// collectors plug in a scanner that also maintains remembered sets.
type Scanner interface {
	// SetWorker bind this scanner to its worker. Called once from
	// NewWorker.
	SetWorker(w *Worker)

	// ScanObject discover references in obj, whose neutral header is
	// hdr and whose region is r. For arrays all elements are visited.
	ScanObject(obj api.Addr, hdr heap.Header, r *heap.Region)

	// ScanArrayRange discover references in elements [start, end) of
	// the array at obj.
	ScanArrayRange(obj api.Addr, r *heap.Region, start, end int64)
}

// fieldScanner default Scanner.
type fieldScanner struct {
	w *Worker
}

func (sc *fieldScanner) SetWorker(w *Worker) {
	sc.w = w
}

func (sc *fieldScanner) ScanObject(obj api.Addr, hdr heap.Header, r *heap.Region) {
	if hdr.IsArray() {
		sc.ScanArrayRange(obj, r, 0, sc.w.h.ArrayLength(obj))
		return
	}
	for i := int64(0); i < hdr.Size()-1; i++ {
		sc.visit(sc.w.h.FieldSlot(obj, i))
	}
}

func (sc *fieldScanner) ScanArrayRange(obj api.Addr, r *heap.Region, start, end int64) {
	for i := start; i < end; i++ {
		sc.visit(sc.w.h.FieldSlot(obj, i))
	}
}

func (sc *fieldScanner) visit(slot api.Addr) {
	w := sc.w
	narrow := w.h.CompressedRefs()
	ref := w.h.Ref(slot, narrow)
	if ref == api.NilAddr {
		return
	}
	if w.h.CSetState(ref).InSet() {
		w.refs.Push(slotTask(slot, narrow))
	}
}
