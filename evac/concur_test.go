package evac

import "math/rand"
import "sync"
import "testing"

import "github.com/bnclabs/goevac/api"
import "github.com/bnclabs/goevac/heap"
import s "github.com/bnclabs/gosettings"

func TestConcurEvacuate(t *testing.T) {
	setts := s.Settings{
		"capacity":          int64(64 * 256),
		"region.words":      int64(256),
		"gc.workers":        int64(4),
		"compressedrefs":    false,
		"plab.survivorsize": int64(64),
		"plab.promotedsize": int64(64),
	}
	h := heap.NewHeap("concur", setts)
	srcA := h.ReserveRegion(api.Survivor, true)
	srcB := h.ReserveRegion(api.Survivor, true)
	srcC := h.ReserveRegion(api.Promoted, false)
	h.SetCollectionSet(srcA, srcB, srcC)
	srcs := []*heap.Region{srcA, srcB, srcC}

	// chained graph with random shared edges, everything reachable
	// from the tail
	n := 150
	rnd := rand.New(rand.NewSource(42))
	objs := make([]api.Addr, n)
	ages := make([]uint, n)
	extra := make([]int, n)
	for i := 0; i < n; i++ {
		ages[i] = uint(rnd.Intn(8))
		objs[i] = h.NewObject(srcs[i%3], 3, ages[i])
		extra[i] = -1
		if i > 0 {
			h.SetField(objs[i], 0, objs[i-1])
			extra[i] = rnd.Intn(i)
			h.SetField(objs[i], 1, objs[extra[i]])
		}
	}
	holderr := h.ReserveRegion(api.NotInSet, false)
	holder := h.NewObject(holderr, 4, 0)
	for j := 0; j < 4; j++ {
		h.SetField(holder, int64(j), objs[n-1-j])
	}

	// small local queues force overflow and steal traffic
	qsetts := s.Settings{"queue.localsize": int64(16)}
	qs := NewQueueSet(4, qsetts)
	term := NewTerminator(qs)
	ws := make([]*Worker, 4)
	for i := range ws {
		ws[i] = NewWorker(h, i, qs, nil, qsetts)
		ws[i].PushRoot(h.FieldSlot(holder, int64(i)))
	}

	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.EvacuateFollowers(term)
		}(w)
	}
	wg.Wait()

	// exactly one canonical copy per object
	to := make([]api.Addr, n)
	seen := map[api.Addr]bool{}
	for i, obj := range objs {
		hdr := h.Header(obj)
		if hdr.IsForwarded() == false {
			t.Fatalf("object %v not forwarded", i)
		}
		to[i] = hdr.Forwardee()
		if seen[to[i]] {
			t.Fatalf("object %v shares a copy", i)
		}
		seen[to[i]] = true
		if h.CSetState(to[i]) != api.NotInSet {
			t.Errorf("copy %v inside collection set", i)
		}
		chdr := h.Header(to[i])
		if chdr.IsForwarded() {
			t.Errorf("copy %v looks forwarded", i)
		}
		if x := chdr.Size(); x != 4 {
			t.Errorf("copy %v expected size %v, got %v", i, 4, x)
		}
	}

	// every edge rewritten to the canonical copy
	for j := 0; j < 4; j++ {
		if x := h.Field(holder, int64(j)); x != to[n-1-j] {
			t.Errorf("root %v expected %v, got %v", j, to[n-1-j], x)
		}
	}
	for i := 1; i < n; i++ {
		if x := h.Field(to[i], 0); x != to[i-1] {
			t.Errorf("chain %v expected %v, got %v", i, to[i-1], x)
		}
		if x := h.Field(to[i], 1); x != to[extra[i]] {
			t.Errorf("edge %v expected %v, got %v", i, to[extra[i]], x)
		}
	}

	// age policy held under contention: young sources below the
	// threshold stay young and re-age, everything else promotes
	for i := range objs {
		fromYoung := srcs[i%3].IsYoung()
		destr := h.RegionContaining(to[i])
		if fromYoung && int64(ages[i]) < 7 {
			if destr.IsYoung() == false {
				t.Errorf("object %v age %v wrongly promoted", i, ages[i])
			}
			if x := h.Header(to[i]).Age(); x != ages[i]+1 {
				t.Errorf("object %v expected age %v, got %v", i, ages[i]+1, x)
			}
		} else if destr.IsYoung() {
			t.Errorf("object %v age %v wrongly kept young", i, ages[i])
		}
	}

	// totals: every object copied exactly once, no in-place retention,
	// allocation fully accounted
	var copied, retained, allocated, surv0, surv12 int64
	global := NewAgeTable()
	for _, w := range ws {
		surv := w.Flush(global)
		surv0 += surv[0]
		surv12 += surv[1] + surv[2]
		copied += w.CopiedWords()
		retained += w.SelfForwardedWords()
		allocated += w.Allocated()
		allocwaste, undowaste := w.Waste()
		if x := w.Allocated(); x != w.CopiedWords()+allocwaste+undowaste {
			t.Errorf("worker unbalanced: %v != %v+%v+%v",
				x, w.CopiedWords(), allocwaste, undowaste)
		}
		if w.TermAttempts() < 1 {
			t.Errorf("expected at least one termination attempt")
		}
	}
	if x := int64(n * 4); copied != x {
		t.Errorf("expected %v copied, got %v", x, copied)
	}
	if retained != 0 {
		t.Errorf("expected no retained words, got %v", retained)
	}
	if allocated != h.AllocatedDuringGC() {
		t.Errorf("expected %v allocated, got %v", h.AllocatedDuringGC(), allocated)
	}
	if x := int64(50 * 4); surv0 != x {
		t.Errorf("expected %v non-young words, got %v", x, surv0)
	}
	if x := int64(100 * 4); surv12 != x {
		t.Errorf("expected %v young words, got %v", x, surv12)
	}
	if qs.TasksPending() != 0 {
		t.Errorf("termination with %v tasks pending", qs.TasksPending())
	}
}

// two workers race the claim on one object with the same stale header
// snapshot; exactly one copies, the other undoes its allocation and
// adopts the winner's destination.
func TestConcurClaimRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		setts := s.Settings{
			"capacity":          int64(16 * 256),
			"region.words":      int64(256),
			"gc.workers":        int64(2),
			"compressedrefs":    false,
			"plab.survivorsize": int64(64),
			"plab.promotedsize": int64(64),
		}
		h := heap.NewHeap("race", setts)
		src := h.ReserveRegion(api.Survivor, true)
		h.SetCollectionSet(src)
		qs := NewQueueSet(2, nil)
		ws := []*Worker{
			NewWorker(h, 0, qs, nil, nil),
			NewWorker(h, 1, qs, nil, nil),
		}

		obj := h.NewObject(src, 3, 0)
		stale := h.Header(obj)

		var wg sync.WaitGroup
		start := make(chan struct{})
		results := make([]api.Addr, 2)
		for j, w := range ws {
			wg.Add(1)
			go func(j int, w *Worker) {
				defer wg.Done()
				<-start
				results[j] = w.CopyToSurvivorSpace(api.Survivor, obj, stale)
			}(j, w)
		}
		close(start)
		wg.Wait()

		if results[0] != results[1] {
			t.Fatalf("diverging destinations %v, %v", results[0], results[1])
		}
		if x := h.Header(obj).Forwardee(); x != results[0] {
			t.Fatalf("expected %v, got %v", results[0], x)
		}
		copied := ws[0].CopiedWords() + ws[1].CopiedWords()
		if copied != 4 {
			t.Fatalf("expected %v copied, got %v", 4, copied)
		}
		_, undo0 := ws[0].Waste()
		_, undo1 := ws[1].Waste()
		if undo0+undo1 != 4 {
			t.Fatalf("expected %v undone, got %v", 4, undo0+undo1)
		}
	}
}
