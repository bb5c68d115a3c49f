package evac

import "sync"
import "testing"

import "github.com/bnclabs/goevac/api"
import s "github.com/bnclabs/gosettings"

func TestQueuePushPop(t *testing.T) {
	qs := NewQueueSet(1, s.Settings{"queue.localsize": int64(8)})
	q := qs.Queue(0)

	if q.IsEmpty() == false {
		t.Errorf("expected empty queue")
	}
	if _, ok := q.PopLocal(); ok {
		t.Errorf("unexpected pop from empty queue")
	}
	if _, ok := q.PopOverflow(); ok {
		t.Errorf("unexpected overflow pop from empty queue")
	}

	for i := 0; i < 4; i++ {
		q.Push(slotTask(api.Addr(i), false))
	}
	if x := qs.TasksPending(); x != 4 {
		t.Errorf("expected %v, got %v", 4, x)
	}
	// local pop is LIFO
	for i := 3; i >= 0; i-- {
		task, ok := q.PopLocal()
		if ok == false {
			t.Fatalf("expected task")
		}
		if x := task.addr(); x != api.Addr(i) {
			t.Errorf("expected %v, got %v", i, x)
		}
	}
	if q.IsEmpty() == false {
		t.Errorf("expected empty queue")
	}
}

func TestQueueOverflow(t *testing.T) {
	qs := NewQueueSet(1, s.Settings{"queue.localsize": int64(4)})
	q := qs.Queue(0)

	for i := 0; i < 10; i++ {
		q.Push(slotTask(api.Addr(i), false))
	}
	if x := q.Size(); x != 4 {
		t.Errorf("expected %v local tasks, got %v", 4, x)
	}
	// overflow pop is FIFO, oldest spilled entry first
	task, ok := q.PopOverflow()
	if ok == false {
		t.Fatalf("expected overflow task")
	}
	if x := task.addr(); x != api.Addr(4) {
		t.Errorf("expected %v, got %v", 4, x)
	}
	n := 1
	for {
		if _, ok := q.PopOverflow(); ok == false {
			break
		}
		n++
	}
	if n != 6 {
		t.Errorf("expected %v overflow tasks, got %v", 6, n)
	}
	if q.IsEmpty() {
		t.Errorf("local part should still hold tasks")
	}
}

func TestQueueSteal(t *testing.T) {
	qs := NewQueueSet(2, s.Settings{"queue.localsize": int64(64)})
	q := qs.Queue(0)
	for i := 0; i < 8; i++ {
		q.Push(slotTask(api.Addr(i), false))
	}

	seed := uint32(17)
	// thief takes the oldest entry; victim selection is randomized so
	// allow a few rounds of misses
	var task Task
	ok := false
	for attempt := 0; attempt < 100 && ok == false; attempt++ {
		task, ok = qs.Steal(1, &seed)
	}
	if ok == false {
		t.Fatalf("expected steal to succeed")
	}
	if x := task.addr(); x != api.Addr(0) {
		t.Errorf("expected %v, got %v", 0, x)
	}

	// owner emptiness ignores peers, stealable count does not
	if x := qs.StealableTasks(); x != 7 {
		t.Errorf("expected %v, got %v", 7, x)
	}

	// single worker has no victims
	qs1 := NewQueueSet(1, nil)
	if _, ok := qs1.Steal(0, &seed); ok {
		t.Errorf("unexpected steal with no peers")
	}
}

func TestQueueStealConcur(t *testing.T) {
	qs := NewQueueSet(4, s.Settings{"queue.localsize": int64(1024)})
	q := qs.Queue(0)

	repeat := 10000
	for i := 0; i < repeat; i++ {
		q.Push(slotTask(api.Addr(i), false))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := make(map[api.Addr]int)
	take := func(task Task) {
		mu.Lock()
		got[task.addr()]++
		mu.Unlock()
	}

	wg.Add(4)
	for n := 1; n < 4; n++ {
		go func(self int) {
			defer wg.Done()
			seed := uint32(self + 1)
			for {
				task, ok := qs.Steal(self, &seed)
				if ok == false {
					return
				}
				take(task)
			}
		}(n)
	}
	go func() {
		defer wg.Done()
		for {
			task, ok := q.PopLocal()
			if ok == false {
				if task, ok = q.PopOverflow(); ok == false {
					return
				}
			}
			take(task)
		}
	}()
	wg.Wait()

	// every task taken exactly once
	if x := len(got); x != repeat {
		t.Fatalf("expected %v distinct tasks, got %v", repeat, x)
	}
	for addr, count := range got {
		if count != 1 {
			t.Errorf("task %v taken %v times", addr, count)
		}
	}
}
