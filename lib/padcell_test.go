package lib

import "testing"

func TestPaddedInt64s(t *testing.T) {
	base, view := PaddedInt64s(10)
	if x := len(view); x != 10 {
		t.Errorf("expected %v, got %v", 10, x)
	}
	if x := len(base); x != 10+2*PaddingElems {
		t.Errorf("expected %v, got %v", 10+2*PaddingElems, x)
	}
	for i := range view {
		view[i] = int64(i)
	}
	for i := 0; i < 10; i++ {
		if base[PaddingElems+i] != int64(i) {
			t.Errorf("view not aliased at %v", i)
		}
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		PaddedInt64s(-1)
	}()
}
