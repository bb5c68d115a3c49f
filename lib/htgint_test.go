package lib

import "testing"

func TestHistogramInt64(t *testing.T) {
	h := NewHistogramInt64(0, 100, 10)
	for i := int64(-5); i < 120; i++ {
		h.Add(i)
	}
	if x := h.Samples(); x != 125 {
		t.Errorf("expected %v, got %v", 125, x)
	}
	if x := h.Min(); x != -5 {
		t.Errorf("expected %v, got %v", -5, x)
	}
	if x := h.Max(); x != 119 {
		t.Errorf("expected %v, got %v", 119, x)
	}
	if x := h.Mean(); x != 57 {
		t.Errorf("expected %v, got %v", 57, x)
	}
	if s := h.Logstring(); s == "" {
		t.Errorf("unexpected empty logstring")
	}
}

func TestHistogramEmpty(t *testing.T) {
	h := NewHistogramInt64(0, 100, 10)
	if x := h.Mean(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	if x := h.Total(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
}
