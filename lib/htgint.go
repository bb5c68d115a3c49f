package lib

import "fmt"
import "strings"

// HistogramInt64 statistical histogram of int64 samples, fixed width
// buckets between a configured range, with one underflow and one
// overflow bucket. Not thread safe.
type HistogramInt64 struct {
	n       int64
	total   int64
	minval  int64
	maxval  int64
	seen    bool
	from    int64
	till    int64
	width   int64
	buckets []int64
}

// NewHistogramInt64 return a new histogram object collecting samples
// between `from` and `till` into buckets of `width`.
func NewHistogramInt64(from, till, width int64) *HistogramInt64 {
	from, till = (from/width)*width, (till/width)*width
	h := &HistogramInt64{from: from, till: till, width: width}
	h.buckets = make([]int64, ((till-from)/width)+2)
	return h
}

// Add a sample to this histogram.
func (h *HistogramInt64) Add(sample int64) {
	h.n, h.total = h.n+1, h.total+sample
	if h.seen == false || sample < h.minval {
		h.minval, h.seen = sample, true
	}
	if sample > h.maxval {
		h.maxval = sample
	}
	switch {
	case sample < h.from:
		h.buckets[0]++
	case sample >= h.till:
		h.buckets[len(h.buckets)-1]++
	default:
		h.buckets[((sample-h.from)/h.width)+1]++
	}
}

// Samples return number of samples added so far.
func (h *HistogramInt64) Samples() int64 {
	return h.n
}

// Total return the sum of all samples.
func (h *HistogramInt64) Total() int64 {
	return h.total
}

// Min return the smallest sample.
func (h *HistogramInt64) Min() int64 {
	return h.minval
}

// Max return the largest sample.
func (h *HistogramInt64) Max() int64 {
	return h.maxval
}

// Mean return the average sample value.
func (h *HistogramInt64) Mean() int64 {
	if h.n == 0 {
		return 0
	}
	return h.total / h.n
}

// Logstring return samples and non-empty buckets in a single line,
// suitable for logging.
func (h *HistogramInt64) Logstring() string {
	ss := make([]string, 0, len(h.buckets))
	ss = append(ss, fmt.Sprintf("samples:%v min:%v max:%v", h.n, h.minval, h.maxval))
	for i, count := range h.buckets {
		if count == 0 {
			continue
		}
		switch i {
		case 0:
			ss = append(ss, fmt.Sprintf("<%v:%v", h.from, count))
		case len(h.buckets) - 1:
			ss = append(ss, fmt.Sprintf(">=%v:%v", h.till, count))
		default:
			from := h.from + int64(i-1)*h.width
			ss = append(ss, fmt.Sprintf("%v:%v", from, count))
		}
	}
	return strings.Join(ss, " ")
}
