package lib

// Cacheline assumed size, in bytes, of a processor cache line.
const Cacheline = int64(64)

// PaddingElems number of int64 padding elements on either side of a
// padded array, enough to cover one cache line.
const PaddingElems = int(Cacheline / 8)

// PaddedInt64s return a zeroed int64 array of length n, with one cache
// line of padding on both ends so that per-worker arrays allocated
// back to back never share a line. `base` keeps the whole allocation
// reachable, `view` is the usable n elements.
func PaddedInt64s(n int) (base, view []int64) {
	if n < 0 {
		panicerr("PaddedInt64s(%v)", n)
	}
	base = make([]int64, PaddingElems+n+PaddingElems)
	view = base[PaddingElems : PaddingElems+n]
	return base, view
}
