package panodecode

import "math/bits"

// nearestMap maps every destination index i to source index floor(i*src/dst),
// reversed when mirror is set. dst must not exceed src.
func nearestMap(src, dst int, mirror bool) []int {
	m := make([]int, dst)
	for i := range m {
		// i < dst, so the quotient is below src and the high word below dst.
		hi, lo := bits.Mul64(uint64(i), uint64(src))
		q, _ := bits.Div64(hi, lo, uint64(dst))
		s := int(q)
		if mirror {
			s = src - 1 - s
		}
		m[i] = s
	}
	return m
}

// rowTargets returns, for every source row in storage order, the destination row
// it feeds, or -1. Destination height must not exceed source height, so every
// source row feeds at most one destination row.
func rowTargets(src, dst int, flip bool) []int {
	t := make([]int, src)
	for i := range t {
		t[i] = -1
	}
	for y, s := range nearestMap(src, dst, flip) {
		t[s] = y
	}
	return t
}

// clampDecodeSize keeps a requested decode size within (0, source].
func clampDecodeSize(w, h, dw, dh int) (int, int) {
	if dw <= 0 || dw > w {
		dw = w
	}
	if dh <= 0 || dh > h {
		dh = h
	}
	return dw, dh
}
