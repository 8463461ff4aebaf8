package position

import "math/bits"

// matcher computes LCS lengths against a fixed pattern with the
// bit-vector algorithm of Allison-Dix/Hyyrö: O(len(text) * len(pattern)/64).
// Not safe for concurrent use (scratch is reused).
type matcher struct {
	n       int
	masks   map[rune][]uint64
	scratch []uint64
}

func newMatcher(pattern []rune) *matcher {
	words := (len(pattern) + 63) / 64
	m := &matcher{
		n:       len(pattern),
		masks:   make(map[rune][]uint64),
		scratch: make([]uint64, words),
	}
	for i, r := range pattern {
		mask := m.masks[r]
		if mask == nil {
			mask = make([]uint64, words)
			m.masks[r] = mask
		}
		mask[i/64] |= 1 << (uint(i) % 64)
	}
	return m
}

// lcs returns the length of the longest common subsequence of the pattern and text.
func (m *matcher) lcs(text []rune) int {
	if m.n == 0 || len(text) == 0 {
		return 0
	}
	v := m.scratch
	for i := range v {
		v[i] = ^uint64(0)
	}
	for _, r := range text {
		mask := m.masks[r]
		if mask == nil {
			continue
		}
		var carry uint64
		for i, old := range v {
			sum, c := bits.Add64(old, old&mask[i], carry)
			v[i] = sum | (old &^ mask[i])
			carry = c
		}
	}
	zeros := 0
	for i, w := range v {
		if i == len(v)-1 && m.n%64 != 0 {
			w |= ^uint64(0) << (uint(m.n) % 64)
		}
		zeros += 64 - bits.OnesCount64(w)
	}
	return zeros
}

// ratio is the normalized indel similarity 2*LCS/(len(a)+len(b)) in [0,1],
// the measure python-Levenshtein calls ratio. Two empty inputs are identical.
func (m *matcher) ratio(text []rune) float64 {
	total := m.n + len(text)
	if total == 0 {
		return 1
	}
	return 2 * float64(m.lcs(text)) / float64(total)
}

// similarity is a convenience for one-off comparisons.
func similarity(a, b []rune) float64 {
	return newMatcher(a).ratio(b)
}
