package position

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func naiveLCS(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func TestRatioKnownValues(t *testing.T) {
	assert.InDelta(t, 8.0/13.0, similarity([]rune("kitten"), []rune("sitting")), 1e-9)
	assert.Equal(t, 1.0, similarity(nil, nil))
	assert.Equal(t, 0.0, similarity([]rune("abc"), nil))
	assert.Equal(t, 1.0, similarity([]rune("größe"), []rune("größe")))
}

func TestBitParallelMatchesDP(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcde ")
	gen := func(n int) []rune {
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return out
	}
	// lengths straddle the 64-bit word boundaries
	for _, n := range []int{1, 63, 64, 65, 130, 200} {
		for k := 0; k < 20; k++ {
			a, b := gen(n), gen(rng.Intn(250)+1)
			assert.Equal(t, naiveLCS(a, b), newMatcher(a).lcs(b), "n=%d", n)
		}
	}
}

func TestAlignAndOffsets(t *testing.T) {
	runes, spans := cleanWithOffsets("Foo\x1b[31m  Bar\n")
	assert.Equal(t, "foo bar", string(runes))
	assert.Equal(t, Range{Start: 8, End: 9}, spans[3])
	assert.Equal(t, Range{Start: 10, End: 11}, spans[4])

	idx := align([]rune("xaybz"), []rune("ab"))
	assert.Equal(t, []int{1, 3}, idx)

	ranges := highlightRanges("  Hello, World", []rune("hello world"))
	assert.Equal(t, []Range{{Start: 2, End: 7}, {Start: 8, End: 14}}, ranges)
}

func TestAlignLongInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcd ")
	gen := func(n int) []rune {
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return out
	}
	for _, size := range [][2]int{{300, 400}, {1200, 900}, {2500, 2100}} {
		a, b := gen(size[0]), gen(size[1])
		idx := align(a, b)
		assert.Len(t, idx, naiveLCS(a, b), "%v", size)

		// idx must pick a subsequence of a that is also one of b
		j := 0
		for k, i := range idx {
			if k > 0 {
				assert.Greater(t, i, idx[k-1])
			}
			for j < len(b) && b[j] != a[i] {
				j++
			}
			if !assert.Less(t, j, len(b), "%v: index %d not matched", size, i) {
				break
			}
			j++
		}
	}
}
