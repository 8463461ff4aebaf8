package position

import (
	"unicode"
	"unicode/utf8"
)

// directAlignCells is the largest subproblem aligned with a full table;
// bigger ones are split in linear space.
const directAlignCells = 1 << 16

// Range is a half-open byte range [Start, End) of the original message.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// cleanWithOffsets produces the matching form of s (ANSI removed,
// whitespace runs collapsed to one space, trimmed, lowercased) together with
// the byte span each resulting rune came from. A collapsed space maps to the
// first whitespace rune of its run.
func cleanWithOffsets(s string) ([]rune, []Range) {
	ansi := ansiEscape.FindAllStringIndex(s, -1)
	runes := make([]rune, 0, len(s))
	spans := make([]Range, 0, len(s))

	space := Range{Start: -1}
	k := 0
	for i := 0; i < len(s); {
		if k < len(ansi) && i == ansi[k][0] {
			i = ansi[k][1]
			k++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if space.Start < 0 {
				space = Range{Start: i, End: i + size}
			}
			i += size
			continue
		}
		if space.Start >= 0 && len(runes) > 0 {
			runes = append(runes, ' ')
			spans = append(spans, space)
		}
		space.Start = -1
		runes = append(runes, unicode.ToLower(r))
		spans = append(spans, Range{Start: i, End: i + size})
		i += size
	}
	return runes, spans
}

// align returns the indices of a that take part in one longest common
// subsequence of a and b, ascending. Memory stays linear in len(b) for long
// inputs (Hirschberg's divide and conquer).
func align(a, b []rune) []int {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	return alignInto(a, b, 0, make([]int, 0, min(len(a), len(b))))
}

func alignInto(a, b []rune, off int, out []int) []int {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return out
	}
	if m*n <= directAlignCells {
		return alignDirect(a, b, off, out)
	}
	if m == 1 {
		for _, r := range b {
			if r == a[0] {
				return append(out, off)
			}
		}
		return out
	}

	mid := m / 2
	fwd := lcsPrefixRow(a[:mid], b)
	bwd := lcsSuffixRow(a[mid:], b)
	split, best := 0, -1
	for j := 0; j <= n; j++ {
		if v := fwd[j] + bwd[j]; v > best {
			split, best = j, v
		}
	}
	out = alignInto(a[:mid], b[:split], off, out)
	return alignInto(a[mid:], b[split:], off+mid, out)
}

// lcsPrefixRow returns row[j] = LCS(a, b[:j]) for j in 0..len(b).
func lcsPrefixRow(a, b []rune) []int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := range a {
		cur[0] = 0
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev
}

// lcsSuffixRow returns row[j] = LCS(a, b[j:]) for j in 0..len(b).
func lcsSuffixRow(a, b []rune) []int {
	n := len(b)
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for i := len(a) - 1; i >= 0; i-- {
		cur[n] = 0
		for j := n - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				cur[j] = prev[j+1] + 1
			case prev[j] >= cur[j+1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j+1]
			}
		}
		prev, cur = cur, prev
	}
	return prev
}

// alignDirect solves a small subproblem with a full table and appends the
// matched indices of a, shifted by off.
func alignDirect(a, b []rune, off int, out []int) []int {
	m, n := len(a), len(b)
	w := n + 1
	table := make([]int32, (m+1)*w)
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				table[i*w+j] = table[(i-1)*w+j-1] + 1
			case table[(i-1)*w+j] >= table[i*w+j-1]:
				table[i*w+j] = table[(i-1)*w+j]
			default:
				table[i*w+j] = table[i*w+j-1]
			}
		}
	}

	start := len(out)
	for i, j := m, n; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			out = append(out, off+i-1)
			i--
			j--
		case table[(i-1)*w+j] > table[i*w+j-1]:
			i--
		default:
			j--
		}
	}
	for l, r := start, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// highlightRanges aligns the cleaned message with a cleaned description and
// maps the matched characters back onto byte ranges of the original message.
// Adjacent matches merge into one range.
func highlightRanges(original string, desc []rune) []Range {
	clean, spans := cleanWithOffsets(original)
	matched := align(clean, desc)
	if len(matched) == 0 {
		return nil
	}
	var out []Range
	cur := spans[matched[0]]
	for i := 1; i < len(matched); i++ {
		if matched[i] == matched[i-1]+1 {
			cur.End = spans[matched[i]].End
			continue
		}
		out = append(out, cur)
		cur = spans[matched[i]]
	}
	return append(out, cur)
}
