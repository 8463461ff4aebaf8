package position

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// normalize strips ANSI sequences and collapses whitespace runs.
func normalize(s string) string {
	return strings.Join(strings.Fields(stripANSI(s)), " ")
}

// isBanner reports whether a normalized message is a known non-room notice.
func isBanner(s string) bool {
	for _, b := range bannerMarkers {
		if strings.Contains(s, b) {
			return true
		}
	}
	return false
}

func plausibleRoomText(normalized string) bool {
	return utf8.RuneCountInString(normalized) >= MinMessageLength && !isBanner(normalized)
}

// wordSet splits s into lowercase words at every rune that is not a letter
// or digit.
func wordSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), notWordRune)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// wordList is wordSet as a sorted slice, used for the per-room index.
func wordList(s string) []string {
	set := wordSet(s)
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// matchText is the form used for similarity: normalized and lowercased.
func matchText(s string) []rune {
	r, _ := cleanWithOffsets(s)
	return r
}

func prefix(r []rune, n int) []rune {
	if len(r) > n {
		return r[:n]
	}
	return r
}
