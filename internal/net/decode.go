package net

import (
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// partialANSI matches an escape sequence cut off at the end of a chunk.
var partialANSI = regexp.MustCompile(`\x1b(?:\[[0-9;]*)?$`)

// cp437ToUTF8 converts CP437 bytes to a UTF-8 string.
// Pure ASCII passes through unchanged. If the decoder fails the bytes are
// read as UTF-8 with invalid sequences replaced by U+FFFD; it never panics.
func cp437ToUTF8(raw []byte) (s string, fallback bool) {
	if len(raw) == 0 {
		return "", false
	}
	// Fast path: if all bytes are ASCII, no conversion needed
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return string(raw), false
	}
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�"), true
	}
	return string(decoded), false
}

// splitPartialANSI separates a trailing unterminated escape sequence from
// text. The held part is prepended to the next decoded chunk.
func splitPartialANSI(text string) (complete, held string) {
	loc := partialANSI.FindStringIndex(text)
	if loc == nil {
		return text, ""
	}
	return text[:loc[0]], text[loc[0]:]
}
