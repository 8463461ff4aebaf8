package position

import (
	"regexp"
	"strings"

	"github.com/nightfall-go/mapper/internal/data"
)

// exitPatterns are tried in order; the first match wins. The last
// submatch holds the direction list.
var exitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)There (?:are|is) (\w+) (?:obvious )?exits?:\s*([^.]+)`),
	regexp.MustCompile(`(?i)(?:Obvious )?exits?:\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)The path leads ([^.]+)`),
}

var tokenSplit = strings.NewReplacer(" and ", " ", ",", " ")

// parseExits extracts the exit directions announced in a message with ANSI
// removed and line breaks intact. ok is false when no pattern matched or no token was a direction.
func parseExits(text string) (dirs data.DirSet, ok bool) {
	for _, re := range exitPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		list := strings.ToLower(m[len(m)-1])
		for _, tok := range strings.Fields(tokenSplit.Replace(list)) {
			if d, found := data.ParseDirection(tok); found {
				dirs = dirs.Add(d)
			}
		}
		return dirs, dirs != 0
	}
	return 0, false
}
