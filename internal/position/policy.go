package position

// Scoring policy. These values were tuned by hand against live game output;
// they are empirical, not derived. Change them together with the tests.
const (
	// ExitWeight scales the exit overlap ratio (0..1) into points. It dwarfs
	// the one-point-per-word score so that exit layout dominates prose.
	ExitWeight = 200.0

	// KeepWithin keeps candidates scoring at least (1-KeepWithin) * max.
	KeepWithin = 0.2

	// WeakExitRatio is the exit overlap below which the exit heuristic is
	// distrusted and the word vote decides. It also bounds the local search:
	// when the message lists exits and no room near the current one reaches
	// this ratio, or nothing nearby scores at all, the whole world is scored
	// instead. A whole-world result replaces the local one only when it is
	// backed by exits, or when the local pass found nothing.
	WeakExitRatio = 0.5

	// OverrideSimilarity is the full-corpus similarity that replaces the
	// heuristic pick.
	OverrideSimilarity = 0.6

	// StrongSimilarity enables highlighting and strong confidence.
	StrongSimilarity = 0.9

	// StrongExitRatio gives strong confidence on exit evidence alone.
	StrongExitRatio = 0.8

	// MinMessageLength is the shortest normalized message, in characters,
	// considered as a room description.
	MinMessageLength = 40

	// PrefixLength bounds the full-corpus comparison, in characters.
	PrefixLength = 200
)

// bannerMarkers identify login and mail notices that are never rooms.
var bannerMarkers = []string{
	"Welcome back",
	"Gamedriver",
	"LPmud",
	"Reincarnating",
	"posts waiting",
	"Mails waiting",
	"already existing",
}
