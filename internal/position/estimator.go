// Package position infers the player's room from server output.
//
// An estimate combines three signals: the exits line of the message
// compared with each room's exits, shared words between the message and the
// room's description, and a whole-text similarity check against every
// description in the world. The estimator abstains rather than guess.
package position

import (
	"fmt"
	"sort"

	"github.com/nightfall-go/mapper/internal/data"
	"go.uber.org/zap"
)

type Confidence int

const (
	None Confidence = iota
	Weak
	Strong
)

func (c Confidence) String() string {
	switch c {
	case None:
		return "none"
	case Weak:
		return "weak"
	case Strong:
		return "strong"
	default:
		return fmt.Sprintf("Confidence(%d)", int(c))
	}
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Method names the step that produced the room.
const (
	MethodExits      = "exits"
	MethodWords      = "words"
	MethodSimilarity = "similarity"
)

// Estimate is the estimator's answer. A nil RoomID means no estimate.
type Estimate struct {
	RoomID     *int       `json:"room_id"`
	Confidence Confidence `json:"confidence"`
	Highlights []Range    `json:"highlights,omitempty"`
	Similarity float64    `json:"similarity"`
	ExitRatio  float64    `json:"exit_ratio"`
	Method     string     `json:"method,omitempty"`
}

// Room returns the estimated room id.
func (e Estimate) Room() (int, bool) {
	if e.RoomID == nil {
		return 0, false
	}
	return *e.RoomID, true
}

// Graph is the part of the world the estimator reads. It must not change
// after NewEstimator.
type Graph interface {
	RoomIDs() []int
	Room(id int) *data.Room
	Neighbors(id int) []int
}

type Options struct {
	// Ignore rejects additional messages after the built-in banner check.
	// It receives the normalized text and must be safe for concurrent use.
	Ignore func(text string) bool
	Log    *zap.Logger
}

// roomIndex is the per-room data precomputed at construction.
type roomIndex struct {
	id       int
	exits    data.DirSet
	words    []string // description + name
	combined []rune   // description + name, matching form
	prefix   []rune   // description, matching form, first PrefixLength runes
	hasDesc  bool
}

// Estimator is stateless between calls and safe for concurrent use.
type Estimator struct {
	graph  Graph
	rooms  []roomIndex // ascending id
	byID   map[int]int
	ignore func(string) bool
	log    *zap.Logger
}

func NewEstimator(g Graph, opts Options) *Estimator {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ids := append([]int(nil), g.RoomIDs()...)
	sort.Ints(ids)

	e := &Estimator{
		graph:  g,
		rooms:  make([]roomIndex, 0, len(ids)),
		byID:   make(map[int]int, len(ids)),
		ignore: opts.Ignore,
		log:    log,
	}
	for _, id := range ids {
		r := g.Room(id)
		if r == nil {
			continue
		}
		combined := r.Description + " " + r.Name
		desc := matchText(r.Description)
		e.byID[id] = len(e.rooms)
		e.rooms = append(e.rooms, roomIndex{
			id:       id,
			exits:    r.ExitDirs(),
			words:    wordList(combined),
			combined: matchText(combined),
			prefix:   prefix(desc, PrefixLength),
			hasDesc:  len(desc) > 0,
		})
	}
	return e
}

type candidate struct {
	idx   int
	ratio float64
	words int
	total float64
}

// Estimate locates msg. current is the last known room, nil when unknown.
// The same input always yields the same output.
func (e *Estimator) Estimate(msg string, current *int) Estimate {
	norm := normalize(msg)
	if !plausibleRoomText(norm) {
		return Estimate{}
	}
	if e.ignore != nil && e.ignore(norm) {
		return Estimate{}
	}

	// Line breaks end a period-less exits line, so parse before collapsing.
	exits, hasExits := parseExits(stripANSI(msg))
	clean := matchText(norm)
	msgWords := wordSet(norm)

	set := e.searchSet(current)
	pick, ratio, method := e.score(set, exits, hasExits, msgWords, clean)
	if len(set) < len(e.rooms) && (pick < 0 || (hasExits && ratio < WeakExitRatio)) {
		all := e.searchSet(nil)
		if gp, gr, gm := e.score(all, exits, hasExits, msgWords, clean); gp >= 0 && (pick < 0 || gm == MethodExits) {
			e.log.Debug("鄰近房間不符，改用全部房間",
				zap.Intp("current", current),
				zap.Int("room", e.rooms[gp].id),
				zap.String("method", gm))
			pick, ratio, method = gp, gr, gm
		}
	}

	// Whole-text check against every description, independent of the search set.
	m := newMatcher(prefix(clean, PrefixLength))
	best, bestIdx, pickSim := -1.0, -1, 0.0
	for i := range e.rooms {
		r := &e.rooms[i]
		if !r.hasDesc {
			continue
		}
		sim := m.ratio(r.prefix)
		if i == pick {
			pickSim = sim
		}
		if sim > best {
			best, bestIdx = sim, i
		}
	}

	final, finalSim := pick, pickSim
	// A pick that ties the best similarity keeps its exit evidence.
	if bestIdx >= 0 && best >= OverrideSimilarity && pickSim < best {
		if pick >= 0 {
			e.log.Debug("全文比對修正位置",
				zap.Int("from", e.rooms[pick].id),
				zap.Int("to", e.rooms[bestIdx].id),
				zap.Float64("similarity", best))
		}
		final, finalSim, method = bestIdx, best, MethodSimilarity
		ratio = 0
		if hasExits {
			ratio = exits.Overlap(e.rooms[final].exits)
		}
	}
	if final < 0 {
		return Estimate{}
	}

	id := e.rooms[final].id
	est := Estimate{
		RoomID:     &id,
		Confidence: Weak,
		Similarity: finalSim,
		ExitRatio:  ratio,
		Method:     method,
	}
	if finalSim >= StrongSimilarity || ratio >= StrongExitRatio {
		est.Confidence = Strong
	}
	if finalSim >= StrongSimilarity {
		desc := matchText(e.graph.Room(id).Description)
		est.Highlights = highlightRanges(msg, desc)
	}
	return est
}

// searchSet returns room indices to score: the current room and its
// neighbours, or every room when the position is unknown.
func (e *Estimator) searchSet(current *int) []int {
	if current != nil {
		if ci, ok := e.byID[*current]; ok {
			set := []int{ci}
			for _, n := range e.graph.Neighbors(*current) {
				if ni, ok := e.byID[n]; ok && n != *current {
					set = append(set, ni)
				}
			}
			sort.Ints(set)
			return set
		}
	}
	set := make([]int, len(e.rooms))
	for i := range set {
		set[i] = i
	}
	return set
}

// score runs the exit/word heuristic and, when it is weak, the word vote.
// It returns the room index (-1 for none), the exit ratio of that room and
// the method used.
func (e *Estimator) score(set []int, exits data.DirSet, hasExits bool, msgWords map[string]struct{}, clean []rune) (int, float64, string) {
	cands := make([]candidate, 0, len(set))
	maxTotal := 0.0
	for _, idx := range set {
		r := &e.rooms[idx]
		c := candidate{idx: idx, words: sharedWords(msgWords, r.words)}
		if hasExits {
			c.ratio = exits.Overlap(r.exits)
		}
		c.total = ExitWeight*c.ratio + float64(c.words)
		if c.total > maxTotal {
			maxTotal = c.total
		}
		cands = append(cands, c)
	}

	if maxTotal > 0 {
		floor := (1 - KeepWithin) * maxTotal
		var top *candidate
		for i := range cands {
			c := &cands[i]
			if c.total < floor {
				continue
			}
			// set is ascending, so the first of equals has the lower id
			if top == nil || c.ratio > top.ratio || (c.ratio == top.ratio && c.words > top.words) {
				top = c
			}
		}
		if top.ratio >= WeakExitRatio {
			return top.idx, top.ratio, MethodExits
		}
	}

	return e.wordVote(cands, clean)
}

// wordVote picks the room sharing the most words; ties go to the most
// similar combined text, then to the lower id.
func (e *Estimator) wordVote(cands []candidate, clean []rune) (int, float64, string) {
	maxWords := 0
	for _, c := range cands {
		if c.words > maxWords {
			maxWords = c.words
		}
	}
	if maxWords == 0 {
		return -1, 0, ""
	}
	var tied []candidate
	for _, c := range cands {
		if c.words == maxWords {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return tied[0].idx, tied[0].ratio, MethodWords
	}

	m := newMatcher(clean)
	best, bestSim := tied[0], -1.0
	for _, c := range tied {
		sim := m.ratio(e.rooms[c.idx].combined)
		if sim > bestSim {
			best, bestSim = c, sim
		}
	}
	return best.idx, best.ratio, MethodWords
}

func sharedWords(msg map[string]struct{}, room []string) int {
	n := 0
	for _, w := range room {
		if _, ok := msg[w]; ok {
			n++
		}
	}
	return n
}
