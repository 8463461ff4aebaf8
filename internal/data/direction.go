package data

import (
	"fmt"
	"math/bits"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direction is one of the twelve exit direction codes used by the map database.
type Direction int

const (
	DirNone Direction = iota
	North
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
	Up
	Down
	Enter
	Leave
)

type dirInfo struct {
	code    string // short form, also the default walk command
	long    string
	aliases []string
}

var dirTable = [...]dirInfo{
	DirNone:   {},
	North:     {code: "n", long: "north"},
	NorthEast: {code: "ne", long: "northeast", aliases: []string{"north-east"}},
	East:      {code: "e", long: "east"},
	SouthEast: {code: "se", long: "southeast", aliases: []string{"south-east"}},
	South:     {code: "s", long: "south"},
	SouthWest: {code: "sw", long: "southwest", aliases: []string{"south-west"}},
	West:      {code: "w", long: "west"},
	NorthWest: {code: "nw", long: "northwest", aliases: []string{"north-west"}},
	Up:        {code: "u", long: "up"},
	Down:      {code: "d", long: "down"},
	Enter:     {code: "enter", long: "enter", aliases: []string{"in"}},
	Leave:     {code: "leave", long: "leave", aliases: []string{"out"}},
}

// dirLookup maps every accepted spelling (short, long, alias) to its code.
var dirLookup = func() map[string]Direction {
	m := make(map[string]Direction, 40)
	for d := North; d <= Leave; d++ {
		info := dirTable[d]
		m[info.code] = d
		m[info.long] = d
		for _, a := range info.aliases {
			m[a] = d
		}
	}
	return m
}()

// ParseDirection accepts a long or short direction token ("north", "n",
// "NE", "out") and returns the canonical code.
func ParseDirection(token string) (Direction, bool) {
	d, ok := dirLookup[strings.ToLower(strings.TrimSpace(token))]
	return d, ok
}

// Command returns the walk command the server expects for this direction.
func (d Direction) Command() string {
	if d <= DirNone || d > Leave {
		return ""
	}
	return dirTable[d].code
}

func (d Direction) String() string {
	if d <= DirNone || d > Leave {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return dirTable[d].long
}

func (d Direction) MarshalYAML() (any, error) {
	return d.Command(), nil
}

func (d *Direction) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = DirNone
		return nil
	}
	parsed, ok := ParseDirection(s)
	if !ok {
		return fmt.Errorf("line %d: unknown direction %q", node.Line, s)
	}
	*d = parsed
	return nil
}

// DirSet is a set of directions stored as a bitmask.
type DirSet uint16

func (s DirSet) Add(d Direction) DirSet {
	if d <= DirNone || d > Leave {
		return s
	}
	return s | 1<<uint(d)
}

func (s DirSet) Has(d Direction) bool {
	return s&(1<<uint(d)) != 0
}

func (s DirSet) Len() int {
	return bits.OnesCount16(uint16(s))
}

// Overlap returns |s ∩ o| / |s ∪ o|, or 0 when both sets are empty.
func (s DirSet) Overlap(o DirSet) float64 {
	union := (s | o).Len()
	if union == 0 {
		return 0
	}
	return float64((s & o).Len()) / float64(union)
}

// Directions lists the members in code order.
func (s DirSet) Directions() []Direction {
	out := make([]Direction, 0, s.Len())
	for d := North; d <= Leave; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DirSet) String() string {
	dirs := s.Directions()
	parts := make([]string, len(dirs))
	for i, d := range dirs {
		parts[i] = d.Command()
	}
	return strings.Join(parts, ",")
}
