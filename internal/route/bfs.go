// Package route walks the player to a target room one step at a time.
package route

import "github.com/nightfall-go/mapper/internal/data"

// Graph is the part of the world the planner reads.
type Graph interface {
	Room(id int) *data.Room
}

// Step is one movement command.
type Step struct {
	From    int            `json:"from"`
	To      int            `json:"to"`
	Dir     data.Direction `json:"-"`
	Command string         `json:"command"`
	Kind    string         `json:"kind,omitempty"`
}

// FindPath returns the shortest path by exit count from one room to
// another. Exits are expanded in stored order, so among equally short paths
// the first found wins. ok is false when to is unreachable; from == to
// yields an empty path.
func FindPath(g Graph, from, to int) ([]Step, bool) {
	if g.Room(from) == nil || g.Room(to) == nil {
		return nil, false
	}
	if from == to {
		return nil, true
	}

	prev := map[int]data.Exit{}
	visited := map[int]bool{from: true}
	queue := []int{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		room := g.Room(current)
		if room == nil {
			continue
		}
		for _, e := range room.Exits {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			e.From = current
			prev[e.To] = e
			if e.To == to {
				return unwind(prev, from, to), true
			}
			queue = append(queue, e.To)
		}
	}
	return nil, false
}

func unwind(prev map[int]data.Exit, from, to int) []Step {
	var path []Step
	for at := to; at != from; {
		e := prev[at]
		path = append(path, Step{From: e.From, To: e.To, Dir: e.Dir, Command: e.WalkCommand(), Kind: e.Kind})
		at = e.From
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}
