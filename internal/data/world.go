package data

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position is a room's map coordinate. Z is the level.
type Position struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// Exit links two rooms. Command overrides the direction's default walk
// command when the map database records a literal one ("climb rope").
type Exit struct {
	From    int       `yaml:"-"`
	To      int       `yaml:"to"`
	Dir     Direction `yaml:"dir"`
	Command string    `yaml:"command,omitempty"`
	Kind    string    `yaml:"kind,omitempty"` // "normal", "door", "locked door"
}

// WalkCommand returns the literal override if present, else the direction command.
func (e Exit) WalkCommand() string {
	if e.Command != "" {
		return e.Command
	}
	return e.Dir.Command()
}

type Room struct {
	ID          int      `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	ZoneID      int      `yaml:"zone_id"`
	Pos         Position `yaml:"position"`
	Exits       []Exit   `yaml:"exits,omitempty"`
}

// ExitDirs returns the set of directions leaving the room.
func (r *Room) ExitDirs() DirSet {
	var s DirSet
	for _, e := range r.Exits {
		s = s.Add(e.Dir)
	}
	return s
}

type Bounds struct {
	MinX int `yaml:"min_x"`
	MinY int `yaml:"min_y"`
	MaxX int `yaml:"max_x"`
	MaxY int `yaml:"max_y"`
}

type Zone struct {
	ID     int    `yaml:"id"`
	Name   string `yaml:"name"`
	Bounds Bounds `yaml:"bounds"`
}

// ExitZone is an exit annotated with the zone of its destination.
type ExitZone struct {
	From   int
	To     int
	ToZone int
}

// Stats summarises a loaded world.
type Stats struct {
	Rooms         int
	Zones         int
	Exits         int
	Descriptions  int
	DanglingExits int
}

// World is the immutable room graph. It is built once and only read
// afterwards, so it is safe for concurrent use.
type World struct {
	rooms    map[int]*Room
	zones    map[int]*Zone
	ids      []int // ascending room ids
	zoneIDs  []int
	dangling int
}

type worldFile struct {
	Zones []Zone `yaml:"zones"`
	Rooms []Room `yaml:"rooms"`
}

// LoadWorld loads the world graph from a YAML file.
func LoadWorld(path string) (*World, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world %s: %w", path, err)
	}
	var file worldFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse world %s: %w", path, err)
	}
	return NewWorld(file.Zones, file.Rooms)
}

// NewWorld builds a World from zone and room records. Exits that point to
// unknown rooms are dropped and counted in Stats().DanglingExits.
func NewWorld(zones []Zone, rooms []Room) (*World, error) {
	w := &World{
		rooms: make(map[int]*Room, len(rooms)),
		zones: make(map[int]*Zone, len(zones)),
	}
	for i := range zones {
		z := zones[i]
		if _, dup := w.zones[z.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %d", z.ID)
		}
		w.zones[z.ID] = &z
		w.zoneIDs = append(w.zoneIDs, z.ID)
	}
	for i := range rooms {
		r := rooms[i]
		if _, dup := w.rooms[r.ID]; dup {
			return nil, fmt.Errorf("duplicate room id %d", r.ID)
		}
		w.rooms[r.ID] = &r
		w.ids = append(w.ids, r.ID)
	}
	for _, r := range w.rooms {
		kept := r.Exits[:0:0]
		for _, e := range r.Exits {
			if _, ok := w.rooms[e.To]; !ok {
				w.dangling++
				continue
			}
			e.From = r.ID
			kept = append(kept, e)
		}
		r.Exits = kept
	}
	sort.Ints(w.ids)
	sort.Ints(w.zoneIDs)
	return w, nil
}

// Save writes the world in the format LoadWorld reads.
func (w *World) Save(path string) error {
	file := worldFile{
		Zones: make([]Zone, 0, len(w.zoneIDs)),
		Rooms: make([]Room, 0, len(w.ids)),
	}
	for _, id := range w.zoneIDs {
		file.Zones = append(file.Zones, *w.zones[id])
	}
	for _, id := range w.ids {
		file.Rooms = append(file.Rooms, *w.rooms[id])
	}
	raw, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write world %s: %w", path, err)
	}
	return nil
}

// Room returns the room with the given id, or nil.
func (w *World) Room(id int) *Room {
	return w.rooms[id]
}

// Has reports whether id is a room of the world.
func (w *World) Has(id int) bool {
	_, ok := w.rooms[id]
	return ok
}

// RoomIDs returns all room ids in ascending order. The slice is shared; do not modify it.
func (w *World) RoomIDs() []int {
	return w.ids
}

// Count returns the number of rooms.
func (w *World) Count() int {
	return len(w.ids)
}

// Neighbors returns the distinct rooms reachable by one exit, ascending.
func (w *World) Neighbors(id int) []int {
	r := w.rooms[id]
	if r == nil {
		return nil
	}
	seen := make(map[int]struct{}, len(r.Exits))
	out := make([]int, 0, len(r.Exits))
	for _, e := range r.Exits {
		if _, ok := seen[e.To]; ok {
			continue
		}
		seen[e.To] = struct{}{}
		out = append(out, e.To)
	}
	sort.Ints(out)
	return out
}

// ExitsWithZone lists the exits leaving the given rooms with the destination zone.
func (w *World) ExitsWithZone(from []int) []ExitZone {
	var out []ExitZone
	for _, id := range from {
		r := w.rooms[id]
		if r == nil {
			continue
		}
		for _, e := range r.Exits {
			out = append(out, ExitZone{From: id, To: e.To, ToZone: w.rooms[e.To].ZoneID})
		}
	}
	return out
}

// ConnectedDescriptions returns the descriptions of id and its neighbours keyed by room id.
func (w *World) ConnectedDescriptions(id int) map[int]string {
	r := w.rooms[id]
	if r == nil {
		return nil
	}
	out := map[int]string{id: r.Description}
	for _, n := range w.Neighbors(id) {
		out[n] = w.rooms[n].Description
	}
	return out
}

// RoomName returns the room's name, or "Unknown Room".
func (w *World) RoomName(id int) string {
	if r := w.rooms[id]; r != nil {
		return r.Name
	}
	return "Unknown Room"
}

func (w *World) RoomPosition(id int) (Position, bool) {
	r := w.rooms[id]
	if r == nil {
		return Position{}, false
	}
	return r.Pos, true
}

// ZoneOf returns the zone id of a room.
func (w *World) ZoneOf(id int) (int, bool) {
	r := w.rooms[id]
	if r == nil {
		return 0, false
	}
	return r.ZoneID, true
}

func (w *World) Zone(id int) *Zone {
	return w.zones[id]
}

// Zones returns all zones ordered by id.
func (w *World) Zones() []*Zone {
	out := make([]*Zone, 0, len(w.zoneIDs))
	for _, id := range w.zoneIDs {
		out = append(out, w.zones[id])
	}
	return out
}

// RoomsInZone returns the rooms of a zone ordered by id. A nil level returns
// every level; level 0 also matches rooms without a recorded level.
func (w *World) RoomsInZone(zoneID int, level *int) []*Room {
	var out []*Room
	for _, id := range w.ids {
		r := w.rooms[id]
		if r.ZoneID != zoneID {
			continue
		}
		if level != nil && r.Pos.Z != *level {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FindRoomsByName returns ids of rooms whose name contains s, case-insensitively.
func (w *World) FindRoomsByName(s string) []int {
	needle := strings.ToLower(strings.TrimSpace(s))
	if needle == "" {
		return nil
	}
	var out []int
	for _, id := range w.ids {
		if strings.Contains(strings.ToLower(w.rooms[id].Name), needle) {
			out = append(out, id)
		}
	}
	return out
}

func (w *World) Stats() Stats {
	st := Stats{Rooms: len(w.ids), Zones: len(w.zoneIDs), DanglingExits: w.dangling}
	for _, r := range w.rooms {
		st.Exits += len(r.Exits)
		if r.Description != "" {
			st.Descriptions++
		}
	}
	return st
}
