// worldconv converts the mapper's nightfall_world.json export to the YAML
// world file, and optionally imports it into PostgreSQL.
//
// Usage:
//
//	go run ./cmd/worldconv [-in path] [-out path] [-dsn url]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/nightfall-go/mapper/internal/config"
	"github.com/nightfall-go/mapper/internal/data"
	"github.com/nightfall-go/mapper/internal/persist"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// JSON input structs
// ---------------------------------------------------------------------------

type jsonWorld struct {
	Zones map[string]jsonZone `json:"zones"`
	Rooms map[string]jsonRoom `json:"rooms"`
}

type jsonZone struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Bounds struct {
		MinX *int `json:"min_x"`
		MinY *int `json:"min_y"`
		MaxX *int `json:"max_x"`
		MaxY *int `json:"max_y"`
	} `json:"bounds"`
}

type jsonRoom struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ZoneID      *int   `json:"zone_id"`
	Position    struct {
		X int `json:"x"`
		Y int `json:"y"`
		Z int `json:"z"`
	} `json:"position"`
	Exits []jsonExit `json:"exits"`
}

type jsonExit struct {
	To      int             `json:"to"`
	Type    json.RawMessage `json:"type"`
	Command *string         `json:"command"`
}

// dirTypes maps the numeric DirType of the map database to a direction.
var dirTypes = map[int]data.Direction{
	1: data.North, 2: data.NorthEast, 3: data.East, 4: data.SouthEast,
	5: data.South, 6: data.SouthWest, 7: data.West, 8: data.NorthWest,
	9: data.Up, 10: data.Down, 11: data.Enter, 12: data.Leave,
}

type report struct {
	Rooms, Zones, Exits int
	CustomCommands      int // exits walked with a literal command
	Skipped             int // exits without any usable direction
}

func main() {
	in := flag.String("in", "data/nightfall_world.json", "input JSON export")
	out := flag.String("out", "data/yaml/world.yaml", "output YAML world file")
	dsn := flag.String("dsn", "", "also import into this PostgreSQL database")
	flag.Parse()

	raw, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	w, rep, err := convert(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert %s: %v\n", *in, err)
		os.Exit(1)
	}

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if err := w.Save(*out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	st := w.Stats()
	fmt.Printf("Rooms: %d\n", st.Rooms)
	fmt.Printf("Zones: %d\n", st.Zones)
	fmt.Printf("Exits: %d (custom commands %d, skipped %d, dangling %d)\n",
		st.Exits, rep.CustomCommands, rep.Skipped, st.DanglingExits)
	fmt.Printf("Wrote %s\n", *out)

	if *dsn == "" {
		return
	}
	if err := importWorld(*dsn, w); err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Imported into PostgreSQL")
}

func importWorld(dsn string, w *data.World) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := persist.Open(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2}, zap.NewNop())
	if err != nil {
		return err
	}
	defer db.Close()
	return persist.NewWorldRepo(db).Import(ctx, w)
}

// convert builds a world from the JSON export. Rooms and zones come out in
// id order; exits keep their stored order.
func convert(raw []byte) (*data.World, report, error) {
	var src jsonWorld
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, report{}, err
	}

	var rep report
	zones := make([]data.Zone, 0, len(src.Zones))
	for key, z := range src.Zones {
		id := z.ID
		if id == 0 {
			id, _ = strconv.Atoi(key)
		}
		zones = append(zones, data.Zone{
			ID:   id,
			Name: z.Name,
			Bounds: data.Bounds{
				MinX: deref(z.Bounds.MinX), MinY: deref(z.Bounds.MinY),
				MaxX: deref(z.Bounds.MaxX), MaxY: deref(z.Bounds.MaxY),
			},
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })

	rooms := make([]data.Room, 0, len(src.Rooms))
	for key, r := range src.Rooms {
		id := r.ID
		if id == 0 {
			id, _ = strconv.Atoi(key)
		}
		room := data.Room{
			ID:          id,
			Name:        r.Name,
			Description: r.Description,
			ZoneID:      deref(r.ZoneID),
			Pos:         data.Position{X: r.Position.X, Y: r.Position.Y, Z: r.Position.Z},
		}
		for _, e := range r.Exits {
			ex, ok := convertExit(e)
			if !ok {
				rep.Skipped++
				continue
			}
			if ex.Command != "" {
				rep.CustomCommands++
			}
			room.Exits = append(room.Exits, ex)
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	w, err := data.NewWorld(zones, rooms)
	if err != nil {
		return nil, rep, err
	}
	st := w.Stats()
	rep.Rooms, rep.Zones, rep.Exits = st.Rooms, st.Zones, st.Exits
	return w, rep, nil
}

// convertExit prefers the stored command: a direction word becomes the
// direction, anything else is kept as a literal command. Without a command
// the numeric type decides.
func convertExit(e jsonExit) (data.Exit, bool) {
	if e.Command != nil && *e.Command != "" {
		if d, ok := data.ParseDirection(*e.Command); ok {
			return data.Exit{To: e.To, Dir: d}, true
		}
		dir := data.Enter
		if d, ok := typeDirection(e.Type); ok {
			dir = d
		}
		return data.Exit{To: e.To, Dir: dir, Command: *e.Command}, true
	}
	d, ok := typeDirection(e.Type)
	if !ok {
		return data.Exit{}, false
	}
	return data.Exit{To: e.To, Dir: d}, true
}

func typeDirection(raw json.RawMessage) (data.Direction, bool) {
	if len(raw) == 0 {
		return data.DirNone, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		d, ok := dirTypes[n]
		return d, ok
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			d, ok := dirTypes[n]
			return d, ok
		}
		return data.ParseDirection(s)
	}
	return data.DirNone, false
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
