package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nightfall-go/mapper/internal/data"
)

type WorldRepo struct {
	db *DB
}

func NewWorldRepo(db *DB) *WorldRepo {
	return &WorldRepo{db: db}
}

// Load reads the whole world graph.
func (r *WorldRepo) Load(ctx context.Context) (*data.World, error) {
	zones, err := r.loadZones(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, description, zone_id, x, y, z FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	var rooms []data.Room
	index := map[int]int{}
	for rows.Next() {
		var rm data.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.ZoneID, &rm.Pos.X, &rm.Pos.Y, &rm.Pos.Z); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan room: %w", err)
		}
		index[rm.ID] = len(rooms)
		rooms = append(rooms, rm)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rooms: %w", err)
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT from_room, to_room, dir, command, kind FROM exits ORDER BY from_room, ord`)
	if err != nil {
		return nil, fmt.Errorf("query exits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e   data.Exit
			dir string
		)
		if err := rows.Scan(&e.From, &e.To, &dir, &e.Command, &e.Kind); err != nil {
			return nil, fmt.Errorf("scan exit: %w", err)
		}
		d, ok := data.ParseDirection(dir)
		if !ok {
			return nil, fmt.Errorf("exit %d->%d: unknown direction %q", e.From, e.To, dir)
		}
		e.Dir = d
		if i, ok := index[e.From]; ok {
			rooms[i].Exits = append(rooms[i].Exits, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read exits: %w", err)
	}

	return data.NewWorld(zones, rooms)
}

func (r *WorldRepo) loadZones(ctx context.Context) ([]data.Zone, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, min_x, min_y, max_x, max_y FROM zones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()
	var zones []data.Zone
	for rows.Next() {
		var z data.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Bounds.MinX, &z.Bounds.MinY, &z.Bounds.MaxX, &z.Bounds.MaxY); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// Import replaces the stored world with w in one transaction.
func (r *WorldRepo) Import(ctx context.Context, w *data.World) error {
	var zoneRows, roomRows, exitRows [][]any
	for _, z := range w.Zones() {
		zoneRows = append(zoneRows, []any{z.ID, z.Name, z.Bounds.MinX, z.Bounds.MinY, z.Bounds.MaxX, z.Bounds.MaxY})
	}
	for _, id := range w.RoomIDs() {
		rm := w.Room(id)
		roomRows = append(roomRows, []any{rm.ID, rm.Name, rm.Description, rm.ZoneID, rm.Pos.X, rm.Pos.Y, rm.Pos.Z})
		for i, e := range rm.Exits {
			exitRows = append(exitRows, []any{rm.ID, int16(i), e.To, e.Dir.Command(), e.Command, e.Kind})
		}
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE exits, rooms, zones`); err != nil {
			return fmt.Errorf("clear world: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"zones"},
			[]string{"id", "name", "min_x", "min_y", "max_x", "max_y"}, pgx.CopyFromRows(zoneRows)); err != nil {
			return fmt.Errorf("copy zones: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"rooms"},
			[]string{"id", "name", "description", "zone_id", "x", "y", "z"}, pgx.CopyFromRows(roomRows)); err != nil {
			return fmt.Errorf("copy rooms: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"exits"},
			[]string{"from_room", "ord", "to_room", "dir", "command", "kind"}, pgx.CopyFromRows(exitRows)); err != nil {
			return fmt.Errorf("copy exits: %w", err)
		}
		return nil
	})
}
