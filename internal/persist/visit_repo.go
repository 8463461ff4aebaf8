package persist

import (
	"context"
	"fmt"
	"time"
)

// Visit is one journaled position estimate.
type Visit struct {
	RoomID     int
	Confidence string // "weak", "strong"
	Method     string
	Similarity float64
	SeenAt     time.Time
}

// VisitRepo journals where the player has been.
type VisitRepo struct {
	db *DB
}

func NewVisitRepo(db *DB) *VisitRepo {
	return &VisitRepo{db: db}
}

// Record writes a batch of visits in a single transaction.
func (r *VisitRepo) Record(ctx context.Context, visits []Visit) error {
	if len(visits) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("visit begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range visits {
		if _, err := tx.Exec(ctx,
			`INSERT INTO visits (room_id, confidence, method, similarity, seen_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			v.RoomID, v.Confidence, v.Method, v.Similarity, v.SeenAt,
		); err != nil {
			return fmt.Errorf("visit insert: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Recent returns the latest visits, newest first.
func (r *VisitRepo) Recent(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT room_id, confidence, method, similarity, seen_at
		 FROM visits ORDER BY seen_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()
	var out []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.RoomID, &v.Confidence, &v.Method, &v.Similarity, &v.SeenAt); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
