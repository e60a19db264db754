package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/cloudleecher/internal/history"
)

// CompletionRepository archives downloads that reached durable storage, so
// the saved list survives a process restart.
type CompletionRepository struct {
	db *sql.DB
}

func NewCompletionRepository(dbConn *sql.DB) *CompletionRepository {
	return &CompletionRepository{db: dbConn}
}

func (r *CompletionRepository) Record(ctx context.Context, e history.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO completions (gid, name, size, dest, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(gid) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			dest = excluded.dest,
			completed_at = excluded.completed_at
	`, e.GID, e.Name, e.Size, e.Dest, e.CompletedAt.Format(time.RFC3339))

	return err
}

// Completions returns archived entries, most recent first.
func (r *CompletionRepository) Completions(ctx context.Context) ([]history.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT gid, name, size, dest, completed_at FROM completions ORDER BY completed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []history.Entry

	for rows.Next() {
		var (
			e       history.Entry
			rawTime string
		)

		if err := rows.Scan(&e.GID, &e.Name, &e.Size, &e.Dest, &rawTime); err != nil {
			return nil, err
		}

		if t, err := time.Parse(time.RFC3339, rawTime); err == nil {
			e.CompletedAt = t
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
