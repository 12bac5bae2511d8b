package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	hist "github.com/bryanwahyu/cybersec-analyzer/internal/domain/history"
)

// Connect buka koneksi Postgres dan pastikan bisa di-ping
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// EnsureSchema creates the history table when missing.
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS analysis_history (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	code_bytes  INTEGER NOT NULL,
	status      TEXT NOT NULL,
	fail_kind   TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	critical    INTEGER NOT NULL DEFAULT 0,
	high        INTEGER NOT NULL DEFAULT 0,
	medium      INTEGER NOT NULL DEFAULT 0,
	low         INTEGER NOT NULL DEFAULT 0,
	summary     TEXT
)`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON analysis_history (created_at DESC)`)
	return err
}

func (r *HistoryRepository) Save(ctx context.Context, rec *hist.Record) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_history
	(id, created_at, code_bytes, status, fail_kind, duration_ms, critical, high, medium, low, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))`,
		rec.ID,
		rec.CreatedAt.UTC(),
		rec.CodeBytes,
		string(rec.Status),
		rec.FailKind,
		rec.DurationMS,
		rec.Critical,
		rec.High,
		rec.Medium,
		rec.Low,
		rec.Summary,
	)
	return err
}

func (r *HistoryRepository) Latest(ctx context.Context, limit int) ([]*hist.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, created_at, code_bytes, status, fail_kind, duration_ms, critical, high, medium, low, COALESCE(summary, '')
FROM analysis_history
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hist.Record
	for rows.Next() {
		var rec hist.Record
		var status string
		if err := rows.Scan(
			&rec.ID, &rec.CreatedAt, &rec.CodeBytes, &status, &rec.FailKind,
			&rec.DurationMS, &rec.Critical, &rec.High, &rec.Medium, &rec.Low,
			&rec.Summary,
		); err != nil {
			return nil, err
		}
		rec.Status = hist.Status(status)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
