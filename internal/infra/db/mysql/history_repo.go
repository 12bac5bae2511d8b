package mysql

import (
	"context"
	"database/sql"

	hist "github.com/bryanwahyu/cybersec-analyzer/internal/domain/history"
)

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
	id          VARCHAR(64) PRIMARY KEY,
	created_at  DATETIME(3) NOT NULL,
	code_bytes  INT NOT NULL,
	status      VARCHAR(16) NOT NULL,
	fail_kind   VARCHAR(32) NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	critical    INT NOT NULL DEFAULT 0,
	high        INT NOT NULL DEFAULT 0,
	medium      INT NOT NULL DEFAULT 0,
	low         INT NOT NULL DEFAULT 0,
	summary     TEXT,
	INDEX idx_history_created (created_at)
) CHARACTER SET utf8mb4`)
	return err
}

func (r *HistoryRepository) Save(ctx context.Context, rec *hist.Record) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_history
	(id, created_at, code_bytes, status, fail_kind, duration_ms, critical, high, medium, low, summary)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		nullableString(rec.Summary),
	)
	return err
}

func (r *HistoryRepository) Latest(ctx context.Context, limit int) ([]*hist.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, created_at, code_bytes, status, fail_kind, duration_ms, critical, high, medium, low, summary
FROM analysis_history
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hist.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (*hist.Record, error) {
	var rec hist.Record
	var status string
	var summary sql.NullString
	if err := rows.Scan(
		&rec.ID, &rec.CreatedAt, &rec.CodeBytes, &status, &rec.FailKind,
		&rec.DurationMS, &rec.Critical, &rec.High, &rec.Medium, &rec.Low,
		&summary,
	); err != nil {
		return nil, err
	}
	rec.Status = hist.Status(status)
	rec.Summary = summary.String
	return &rec, nil
}
