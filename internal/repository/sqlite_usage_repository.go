package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"krishibondhu/internal/entities"
)

// Fixed width so created_at compares correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteUsageRepository stores the advisory usage log in an embedded SQLite file.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository opens or creates the database at dbPath.
func NewSQLiteUsageRepository(dbPath string) (*SQLiteUsageRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create db dir")
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}

	r := &SQLiteUsageRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return r, nil
}

func (r *SQLiteUsageRepository) migrate() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS advisory_usage (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL DEFAULT '',
		operation   TEXT NOT NULL,
		model       TEXT NOT NULL,
		fallback    INTEGER NOT NULL DEFAULT 0,
		failure     TEXT NOT NULL DEFAULT '',
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_advisory_usage_user_created ON advisory_usage(user_id, created_at);
	`)
	return err
}

func (r *SQLiteUsageRepository) Record(ctx context.Context, rec entities.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO advisory_usage (id, user_id, operation, model, fallback, failure, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, string(rec.Operation), rec.Model, rec.Fallback, rec.Failure, rec.LatencyMS,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout))
	return errors.Wrap(err, "insert advisory usage")
}

func (r *SQLiteUsageRepository) CountToday(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM advisory_usage WHERE user_id = ? AND created_at >= ?
	`, userID, startOfDay(time.Now()).Format(sqliteTimeLayout)).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count advisory usage")
	}
	return count, nil
}

func (r *SQLiteUsageRepository) Summary(ctx context.Context) ([]entities.UsageSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT operation, COUNT(*), COALESCE(SUM(fallback), 0)
		FROM advisory_usage
		GROUP BY operation
		ORDER BY operation ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query advisory usage summary")
	}
	defer rows.Close()

	summary := []entities.UsageSummary{}
	for rows.Next() {
		var s entities.UsageSummary
		var op string
		if err := rows.Scan(&op, &s.Total, &s.Fallbacks); err != nil {
			return nil, errors.Wrap(err, "scan advisory usage summary")
		}
		s.Operation = entities.Operation(op)
		summary = append(summary, s)
	}
	return summary, errors.Wrap(rows.Err(), "iterate advisory usage summary")
}

func (r *SQLiteUsageRepository) Close() error {
	return r.db.Close()
}
