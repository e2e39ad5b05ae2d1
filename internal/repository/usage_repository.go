package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"krishibondhu/internal/entities"
)

// PostgresUsageRepository stores the advisory usage log in the advisory_usage table.
type PostgresUsageRepository struct {
	db *pgxpool.Pool
}

func NewPostgresUsageRepository(db *pgxpool.Pool) *PostgresUsageRepository {
	return &PostgresUsageRepository{db: db}
}

// Record inserts rec, assigning an ID and timestamp when they are unset.
func (r *PostgresUsageRepository) Record(ctx context.Context, rec entities.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO advisory_usage (id, user_id, operation, model, fallback, failure, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.UserID, string(rec.Operation), rec.Model, rec.Fallback, rec.Failure, rec.LatencyMS, rec.CreatedAt)
	return errors.Wrap(err, "insert advisory usage")
}

// CountToday returns how many advisory calls userID made since midnight UTC.
func (r *PostgresUsageRepository) CountToday(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM advisory_usage
		WHERE user_id = $1 AND created_at >= $2
	`, userID, startOfDay(time.Now())).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count advisory usage")
	}
	return count, nil
}

// Summary returns call and fallback totals per operation.
func (r *PostgresUsageRepository) Summary(ctx context.Context) ([]entities.UsageSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT operation, COUNT(*), COUNT(*) FILTER (WHERE fallback)
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

// Close is a no-op; the pool belongs to the PostgresClient.
func (r *PostgresUsageRepository) Close() error {
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
