package usagerepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/airwise/internal/domain/usage"
)

const usageWindowsSchema = `
	CREATE TABLE IF NOT EXISTS usage_windows (
		provider         TEXT        NOT NULL,
		window_start     TIMESTAMPTZ NOT NULL,
		window_end       TIMESTAMPTZ NOT NULL,
		calls            BIGINT      NOT NULL,
		errors           BIGINT      NOT NULL,
		total_latency_ms BIGINT      NOT NULL,
		PRIMARY KEY (provider, window_start)
	)
`

// PostgresArchive stores closed usage windows using pgx.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive constructs the archive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// EnsureSchema creates the backing table when missing.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, usageWindowsSchema)
	return err
}

// Save upserts the window so a replayed close does not double count.
func (a *PostgresArchive) Save(ctx context.Context, record usage.Record) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO usage_windows (provider, window_start, window_end, calls, errors, total_latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, window_start) DO UPDATE
		SET window_end = EXCLUDED.window_end,
			calls = EXCLUDED.calls,
			errors = EXCLUDED.errors,
			total_latency_ms = EXCLUDED.total_latency_ms
	`, record.Provider, record.WindowStart, record.WindowEnd, record.Calls, record.Errors, record.TotalLatency.Milliseconds())
	return err
}

// List returns the newest windows first.
func (a *PostgresArchive) List(ctx context.Context, provider string, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := a.pool.Query(ctx, `
		SELECT provider, window_start, window_end, calls, errors, total_latency_ms
		FROM usage_windows
		WHERE provider = $1
		ORDER BY window_start DESC
		LIMIT $2
	`, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]usage.Record, 0, limit)
	for rows.Next() {
		var (
			rec       usage.Record
			latencyMs int64
		)
		if err := rows.Scan(&rec.Provider, &rec.WindowStart, &rec.WindowEnd, &rec.Calls, &rec.Errors, &latencyMs); err != nil {
			return nil, err
		}
		rec.TotalLatency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ usage.Archive = (*PostgresArchive)(nil)
