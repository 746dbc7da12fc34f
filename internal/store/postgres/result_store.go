package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// ResultStore archives scored PnL results per batch run, keyed by a run ID,
// so historical estimates can be compared as accounting rules evolve.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a new ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// StoredResult is one archived wallet result row.
type StoredResult struct {
	RunID          uuid.UUID
	Wallet         string
	BestEstimate   float64
	SelectedEngine string
	Confidence     domain.Confidence
	Reason         string
	FailedEngines  []string
	CreatedAt      time.Time
}

// InsertRun archives the reports of one scoring run under the given run ID.
func (s *ResultStore) InsertRun(ctx context.Context, runID uuid.UUID, reports []domain.ConfidenceReport) error {
	if len(reports) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO pnl_results (
			run_id, wallet, best_estimate, selected_engine,
			confidence, reason, failed_engines
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)`

	for _, r := range reports {
		batch.Queue(query,
			runID, r.Wallet, r.BestEstimate, r.SelectedEngine,
			string(r.Confidence), r.Reason, r.FailedEngines,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range reports {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert result batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByWallet returns a wallet's archived results, newest first.
func (s *ResultStore) ListByWallet(ctx context.Context, wallet string, limit int) ([]StoredResult, error) {
	query := `
		SELECT run_id, wallet, best_estimate, selected_engine,
			confidence, reason, failed_engines, created_at
		FROM pnl_results
		WHERE wallet = $1
		ORDER BY created_at DESC`
	args := []any{domain.NormalizeWallet(wallet)}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results by wallet: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var r StoredResult
		var confidence string
		if err := rows.Scan(
			&r.RunID, &r.Wallet, &r.BestEstimate, &r.SelectedEngine,
			&confidence, &r.Reason, &r.FailedEngines, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan result row: %w", err)
		}
		r.Confidence = domain.Confidence(confidence)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate result rows: %w", err)
	}
	return results, nil
}
