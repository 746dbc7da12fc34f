package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// EventStore mirrors raw wallet events into PostgreSQL so that repeat
// computations for a wallet do not depend on the upstream indexer being
// reachable.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `wallet, condition_id, outcome_index, kind,
	token_amount, usdc_amount, tx_hash, event_timestamp`

func scanEventRows(rows pgx.Rows) ([]domain.RawWalletEvent, error) {
	var events []domain.RawWalletEvent
	for rows.Next() {
		var e domain.RawWalletEvent
		var kind string
		if err := rows.Scan(
			&e.Wallet, &e.ConditionID, &e.Outcome, &kind,
			&e.TokenAmount, &e.USDCAmount, &e.TxHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBatch mirrors a fetched event page using pgx Batch. Rows already
// mirrored (same wallet, tx hash, outcome, and kind) are silently skipped
// via ON CONFLICT DO NOTHING.
func (s *EventStore) InsertBatch(ctx context.Context, events []domain.RawWalletEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO wallet_events (
			wallet, condition_id, outcome_index, kind,
			token_amount, usdc_amount, tx_hash, event_timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		) ON CONFLICT (wallet, tx_hash, outcome_index, kind) DO NOTHING`

	for _, e := range events {
		batch.Queue(query,
			e.Wallet, e.ConditionID, e.Outcome, string(e.Kind),
			e.TokenAmount, e.USDCAmount, e.TxHash, e.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert event batch item %d: %w", i, err)
		}
	}
	return nil
}

// RawEventsByWallet implements domain.RawEventSource from the mirror,
// returning the wallet's events in chronological order.
func (s *EventStore) RawEventsByWallet(ctx context.Context, wallet string) ([]domain.RawWalletEvent, error) {
	query := `SELECT ` + eventSelectCols + `
		FROM wallet_events
		WHERE wallet = $1
		ORDER BY event_timestamp ASC, tx_hash ASC`

	rows, err := s.pool.Query(ctx, query, domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by wallet: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events by wallet: %w", err)
	}
	return events, nil
}

// CountByWallet returns the number of mirrored events for a wallet.
func (s *EventStore) CountByWallet(ctx context.Context, wallet string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM wallet_events WHERE wallet = $1",
		domain.NormalizeWallet(wallet),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count events by wallet: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.RawEventSource = (*EventStore)(nil)
