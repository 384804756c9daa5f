package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"auction_watcher/internal/domain"
)

var ledgerTables = map[domain.LedgerKind]string{
	domain.LedgerArrival: "notified_arrivals",
	domain.LedgerUrgent:  "notified_urgent",
}

type LedgerStore struct {
	db *sqlx.DB
}

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// TryRecord relies on the primary key: of several concurrent inserts for one
// listing only one affects a row.
func (s *LedgerStore) TryRecord(ctx context.Context, kind domain.LedgerKind, entry domain.LedgerEntry) (bool, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (listing_id, first_seen_at, title, url, minutes_remaining)
		VALUES (:listing_id, :first_seen_at, :title, :url, :minutes_remaining)
		ON CONFLICT (listing_id) DO NOTHING`, table)

	res, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, entry)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *LedgerStore) LoadIDs(ctx context.Context, kind domain.LedgerKind) ([]string, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, fmt.Sprintf(`SELECT listing_id FROM %s`, table)); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return ids, nil
}

func ledgerTable(kind domain.LedgerKind) (string, error) {
	table, ok := ledgerTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown ledger kind %q", kind)
	}
	return table, nil
}
