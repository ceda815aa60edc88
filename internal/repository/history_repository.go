package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type BuyerHistoryRepository interface {
	FindByBuyerID(ctx context.Context, buyerID string, limit int) ([]*BuyerHistory, error)
}

type pgBuyerHistoryRepository struct {
	pool *pgxpool.Pool
}

func (r *pgBuyerHistoryRepository) FindByBuyerID(ctx context.Context, buyerID string, limit int) ([]*BuyerHistory, error) {
	query := `
		SELECT id, buyer_id, changed_by, changed_at, diff
		FROM buyer_history
		WHERE buyer_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, buyerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*BuyerHistory
	for rows.Next() {
		entry := &BuyerHistory{}
		if err := rows.Scan(
			&entry.ID, &entry.BuyerID, &entry.ChangedBy, &entry.ChangedAt, &entry.Diff,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
