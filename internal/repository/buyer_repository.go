package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BuyerRepository interface {
	FindByID(ctx context.Context, id string) (*Buyer, error)
	FindWithFilters(ctx context.Context, filters *BuyerFilters) ([]*Buyer, error)
	CountWithFilters(ctx context.Context, filters *BuyerFilters) (int, error)

	// Write pairs: the record mutation and its history entry commit in
	// one transaction, or not at all. A nil diff skips the history row.
	CreateWithHistory(ctx context.Context, buyer *Buyer, diff []byte) error
	UpdateWithHistory(ctx context.Context, buyer *Buyer, expectedUpdatedAt time.Time, actorID string, diff []byte) error
	UpdateStatusWithHistory(ctx context.Context, id, status, actorID string, diff []byte) (*Buyer, error)
	BulkCreateWithHistory(ctx context.Context, buyers []*Buyer, diffs [][]byte) error
}

type pgBuyerRepository struct {
	pool *pgxpool.Pool
}

const buyerColumns = `
	id, owner_id, full_name, email, phone, city, property_type, bhk,
	purpose, budget_min, budget_max, timeline, source, status, notes,
	tags, created_at, updated_at
`

func scanBuyer(row pgx.Row) (*Buyer, error) {
	b := &Buyer{}
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.FullName, &b.Email, &b.Phone, &b.City,
		&b.PropertyType, &b.BHK, &b.Purpose, &b.BudgetMin, &b.BudgetMax,
		&b.Timeline, &b.Source, &b.Status, &b.Notes, &b.Tags,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *pgBuyerRepository) FindByID(ctx context.Context, id string) (*Buyer, error) {
	query := `SELECT ` + buyerColumns + ` FROM buyers WHERE id = $1`
	buyer, err := scanBuyer(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return buyer, nil
}

// sortColumns whitelists caller-supplied sort fields. Anything else
// falls back to the default most-recently-updated ordering.
var sortColumns = map[string]string{
	"fullName":     "full_name",
	"phone":        "phone",
	"email":        "email",
	"city":         "city",
	"propertyType": "property_type",
	"status":       "status",
	"timeline":     "timeline",
	"source":       "source",
	"budgetMin":    "budget_min",
	"budgetMax":    "budget_max",
	"createdAt":    "created_at",
	"updatedAt":    "updated_at",
}

// buildFilterClause renders the shared WHERE clause for the page query
// and the count query. Ownership scoping comes first; the search token
// ORs across name, phone and email; equality filters are ANDed.
func buildFilterClause(filters *BuyerFilters) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}
	argNum := 0

	if filters.OwnerID != "" {
		argNum++
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", argNum))
		args = append(args, filters.OwnerID)
	}
	if filters.Search != "" {
		argNum++
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(full_name) LIKE LOWER($%d) OR LOWER(phone) LIKE LOWER($%d) OR LOWER(COALESCE(email, '')) LIKE LOWER($%d))",
			argNum, argNum, argNum,
		))
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.City != "" {
		argNum++
		clauses = append(clauses, fmt.Sprintf("city = $%d", argNum))
		args = append(args, filters.City)
	}
	if filters.PropertyType != "" {
		argNum++
		clauses = append(clauses, fmt.Sprintf("property_type = $%d", argNum))
		args = append(args, filters.PropertyType)
	}
	if filters.Status != "" {
		argNum++
		clauses = append(clauses, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filters.Status)
	}
	if filters.Timeline != "" {
		argNum++
		clauses = append(clauses, fmt.Sprintf("timeline = $%d", argNum))
		args = append(args, filters.Timeline)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(sort string) string {
	field := sort
	direction := "ASC"
	if idx := strings.Index(sort, ":"); idx >= 0 {
		field = sort[:idx]
		if strings.EqualFold(sort[idx+1:], "desc") {
			direction = "DESC"
		}
	}
	column, ok := sortColumns[field]
	if !ok {
		return " ORDER BY updated_at DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, direction)
}

func (r *pgBuyerRepository) FindWithFilters(ctx context.Context, filters *BuyerFilters) ([]*Buyer, error) {
	where, args := buildFilterClause(filters)
	query := `SELECT ` + buyerColumns + ` FROM buyers` + where + orderClause(filters.Sort)

	argNum := len(args)
	if filters.Limit > 0 {
		argNum++
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		argNum++
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buyers []*Buyer
	for rows.Next() {
		buyer, err := scanBuyer(rows)
		if err != nil {
			return nil, err
		}
		buyers = append(buyers, buyer)
	}
	return buyers, rows.Err()
}

func (r *pgBuyerRepository) CountWithFilters(ctx context.Context, filters *BuyerFilters) (int, error) {
	where, args := buildFilterClause(filters)
	query := `SELECT COUNT(*) FROM buyers` + where

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *pgBuyerRepository) CreateWithHistory(ctx context.Context, buyer *Buyer, diff []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertBuyer(ctx, tx, buyer); err != nil {
		return err
	}
	if diff != nil {
		if err := insertHistory(ctx, tx, buyer.ID, buyer.OwnerID, diff); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *pgBuyerRepository) UpdateWithHistory(ctx context.Context, buyer *Buyer, expectedUpdatedAt time.Time, actorID string, diff []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE buyers SET
			full_name = $3, email = $4, phone = $5, city = $6,
			property_type = $7, bhk = $8, purpose = $9, budget_min = $10,
			budget_max = $11, timeline = $12, source = $13, status = $14,
			notes = $15, tags = $16, updated_at = clock_timestamp()
		WHERE id = $1 AND updated_at = $2
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, query,
		buyer.ID, expectedUpdatedAt,
		buyer.FullName, buyer.Email, buyer.Phone, buyer.City,
		buyer.PropertyType, buyer.BHK, buyer.Purpose, buyer.BudgetMin,
		buyer.BudgetMax, buyer.Timeline, buyer.Source, buyer.Status,
		buyer.Notes, buyer.Tags,
	).Scan(&buyer.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrStaleRecord
	}
	if err != nil {
		return err
	}

	if diff != nil {
		if err := insertHistory(ctx, tx, buyer.ID, actorID, diff); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *pgBuyerRepository) UpdateStatusWithHistory(ctx context.Context, id, status, actorID string, diff []byte) (*Buyer, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE buyers SET status = $2, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING ` + buyerColumns
	buyer, err := scanBuyer(tx.QueryRow(ctx, query, id, status))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if diff != nil {
		if err := insertHistory(ctx, tx, buyer.ID, actorID, diff); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return buyer, nil
}

// BulkCreateWithHistory inserts all buyers and one history row per
// buyer as a single all-or-nothing transaction. diffs is parallel to
// buyers.
func (r *pgBuyerRepository) BulkCreateWithHistory(ctx context.Context, buyers []*Buyer, diffs [][]byte) error {
	if len(buyers) != len(diffs) {
		return fmt.Errorf("buyers/diffs length mismatch: %d != %d", len(buyers), len(diffs))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, buyer := range buyers {
		if err := insertBuyer(ctx, tx, buyer); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if diffs[i] != nil {
			if err := insertHistory(ctx, tx, buyer.ID, buyer.OwnerID, diffs[i]); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
	}
	return tx.Commit(ctx)
}

func insertBuyer(ctx context.Context, tx pgx.Tx, buyer *Buyer) error {
	query := `
		INSERT INTO buyers (
			owner_id, full_name, email, phone, city, property_type, bhk,
			purpose, budget_min, budget_max, timeline, source, status,
			notes, tags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	if buyer.Tags == nil {
		buyer.Tags = []string{}
	}
	return tx.QueryRow(ctx, query,
		buyer.OwnerID, buyer.FullName, buyer.Email, buyer.Phone,
		buyer.City, buyer.PropertyType, buyer.BHK, buyer.Purpose,
		buyer.BudgetMin, buyer.BudgetMax, buyer.Timeline, buyer.Source,
		buyer.Status, buyer.Notes, buyer.Tags,
	).Scan(&buyer.ID, &buyer.CreatedAt, &buyer.UpdatedAt)
}

func insertHistory(ctx context.Context, tx pgx.Tx, buyerID, changedBy string, diff []byte) error {
	query := `
		INSERT INTO buyer_history (buyer_id, changed_by, diff)
		VALUES ($1, $2, $3)
	`
	_, err := tx.Exec(ctx, query, buyerID, changedBy, diff)
	return err
}
