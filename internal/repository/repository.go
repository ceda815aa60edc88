package repository

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStaleRecord is returned by conditional updates when the caller's
// optimistic-concurrency token no longer matches the stored row.
var ErrStaleRecord = errors.New("record modified by another user")

// ============================================
// Models / Entities
// ============================================

type User struct {
	ID        string
	Email     string
	Password  string
	Name      string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Buyer is a tracked buyer lead. UpdatedAt doubles as the
// optimistic-concurrency token: it is server-assigned on every write.
type Buyer struct {
	ID           string
	OwnerID      string
	FullName     string
	Email        *string
	Phone        string
	City         string
	PropertyType string
	BHK          *string
	Purpose      string
	BudgetMin    *int64
	BudgetMax    *int64
	Timeline     string
	Source       string
	Status       string
	Notes        *string
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BuyerHistory is an append-only audit record of one mutation. Diff is
// a JSON object mapping changed field name to an [old, new] pair; the
// reserved key "created" marks whole-record creation.
type BuyerHistory struct {
	ID        string
	BuyerID   string
	ChangedBy string
	ChangedAt time.Time
	Diff      []byte
}

// BuyerFilters describes one bounded, ownership-scoped list query.
// OwnerID empty means unscoped (admin callers only).
type BuyerFilters struct {
	OwnerID      string
	Search       string
	City         string
	PropertyType string
	Status       string
	Timeline     string
	Sort         string
	Limit        int
	Offset       int
}

// ============================================
// Repositories Container
// ============================================

type Repositories struct {
	UserRepo    UserRepository
	BuyerRepo   BuyerRepository
	HistoryRepo BuyerHistoryRepository
}

// NewPgRepositories creates PostgreSQL-backed repositories
func NewPgRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		UserRepo:    &pgUserRepository{pool: pool},
		BuyerRepo:   &pgBuyerRepository{pool: pool},
		HistoryRepo: &pgBuyerHistoryRepository{pool: pool},
	}
}
