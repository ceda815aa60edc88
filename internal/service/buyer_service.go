package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/config"
	"github.com/estatedesk/lead-intake-backend/internal/csvio"
	"github.com/estatedesk/lead-intake-backend/internal/db"
	"github.com/estatedesk/lead-intake-backend/internal/diff"
	"github.com/estatedesk/lead-intake-backend/internal/metrics"
	"github.com/estatedesk/lead-intake-backend/internal/ratelimit"
	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
	"github.com/estatedesk/lead-intake-backend/internal/validation"
)

// ============================================
// Buyer Service
// ============================================

const (
	listCacheTTL     = 60 * time.Second
	listCachePattern = "buyers:*"
	historyPageSize  = 50
)

// ListQuery narrows and pages the lead list. Page is 1-based.
type ListQuery struct {
	Search       string
	City         string
	PropertyType string
	Status       string
	Timeline     string
	Sort         string
	Page         int
}

type BuyerPage struct {
	Buyers   []*repository.Buyer `json:"buyers"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// HistoryEntry is one audit record with its diff decoded and each
// change rendered for display.
type HistoryEntry struct {
	ID        string                   `json:"id"`
	ChangedBy string                   `json:"changedBy"`
	ChangedAt time.Time                `json:"changedAt"`
	Diff      map[string][]interface{} `json:"diff"`
	Summary   []string                 `json:"summary"`
}

type ImportResult struct {
	Inserted int `json:"inserted"`
}

// ImportError aggregates the validation failures of a rejected import:
// every offending row with its messages, and no partial writes.
type ImportError struct {
	Rows []csvio.RowError
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import rejected: %d rows failed validation", len(e.Rows))
}

type BuyerService interface {
	Create(ctx context.Context, identity *Identity, input *validation.BuyerInput) (*repository.Buyer, error)
	Get(ctx context.Context, identity *Identity, id string) (*repository.Buyer, error)
	List(ctx context.Context, identity *Identity, query *ListQuery) (*BuyerPage, error)
	Update(ctx context.Context, identity *Identity, id string, input *validation.BuyerInput) (*repository.Buyer, error)
	UpdateStatus(ctx context.Context, identity *Identity, id, status string) (*repository.Buyer, error)
	History(ctx context.Context, identity *Identity, id string) ([]*HistoryEntry, error)
	ImportCSV(ctx context.Context, identity *Identity, file io.Reader) (*ImportResult, error)
	ExportCSV(ctx context.Context, identity *Identity, query *ListQuery, w io.Writer) error
}

type buyerService struct {
	cfg         *config.Config
	buyerRepo   repository.BuyerRepository
	historyRepo repository.BuyerHistoryRepository
	permissions PermissionService
	limiter     *ratelimit.Limiter
	redis       *db.RedisDB
}

func NewBuyerService(
	cfg *config.Config,
	buyerRepo repository.BuyerRepository,
	historyRepo repository.BuyerHistoryRepository,
	permissions PermissionService,
	limiter *ratelimit.Limiter,
	redis *db.RedisDB,
) BuyerService {
	return &buyerService{
		cfg:         cfg,
		buyerRepo:   buyerRepo,
		historyRepo: historyRepo,
		permissions: permissions,
		limiter:     limiter,
		redis:       redis,
	}
}

func (s *buyerService) Create(ctx context.Context, identity *Identity, input *validation.BuyerInput) (*repository.Buyer, error) {
	if err := s.admitMutation(identity); err != nil {
		return nil, err
	}

	buyer, fieldErrs := validation.ValidateCreate(input)
	if len(fieldErrs) > 0 {
		metrics.RecordMutation("create", "validation_error")
		return nil, &ValidationError{Fields: fieldErrs}
	}
	buyer.OwnerID = identity.UserID

	createdDiff, err := json.Marshal(diff.Created(buyer))
	if err != nil {
		return nil, fmt.Errorf("failed to encode creation diff: %w", err)
	}

	if err := s.buyerRepo.CreateWithHistory(ctx, buyer, createdDiff); err != nil {
		metrics.RecordMutation("create", "error")
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	metrics.RecordMutation("create", "ok")
	metrics.LeadsCreatedTotal.WithLabelValues("api").Inc()
	s.invalidateListCache(ctx)
	return buyer, nil
}

func (s *buyerService) Get(ctx context.Context, identity *Identity, id string) (*repository.Buyer, error) {
	buyer, err := s.buyerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if buyer == nil {
		return nil, ErrNotFound
	}
	if !s.permissions.CanViewBuyer(identity, buyer.OwnerID) {
		return nil, ErrForbidden
	}
	return buyer, nil
}

func (s *buyerService) List(ctx context.Context, identity *Identity, query *ListQuery) (*BuyerPage, error) {
	filters := s.scopedFilters(identity, query)

	cacheKey := listCacheKey(filters)
	if s.redis != nil {
		var cached BuyerPage
		if err := s.redis.GetCache(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	buyers, err := s.buyerRepo.FindWithFilters(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	total, err := s.buyerRepo.CountWithFilters(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}
	if buyers == nil {
		buyers = []*repository.Buyer{}
	}

	page := &BuyerPage{
		Buyers:   buyers,
		Total:    total,
		Page:     pageOf(query),
		PageSize: s.cfg.PageSize,
	}

	if s.redis != nil {
		if err := s.redis.SetCache(ctx, cacheKey, page, listCacheTTL); err != nil {
			log.Printf("[BuyerService] ⚠️ Failed to cache list: %v", err)
		}
	}
	return page, nil
}

func (s *buyerService) Update(ctx context.Context, identity *Identity, id string, input *validation.BuyerInput) (*repository.Buyer, error) {
	if err := s.admitMutation(identity); err != nil {
		return nil, err
	}

	// Validation comes before the load: a malformed submission is
	// rejected as such even when the target is missing or stale.
	patch, fieldErrs := validation.ValidateUpdate(input)
	if len(fieldErrs) > 0 {
		metrics.RecordMutation("update", "validation_error")
		return nil, &ValidationError{Fields: fieldErrs}
	}

	current, err := s.buyerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if current == nil {
		metrics.RecordMutation("update", "not_found")
		return nil, ErrNotFound
	}
	if !s.permissions.CanEditBuyer(identity, current.OwnerID) {
		metrics.RecordMutation("update", "forbidden")
		return nil, ErrForbidden
	}

	// Optimistic concurrency: the caller must echo back the updatedAt
	// it last read. Absent or stale means someone else got there first.
	if input.UpdatedAt == nil || !input.UpdatedAt.Equal(current.UpdatedAt) {
		metrics.RecordMutation("update", "conflict")
		return nil, ErrConflict
	}

	updated := cloneBuyer(current)
	patch.Apply(updated)

	// A single submitted budget bound must still respect the bound it
	// leaves in place, or the row constraint would reject the write.
	if errs := validation.CheckBudgetPair(updated.BudgetMin, updated.BudgetMax); len(errs) > 0 {
		metrics.RecordMutation("update", "validation_error")
		return nil, &ValidationError{Fields: errs}
	}

	changes := diff.Compute(current, updated)
	var diffBytes []byte
	if len(changes) > 0 {
		diffBytes, err = json.Marshal(changes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode diff: %w", err)
		}
	}

	err = s.buyerRepo.UpdateWithHistory(ctx, updated, current.UpdatedAt, identity.UserID, diffBytes)
	if err == repository.ErrStaleRecord {
		metrics.RecordMutation("update", "conflict")
		return nil, ErrConflict
	}
	if err != nil {
		metrics.RecordMutation("update", "error")
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	metrics.RecordMutation("update", "ok")
	s.invalidateListCache(ctx)
	return updated, nil
}

// UpdateStatus is the narrow mutation path: enum membership only, no
// concurrency token, diff always the single status pair.
func (s *buyerService) UpdateStatus(ctx context.Context, identity *Identity, id, status string) (*repository.Buyer, error) {
	if err := s.admitMutation(identity); err != nil {
		return nil, err
	}

	if !types.IsValidStatus(status) {
		metrics.RecordMutation("status", "validation_error")
		return nil, &ValidationError{Fields: []validation.FieldError{
			{Field: "status", Message: "is not a recognized value"},
		}}
	}

	current, err := s.buyerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if current == nil {
		metrics.RecordMutation("status", "not_found")
		return nil, ErrNotFound
	}
	if !s.permissions.CanEditBuyer(identity, current.OwnerID) {
		metrics.RecordMutation("status", "forbidden")
		return nil, ErrForbidden
	}

	var diffBytes []byte
	if current.Status != status {
		diffBytes, err = json.Marshal(diff.StatusChange(current.Status, status))
		if err != nil {
			return nil, fmt.Errorf("failed to encode diff: %w", err)
		}
	}

	updated, err := s.buyerRepo.UpdateStatusWithHistory(ctx, id, status, identity.UserID, diffBytes)
	if err != nil {
		metrics.RecordMutation("status", "error")
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if updated == nil {
		metrics.RecordMutation("status", "not_found")
		return nil, ErrNotFound
	}

	metrics.RecordMutation("status", "ok")
	s.invalidateListCache(ctx)
	return updated, nil
}

func (s *buyerService) History(ctx context.Context, identity *Identity, id string) ([]*HistoryEntry, error) {
	buyer, err := s.buyerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if buyer == nil {
		return nil, ErrNotFound
	}
	if !s.permissions.CanViewBuyer(identity, buyer.OwnerID) {
		return nil, ErrForbidden
	}

	records, err := s.historyRepo.FindByBuyerID(ctx, id, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	entries := make([]*HistoryEntry, 0, len(records))
	for _, record := range records {
		entry := &HistoryEntry{
			ID:        record.ID,
			ChangedBy: record.ChangedBy,
			ChangedAt: record.ChangedAt,
			Diff:      map[string][]interface{}{},
		}
		if err := json.Unmarshal(record.Diff, &entry.Diff); err != nil {
			log.Printf("[BuyerService] ⚠️ Skipping undecodable diff on history %s: %v", record.ID, err)
			continue
		}
		for field, pair := range entry.Diff {
			var oldValue, newValue interface{}
			if len(pair) == 2 {
				oldValue, newValue = pair[0], pair[1]
			}
			entry.Summary = append(entry.Summary, diff.Humanize(field, oldValue, newValue))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *buyerService) ImportCSV(ctx context.Context, identity *Identity, file io.Reader) (*ImportResult, error) {
	if err := s.admitMutation(identity); err != nil {
		return nil, err
	}

	buyers, rowErrors, err := csvio.ParseImport(file)
	if err != nil {
		metrics.RecordMutation("import", "validation_error")
		return nil, err
	}
	if len(rowErrors) > 0 {
		metrics.ImportRowsTotal.WithLabelValues("rejected").Add(float64(len(rowErrors)))
		metrics.RecordMutation("import", "validation_error")
		return nil, &ImportError{Rows: rowErrors}
	}

	diffs := make([][]byte, len(buyers))
	for i, buyer := range buyers {
		buyer.OwnerID = identity.UserID
		diffs[i], err = json.Marshal(diff.Created(buyer))
		if err != nil {
			return nil, fmt.Errorf("failed to encode creation diff: %w", err)
		}
	}

	if err := s.buyerRepo.BulkCreateWithHistory(ctx, buyers, diffs); err != nil {
		metrics.RecordMutation("import", "error")
		return nil, fmt.Errorf("failed to import leads: %w", err)
	}

	metrics.RecordMutation("import", "ok")
	metrics.ImportRowsTotal.WithLabelValues("accepted").Add(float64(len(buyers)))
	metrics.LeadsCreatedTotal.WithLabelValues("import").Add(float64(len(buyers)))
	s.invalidateListCache(ctx)
	return &ImportResult{Inserted: len(buyers)}, nil
}

// ExportCSV writes the full filtered set (no pagination) in the fixed
// column order. The same ownership scoping as List applies.
func (s *buyerService) ExportCSV(ctx context.Context, identity *Identity, query *ListQuery, w io.Writer) error {
	filters := s.scopedFilters(identity, query)
	filters.Limit = 0
	filters.Offset = 0

	buyers, err := s.buyerRepo.FindWithFilters(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to export leads: %w", err)
	}
	return csvio.WriteExport(w, buyers)
}

// ============================================
// Helpers
// ============================================

func (s *buyerService) admitMutation(identity *Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if !s.limiter.Allow(identity.UserID) {
		metrics.RateLimitRejectionsTotal.Inc()
		return ErrRateLimited
	}
	return nil
}

func (s *buyerService) scopedFilters(identity *Identity, query *ListQuery) *repository.BuyerFilters {
	filters := &repository.BuyerFilters{
		Search:       query.Search,
		City:         query.City,
		PropertyType: query.PropertyType,
		Status:       query.Status,
		Timeline:     query.Timeline,
		Sort:         query.Sort,
		Limit:        s.cfg.PageSize,
		Offset:       (pageOf(query) - 1) * s.cfg.PageSize,
	}
	if !s.permissions.CanViewAllBuyers(identity) {
		filters.OwnerID = identity.UserID
	}
	return filters
}

func pageOf(query *ListQuery) int {
	if query.Page < 1 {
		return 1
	}
	return query.Page
}

func listCacheKey(filters *repository.BuyerFilters) string {
	return fmt.Sprintf("buyers:%s:%s:%s:%s:%s:%s:%s:%d:%d",
		filters.OwnerID, filters.Search, filters.City, filters.PropertyType,
		filters.Status, filters.Timeline, filters.Sort, filters.Limit, filters.Offset,
	)
}

func (s *buyerService) invalidateListCache(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.InvalidateCache(ctx, listCachePattern); err != nil {
		log.Printf("[BuyerService] ⚠️ Failed to invalidate list cache: %v", err)
	}
}

func cloneBuyer(b *repository.Buyer) *repository.Buyer {
	clone := *b
	clone.Tags = append([]string{}, b.Tags...)
	if b.Email != nil {
		email := *b.Email
		clone.Email = &email
	}
	if b.BHK != nil {
		bhk := *b.BHK
		clone.BHK = &bhk
	}
	if b.BudgetMin != nil {
		min := *b.BudgetMin
		clone.BudgetMin = &min
	}
	if b.BudgetMax != nil {
		max := *b.BudgetMax
		clone.BudgetMax = &max
	}
	if b.Notes != nil {
		notes := *b.Notes
		clone.Notes = &notes
	}
	return &clone
}
