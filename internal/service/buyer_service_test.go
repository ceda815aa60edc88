package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/ratelimit"
	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
	"github.com/estatedesk/lead-intake-backend/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuyerRepo is an in-memory BuyerRepository that mimics the
// conditional-update and transactional write-pair semantics of the
// postgres implementation. It doubles as the history repository.
type fakeBuyerRepo struct {
	buyers  map[string]*repository.Buyer
	history []*repository.BuyerHistory
	nextID  int
	clock   time.Time
}

func newFakeBuyerRepo() *fakeBuyerRepo {
	return &fakeBuyerRepo{
		buyers: map[string]*repository.Buyer{},
		clock:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *fakeBuyerRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeBuyerRepo) clone(b *repository.Buyer) *repository.Buyer {
	c := *b
	c.Tags = append([]string{}, b.Tags...)
	return &c
}

func (r *fakeBuyerRepo) FindByID(ctx context.Context, id string) (*repository.Buyer, error) {
	b, ok := r.buyers[id]
	if !ok {
		return nil, nil
	}
	return r.clone(b), nil
}

func (r *fakeBuyerRepo) FindWithFilters(ctx context.Context, filters *repository.BuyerFilters) ([]*repository.Buyer, error) {
	var out []*repository.Buyer
	for _, b := range r.buyers {
		if filters.OwnerID != "" && b.OwnerID != filters.OwnerID {
			continue
		}
		if filters.Status != "" && b.Status != filters.Status {
			continue
		}
		out = append(out, r.clone(b))
	}
	return out, nil
}

func (r *fakeBuyerRepo) CountWithFilters(ctx context.Context, filters *repository.BuyerFilters) (int, error) {
	buyers, _ := r.FindWithFilters(ctx, filters)
	return len(buyers), nil
}

func (r *fakeBuyerRepo) CreateWithHistory(ctx context.Context, buyer *repository.Buyer, diff []byte) error {
	r.nextID++
	buyer.ID = fmt.Sprintf("b-%d", r.nextID)
	now := r.tick()
	buyer.CreatedAt = now
	buyer.UpdatedAt = now
	r.buyers[buyer.ID] = r.clone(buyer)
	if diff != nil {
		r.appendHistory(buyer.ID, buyer.OwnerID, diff)
	}
	return nil
}

func (r *fakeBuyerRepo) UpdateWithHistory(ctx context.Context, buyer *repository.Buyer, expectedUpdatedAt time.Time, actorID string, diff []byte) error {
	stored, ok := r.buyers[buyer.ID]
	if !ok || !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return repository.ErrStaleRecord
	}
	buyer.UpdatedAt = r.tick()
	r.buyers[buyer.ID] = r.clone(buyer)
	if diff != nil {
		r.appendHistory(buyer.ID, actorID, diff)
	}
	return nil
}

func (r *fakeBuyerRepo) UpdateStatusWithHistory(ctx context.Context, id, status, actorID string, diff []byte) (*repository.Buyer, error) {
	stored, ok := r.buyers[id]
	if !ok {
		return nil, nil
	}
	stored.Status = status
	stored.UpdatedAt = r.tick()
	if diff != nil {
		r.appendHistory(id, actorID, diff)
	}
	return r.clone(stored), nil
}

func (r *fakeBuyerRepo) BulkCreateWithHistory(ctx context.Context, buyers []*repository.Buyer, diffs [][]byte) error {
	for i, buyer := range buyers {
		if err := r.CreateWithHistory(ctx, buyer, diffs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeBuyerRepo) FindByBuyerID(ctx context.Context, buyerID string, limit int) ([]*repository.BuyerHistory, error) {
	var out []*repository.BuyerHistory
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.history[i].BuyerID == buyerID {
			out = append(out, r.history[i])
		}
	}
	return out, nil
}

func (r *fakeBuyerRepo) appendHistory(buyerID, changedBy string, diff []byte) {
	r.history = append(r.history, &repository.BuyerHistory{
		ID:        fmt.Sprintf("h-%d", len(r.history)+1),
		BuyerID:   buyerID,
		ChangedBy: changedBy,
		ChangedAt: r.clock,
		Diff:      diff,
	})
}

func (r *fakeBuyerRepo) historyFor(buyerID string) []*repository.BuyerHistory {
	var out []*repository.BuyerHistory
	for _, h := range r.history {
		if h.BuyerID == buyerID {
			out = append(out, h)
		}
	}
	return out
}

// ============================================
// Harness
// ============================================

type buyerFixture struct {
	repo    *fakeBuyerRepo
	service BuyerService
	agent   *Identity
	other   *Identity
	admin   *Identity
}

func newBuyerFixture(t *testing.T, limit int) *buyerFixture {
	t.Helper()
	repo := newFakeBuyerRepo()
	cfg := testConfig()
	permissions := NewPermissionService(cfg, newFakeUserRepo())
	limiter := ratelimit.New(limit, time.Minute)

	return &buyerFixture{
		repo:    repo,
		service: NewBuyerService(cfg, repo, repo, permissions, limiter, nil),
		agent:   &Identity{UserID: "agent-1", Email: "agent@leadintake.dev", Role: types.RoleUser},
		other:   &Identity{UserID: "agent-2", Email: "other@leadintake.dev", Role: types.RoleUser},
		admin:   &Identity{UserID: "admin-1", Email: "admin@leadintake.dev", Role: types.RoleAdmin, IsAdmin: true},
	}
}

func strPtr(v string) *string { return &v }

func createInput(name string) *validation.BuyerInput {
	return &validation.BuyerInput{
		FullName:     strPtr(name),
		Phone:        strPtr("9876543210"),
		City:         strPtr(types.CityMohali),
		PropertyType: strPtr(types.PropertyPlot),
		Purpose:      strPtr(types.PurposeBuy),
		Timeline:     strPtr(types.TimelineZeroToThree),
		Source:       strPtr(types.SourceWebsite),
	}
}

// ============================================
// Create
// ============================================

func TestCreateWritesRecordAndCreationHistory(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))

	require.NoError(t, err)
	assert.Equal(t, "agent-1", buyer.OwnerID)
	assert.Equal(t, types.StatusNew, buyer.Status)

	history := f.repo.historyFor(buyer.ID)
	require.Len(t, history, 1)

	var diff map[string][]interface{}
	require.NoError(t, json.Unmarshal(history[0].Diff, &diff))
	require.Contains(t, diff, "created")
	assert.Nil(t, diff["created"][0])
}

func TestCreateInvalidInputWritesNothing(t *testing.T) {
	f := newBuyerFixture(t, 10)

	input := createInput("Simran Kaur")
	input.PropertyType = strPtr(types.PropertyApartment) // bhk now required

	_, err := f.service.Create(context.Background(), f.agent, input)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "bhk", validationErr.Fields[0].Field)
	assert.Empty(t, f.repo.buyers)
	assert.Empty(t, f.repo.history)
}

func TestCreateApartmentRejectedWithoutBHKThenAcceptedWithIt(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	input := createInput("Simran Kaur")
	input.PropertyType = strPtr(types.PropertyApartment)

	_, err := f.service.Create(ctx, f.agent, input)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	input.BHK = strPtr(types.BHKTwo)
	buyer, err := f.service.Create(ctx, f.agent, input)
	require.NoError(t, err)
	require.NotNil(t, buyer.BHK)
	assert.Equal(t, types.BHKTwo, *buyer.BHK)
	assert.Len(t, f.repo.buyers, 1)
}

// ============================================
// Update
// ============================================

func TestUpdateHappyPathAppendsDiffHistory(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	token := buyer.UpdatedAt
	updated, err := f.service.Update(ctx, f.agent, buyer.ID, &validation.BuyerInput{
		FullName:  strPtr("Simran K. Gill"),
		UpdatedAt: &token,
	})

	require.NoError(t, err)
	assert.Equal(t, "Simran K. Gill", updated.FullName)
	assert.True(t, updated.UpdatedAt.After(token))

	history := f.repo.historyFor(buyer.ID)
	require.Len(t, history, 2)

	var diff map[string][]interface{}
	require.NoError(t, json.Unmarshal(history[1].Diff, &diff))
	require.Contains(t, diff, "fullName")
	assert.Equal(t, "Simran Kaur", diff["fullName"][0])
	assert.Equal(t, "Simran K. Gill", diff["fullName"][1])
}

func TestUpdateStaleTokenConflictsAndWritesNothing(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	stale := buyer.UpdatedAt.Add(-time.Hour)
	_, err = f.service.Update(ctx, f.agent, buyer.ID, &validation.BuyerInput{
		FullName:  strPtr("Should Not Apply"),
		UpdatedAt: &stale,
	})

	assert.ErrorIs(t, err, ErrConflict)

	stored, _ := f.repo.FindByID(ctx, buyer.ID)
	assert.Equal(t, "Simran Kaur", stored.FullName)
	assert.Len(t, f.repo.historyFor(buyer.ID), 1)
}

func TestUpdateMissingTokenConflicts(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	_, err = f.service.Update(ctx, f.agent, buyer.ID, &validation.BuyerInput{
		FullName: strPtr("Should Not Apply"),
	})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateByNonOwnerForbidden(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	token := buyer.UpdatedAt
	_, err = f.service.Update(ctx, f.other, buyer.ID, &validation.BuyerInput{
		FullName:  strPtr("Hijacked"),
		UpdatedAt: &token,
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Update(ctx, f.admin, buyer.ID, &validation.BuyerInput{
		FullName:  strPtr("Admin Edit"),
		UpdatedAt: &token,
	})
	assert.NoError(t, err)
}

func TestUpdateHistoryAttributedToActingUser(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	token := buyer.UpdatedAt
	_, err = f.service.Update(ctx, f.admin, buyer.ID, &validation.BuyerInput{
		FullName:  strPtr("Edited By Admin"),
		UpdatedAt: &token,
	})
	require.NoError(t, err)

	history := f.repo.historyFor(buyer.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "agent-1", history[0].ChangedBy)
	assert.Equal(t, "admin-1", history[1].ChangedBy)
}

func TestUpdateValidationPrecedesLoad(t *testing.T) {
	f := newBuyerFixture(t, 10)

	_, err := f.service.Update(context.Background(), f.agent, "missing", &validation.BuyerInput{
		FullName: strPtr(""),
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "fullName", validationErr.Fields[0].Field)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUpdateSingleBudgetBoundCheckedAgainstStored(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	input := createInput("Simran Kaur")
	input.BudgetMin = "5000000"
	buyer, err := f.service.Create(ctx, f.agent, input)
	require.NoError(t, err)

	token := buyer.UpdatedAt
	_, err = f.service.Update(ctx, f.agent, buyer.ID, &validation.BuyerInput{
		BudgetMax: "3000000",
		UpdatedAt: &token,
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "budgetMax", validationErr.Fields[0].Field)
	assert.Len(t, f.repo.historyFor(buyer.ID), 1)

	stored, _ := f.repo.FindByID(ctx, buyer.ID)
	assert.Nil(t, stored.BudgetMax)
}

func TestUpdateWithNoChangesSkipsHistory(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	token := buyer.UpdatedAt
	updated, err := f.service.Update(ctx, f.agent, buyer.ID, &validation.BuyerInput{
		FullName:  strPtr("Simran Kaur"),
		UpdatedAt: &token,
	})

	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(token))
	assert.Len(t, f.repo.historyFor(buyer.ID), 1)
}

func TestUpdateNotFound(t *testing.T) {
	f := newBuyerFixture(t, 10)

	_, err := f.service.Update(context.Background(), f.agent, "missing", &validation.BuyerInput{})

	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// Status transitions
// ============================================

func TestUpdateStatusAppendsSingleFieldDiff(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	updated, err := f.service.UpdateStatus(ctx, f.agent, buyer.ID, types.StatusQualified)

	require.NoError(t, err)
	assert.Equal(t, types.StatusQualified, updated.Status)

	history := f.repo.historyFor(buyer.ID)
	require.Len(t, history, 2)

	var diff map[string][]interface{}
	require.NoError(t, json.Unmarshal(history[1].Diff, &diff))
	require.Len(t, diff, 1)
	assert.Equal(t, types.StatusNew, diff["status"][0])
	assert.Equal(t, types.StatusQualified, diff["status"][1])
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, f.agent, buyer.ID, "Archived")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "status", validationErr.Fields[0].Field)
}

func TestUpdateStatusNoOpSkipsHistory(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, f.agent, buyer.ID, types.StatusNew)

	require.NoError(t, err)
	assert.Len(t, f.repo.historyFor(buyer.ID), 1)
}

// ============================================
// Rate limiting
// ============================================

func TestMutationsAreRateLimitedPerUser(t *testing.T) {
	f := newBuyerFixture(t, 2)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.agent, createInput("Lead One"))
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.agent, createInput("Lead Two"))
	require.NoError(t, err)

	_, err = f.service.Create(ctx, f.agent, createInput("Lead Three"))
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different caller still gets through.
	_, err = f.service.Create(ctx, f.other, createInput("Lead Four"))
	assert.NoError(t, err)
}

func TestReadsAreNotRateLimited(t *testing.T) {
	f := newBuyerFixture(t, 1)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.service.Get(ctx, f.agent, buyer.ID)
		require.NoError(t, err)
	}
}

// ============================================
// Visibility
// ============================================

func TestGetScopedToOwnerUnlessAdmin(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)

	_, err = f.service.Get(ctx, f.other, buyer.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Get(ctx, f.admin, buyer.ID)
	assert.NoError(t, err)
}

func TestListScopedToOwnerUnlessAdmin(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.agent, createInput("Agent Lead"))
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.other, createInput("Other Lead"))
	require.NoError(t, err)

	agentPage, err := f.service.List(ctx, f.agent, &ListQuery{})
	require.NoError(t, err)
	require.Len(t, agentPage.Buyers, 1)
	assert.Equal(t, "Agent Lead", agentPage.Buyers[0].FullName)
	assert.Equal(t, 1, agentPage.Total)

	adminPage, err := f.service.List(ctx, f.admin, &ListQuery{})
	require.NoError(t, err)
	assert.Len(t, adminPage.Buyers, 2)
	assert.Equal(t, 2, adminPage.Total)
}

// ============================================
// History endpoint
// ============================================

func TestHistoryReturnsDecodedEntriesNewestFirst(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	buyer, err := f.service.Create(ctx, f.agent, createInput("Simran Kaur"))
	require.NoError(t, err)
	_, err = f.service.UpdateStatus(ctx, f.agent, buyer.ID, types.StatusContacted)
	require.NoError(t, err)

	entries, err := f.service.History(ctx, f.agent, buyer.ID)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Diff, "status")
	assert.Contains(t, entries[0].Summary, "Status changed from New to Contacted")
	assert.Contains(t, entries[1].Diff, "created")
	assert.Contains(t, entries[1].Summary, "Lead created")
}

// ============================================
// Import / Export
// ============================================

const importHeader = "fullName,phone,city,propertyType,purpose,timeline,source"

func TestImportCSVInsertsAllRowsWithHistory(t *testing.T) {
	f := newBuyerFixture(t, 10)

	csvData := importHeader + "\n" +
		"Simran Kaur,9876543210,Mohali,Plot,Buy,0-3m,Website\n" +
		"Vikram Mehta,9811122233,Chandigarh,Office,Rent,Exploring,Referral\n"

	result, err := f.service.ImportCSV(context.Background(), f.agent, strings.NewReader(csvData))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Len(t, f.repo.buyers, 2)
	assert.Len(t, f.repo.history, 2)
	for _, b := range f.repo.buyers {
		assert.Equal(t, "agent-1", b.OwnerID)
		assert.Equal(t, types.StatusNew, b.Status)
	}
}

func TestImportCSVOneBadRowRejectsWholeFile(t *testing.T) {
	f := newBuyerFixture(t, 10)

	csvData := importHeader + "\n" +
		"Simran Kaur,9876543210,Mohali,Plot,Buy,0-3m,Website\n" +
		"Broken Row,9811122233,Nowhere,Plot,Buy,0-3m,Website\n"

	_, err := f.service.ImportCSV(context.Background(), f.agent, strings.NewReader(csvData))

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	require.Len(t, importErr.Rows, 1)
	assert.Equal(t, 2, importErr.Rows[0].Row)
	assert.Empty(t, f.repo.buyers)
	assert.Empty(t, f.repo.history)
}

func TestExportCSVScopedToOwner(t *testing.T) {
	f := newBuyerFixture(t, 10)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.agent, createInput("Agent Lead"))
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.other, createInput("Other Lead"))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, f.service.ExportCSV(ctx, f.agent, &ListQuery{}, &buf))

	out := buf.String()
	assert.Contains(t, out, "Agent Lead")
	assert.NotContains(t, out, "Other Lead")
	assert.True(t, strings.HasPrefix(out, "Full Name,Email,Phone,"))
}
