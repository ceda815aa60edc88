package diff

import (
	"encoding/json"
	"testing"

	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func intPtr(v int64) *int64 { return &v }

func sampleBuyer() *repository.Buyer {
	return &repository.Buyer{
		FullName:     "Simran Kaur",
		Phone:        "9876543210",
		City:         types.CityMohali,
		PropertyType: types.PropertyApartment,
		BHK:          strPtr(types.BHKThree),
		Purpose:      types.PurposeBuy,
		BudgetMin:    intPtr(5000000),
		BudgetMax:    intPtr(7500000),
		Timeline:     types.TimelineZeroToThree,
		Source:       types.SourceWebsite,
		Status:       types.StatusNew,
		Tags:         []string{"urgent"},
	}
}

func TestComputeIdenticalRecordsYieldEmptyDiff(t *testing.T) {
	a := sampleBuyer()
	b := sampleBuyer()

	assert.Empty(t, Compute(a, b))
}

func TestComputeReportsChangedFieldsOnly(t *testing.T) {
	a := sampleBuyer()
	b := sampleBuyer()
	b.FullName = "Simran K. Gill"
	b.BudgetMax = intPtr(8000000)

	changes := Compute(a, b)

	require.Len(t, changes, 2)
	assert.Equal(t, [2]interface{}{"Simran Kaur", "Simran K. Gill"}, changes["fullName"])
	assert.Equal(t, [2]interface{}{int64(7500000), int64(8000000)}, changes["budgetMax"])
}

func TestComputeOptionalFieldCleared(t *testing.T) {
	a := sampleBuyer()
	b := sampleBuyer()
	b.BudgetMin = nil

	changes := Compute(a, b)

	require.Len(t, changes, 1)
	assert.Equal(t, [2]interface{}{int64(5000000), nil}, changes["budgetMin"])
}

func TestComputeTagOrderIsSignificant(t *testing.T) {
	a := sampleBuyer()
	a.Tags = []string{"urgent", "nri"}
	b := sampleBuyer()
	b.Tags = []string{"nri", "urgent"}

	changes := Compute(a, b)

	require.Len(t, changes, 1)
	assert.Contains(t, changes, "tags")
}

func TestCreatedEntryHoldsFullSnapshot(t *testing.T) {
	changes := Created(sampleBuyer())

	require.Len(t, changes, 1)
	pair, ok := changes[CreatedKey]
	require.True(t, ok)
	assert.Nil(t, pair[0])

	record, ok := pair[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Simran Kaur", record["fullName"])
	assert.Equal(t, types.StatusNew, record["status"])
	assert.NotContains(t, record, "id")
	assert.NotContains(t, record, "createdAt")
	assert.NotContains(t, record, "updatedAt")
	assert.NotContains(t, record, "ownerId")
}

func TestChangesSurviveJSONRoundTrip(t *testing.T) {
	a := sampleBuyer()
	b := sampleBuyer()
	b.Status = types.StatusQualified

	data, err := json.Marshal(Compute(a, b))
	require.NoError(t, err)

	var decoded map[string][]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded["status"], 2)
	assert.Equal(t, types.StatusNew, decoded["status"][0])
	assert.Equal(t, types.StatusQualified, decoded["status"][1])
}

func TestStatusChange(t *testing.T) {
	changes := StatusChange(types.StatusNew, types.StatusContacted)

	require.Len(t, changes, 1)
	assert.Equal(t, [2]interface{}{types.StatusNew, types.StatusContacted}, changes["status"])
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Lead created", Humanize(CreatedKey, nil, map[string]interface{}{}))
	assert.Equal(t, "Status changed from New to Qualified", Humanize("status", "New", "Qualified"))
	assert.Equal(t, "Email set to a@b.dev", Humanize("email", nil, "a@b.dev"))
	assert.Equal(t, "Notes removed", Humanize("notes", "call later", nil))
	assert.Equal(t, "Tags changed from urgent to urgent, nri", Humanize("tags", []string{"urgent"}, []string{"urgent", "nri"}))
}
