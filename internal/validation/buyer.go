package validation

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BuyerInput is the loosely-typed form of a buyer lead as submitted by
// a caller: every field optional, budgets accepted as string or number.
// It is decoded once at the boundary and handed to one of the three
// validation entry points below.
type BuyerInput struct {
	FullName     *string     `json:"fullName"`
	Email        *string     `json:"email"`
	Phone        *string     `json:"phone"`
	City         *string     `json:"city"`
	PropertyType *string     `json:"propertyType"`
	BHK          *string     `json:"bhk"`
	Purpose      *string     `json:"purpose"`
	BudgetMin    interface{} `json:"budgetMin"`
	BudgetMax    interface{} `json:"budgetMax"`
	Timeline     *string     `json:"timeline"`
	Source       *string     `json:"source"`
	Status       *string     `json:"status"`
	Notes        *string     `json:"notes"`
	Tags         *[]string   `json:"tags"`

	// Optimistic-concurrency token, only meaningful on update.
	UpdatedAt *time.Time `json:"updatedAt"`
}

// BuyerPatch is the typed result of validating a partial update. A nil
// pointer means the field was not submitted; the Set flags distinguish
// "submitted empty" (clear the field) from "not submitted" for the
// optional fields.
type BuyerPatch struct {
	FullName     *string
	Email        *string
	EmailSet     bool
	Phone        *string
	City         *string
	PropertyType *string
	BHK          *string
	BHKSet       bool
	Purpose      *string
	BudgetMin    *int64
	BudgetMinSet bool
	BudgetMax    *int64
	BudgetMaxSet bool
	Timeline     *string
	Source       *string
	Status       *string
	Notes        *string
	NotesSet     bool
	Tags         *[]string
}

// Apply merges the patch into an existing buyer record.
func (p *BuyerPatch) Apply(b *repository.Buyer) {
	if p.FullName != nil {
		b.FullName = *p.FullName
	}
	if p.EmailSet {
		b.Email = p.Email
	}
	if p.Phone != nil {
		b.Phone = *p.Phone
	}
	if p.City != nil {
		b.City = *p.City
	}
	if p.PropertyType != nil {
		b.PropertyType = *p.PropertyType
	}
	if p.BHKSet {
		b.BHK = p.BHK
	}
	if p.Purpose != nil {
		b.Purpose = *p.Purpose
	}
	if p.BudgetMinSet {
		b.BudgetMin = p.BudgetMin
	}
	if p.BudgetMaxSet {
		b.BudgetMax = p.BudgetMax
	}
	if p.Timeline != nil {
		b.Timeline = *p.Timeline
	}
	if p.Source != nil {
		b.Source = *p.Source
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.NotesSet {
		b.Notes = p.Notes
	}
	if p.Tags != nil {
		b.Tags = *p.Tags
	}
}

// ValidateCreate checks a full submission and returns the normalized
// buyer. Status is always forced to the default; every violation is
// collected rather than short-circuited.
func ValidateCreate(in *BuyerInput) (*repository.Buyer, []FieldError) {
	var errs []FieldError

	buyer := &repository.Buyer{Status: types.StatusNew, Tags: []string{}}

	buyer.FullName = checkFullName(in.FullName, true, &errs)
	buyer.Email = checkEmail(in.Email, &errs)
	buyer.Phone = checkPhone(in.Phone, true, &errs)
	buyer.City = checkEnum("city", in.City, types.IsValidCity, true, &errs)
	buyer.PropertyType = checkEnum("propertyType", in.PropertyType, types.IsValidPropertyType, true, &errs)
	buyer.Purpose = checkEnum("purpose", in.Purpose, types.IsValidPurpose, true, &errs)
	buyer.Timeline = checkEnum("timeline", in.Timeline, types.IsValidTimeline, true, &errs)
	buyer.Source = checkEnum("source", in.Source, types.IsValidSource, true, &errs)
	buyer.Notes = checkNotes(in.Notes, &errs)
	if in.Tags != nil {
		buyer.Tags = NormalizeTags(*in.Tags)
	}

	if in.BHK != nil && strings.TrimSpace(*in.BHK) != "" {
		bhk := strings.TrimSpace(*in.BHK)
		if !types.IsValidBHK(bhk) {
			errs = append(errs, FieldError{"bhk", "must be one of " + strings.Join(types.ValidBHKs, ", ")})
		} else {
			buyer.BHK = &bhk
		}
	}

	buyer.BudgetMin = coerceBudget(in.BudgetMin)
	buyer.BudgetMax = coerceBudget(in.BudgetMax)

	// Cross-field rules, checked in a fixed order, all collected.
	if types.BHKRequired(buyer.PropertyType) && buyer.BHK == nil {
		errs = append(errs, FieldError{"bhk", "is required for Apartment and Villa properties"})
	}
	errs = append(errs, CheckBudgetPair(buyer.BudgetMin, buyer.BudgetMax)...)

	if len(errs) > 0 {
		return nil, errs
	}
	return buyer, nil
}

// ValidateImportRow applies the create rules to one CSV row. Status is
// always the default and tags default to empty, as with create; the
// entry point exists so import call sites stay explicit.
func ValidateImportRow(in *BuyerInput) (*repository.Buyer, []FieldError) {
	return ValidateCreate(in)
}

// ValidateUpdate checks a partial submission: only fields present in
// the input are validated, and cross-field rules apply only among the
// present fields.
func ValidateUpdate(in *BuyerInput) (*BuyerPatch, []FieldError) {
	var errs []FieldError
	patch := &BuyerPatch{}

	if in.FullName != nil {
		name := checkFullName(in.FullName, false, &errs)
		patch.FullName = &name
	}
	if in.Email != nil {
		patch.EmailSet = true
		patch.Email = checkEmail(in.Email, &errs)
	}
	if in.Phone != nil {
		phone := checkPhone(in.Phone, false, &errs)
		patch.Phone = &phone
	}
	if in.City != nil {
		city := checkEnum("city", in.City, types.IsValidCity, false, &errs)
		patch.City = &city
	}
	if in.PropertyType != nil {
		pt := checkEnum("propertyType", in.PropertyType, types.IsValidPropertyType, false, &errs)
		patch.PropertyType = &pt
	}
	if in.BHK != nil {
		patch.BHKSet = true
		bhk := strings.TrimSpace(*in.BHK)
		if bhk != "" {
			if !types.IsValidBHK(bhk) {
				errs = append(errs, FieldError{"bhk", "must be one of " + strings.Join(types.ValidBHKs, ", ")})
			} else {
				patch.BHK = &bhk
			}
		}
	}
	if in.Purpose != nil {
		p := checkEnum("purpose", in.Purpose, types.IsValidPurpose, false, &errs)
		patch.Purpose = &p
	}
	if in.BudgetMin != nil {
		patch.BudgetMinSet = true
		patch.BudgetMin = coerceBudget(in.BudgetMin)
	}
	if in.BudgetMax != nil {
		patch.BudgetMaxSet = true
		patch.BudgetMax = coerceBudget(in.BudgetMax)
	}
	if in.Timeline != nil {
		t := checkEnum("timeline", in.Timeline, types.IsValidTimeline, false, &errs)
		patch.Timeline = &t
	}
	if in.Source != nil {
		s := checkEnum("source", in.Source, types.IsValidSource, false, &errs)
		patch.Source = &s
	}
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		if !types.IsValidStatus(status) {
			errs = append(errs, FieldError{"status", "must be one of " + strings.Join(types.ValidStatuses, ", ")})
		} else {
			patch.Status = &status
		}
	}
	if in.Notes != nil {
		patch.NotesSet = true
		patch.Notes = checkNotes(in.Notes, &errs)
	}
	if in.Tags != nil {
		tags := NormalizeTags(*in.Tags)
		patch.Tags = &tags
	}

	// Cross-field rules among present fields, same fixed order as create.
	if patch.PropertyType != nil && types.BHKRequired(*patch.PropertyType) && patch.BHK == nil {
		errs = append(errs, FieldError{"bhk", "is required for Apartment and Villa properties"})
	}
	if patch.BudgetMinSet || patch.BudgetMaxSet {
		errs = append(errs, CheckBudgetPair(patch.BudgetMin, patch.BudgetMax)...)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return patch, nil
}

// NormalizeTags trims every tag and drops empties. Order is preserved.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}
	return normalized
}

// ============================================
// Shared field rules
// ============================================

func checkFullName(v *string, required bool, errs *[]FieldError) string {
	name := ""
	if v != nil {
		name = strings.TrimSpace(*v)
	}
	if name == "" {
		if required {
			*errs = append(*errs, FieldError{"fullName", "is required"})
		} else {
			*errs = append(*errs, FieldError{"fullName", "must not be empty"})
		}
		return ""
	}
	if len(name) > 80 {
		*errs = append(*errs, FieldError{"fullName", "must not exceed 80 characters"})
	}
	return name
}

func checkEmail(v *string, errs *[]FieldError) *string {
	if v == nil {
		return nil
	}
	email := strings.TrimSpace(*v)
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		*errs = append(*errs, FieldError{"email", "is invalid"})
		return nil
	}
	return &email
}

func checkPhone(v *string, required bool, errs *[]FieldError) string {
	phone := ""
	if v != nil {
		phone = strings.TrimSpace(*v)
	}
	if phone == "" {
		if required {
			*errs = append(*errs, FieldError{"phone", "is required"})
		} else {
			*errs = append(*errs, FieldError{"phone", "must not be empty"})
		}
		return ""
	}
	if len(phone) > 15 {
		*errs = append(*errs, FieldError{"phone", "must not exceed 15 characters"})
	}
	return phone
}

func checkEnum(field string, v *string, isValid func(string) bool, required bool, errs *[]FieldError) string {
	value := ""
	if v != nil {
		value = strings.TrimSpace(*v)
	}
	if value == "" {
		if required {
			*errs = append(*errs, FieldError{field, "is required"})
		}
		return ""
	}
	if !isValid(value) {
		*errs = append(*errs, FieldError{field, "is not a recognized value"})
		return ""
	}
	return value
}

func checkNotes(v *string, errs *[]FieldError) *string {
	if v == nil {
		return nil
	}
	notes := strings.TrimSpace(*v)
	if notes == "" {
		return nil
	}
	if len(notes) > 1000 {
		*errs = append(*errs, FieldError{"notes", "must not exceed 1000 characters"})
	}
	return &notes
}

// CheckBudgetPair enforces budget ordering and positivity on whichever
// bounds are present. Callers merging a partial update against a stored
// record run it over the merged pair before writing.
func CheckBudgetPair(min, max *int64) []FieldError {
	var errs []FieldError
	if min != nil && max != nil && *max < *min {
		errs = append(errs, FieldError{"budgetMax", "must be greater than or equal to budgetMin"})
	}
	if min != nil && *min <= 0 {
		errs = append(errs, FieldError{"budgetMin", "must be a positive integer"})
	}
	if max != nil && *max <= 0 {
		errs = append(errs, FieldError{"budgetMax", "must be a positive integer"})
	}
	return errs
}

// coerceBudget turns a string/number/absent budget field into an
// optional integer. Empty strings and non-numeric input coerce to
// absent, never to zero.
func coerceBudget(v interface{}) *int64 {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	case float64:
		n := int64(value)
		if float64(n) != value {
			return nil
		}
		return &n
	case int:
		n := int64(value)
		return &n
	case int64:
		n := value
		return &n
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}
