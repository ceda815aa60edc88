package diff

import (
	"fmt"
	"strings"

	"github.com/estatedesk/lead-intake-backend/internal/repository"
)

// CreatedKey is the reserved diff key marking whole-record creation.
const CreatedKey = "created"

// Changes maps a changed field name to its [old, new] value pair.
type Changes map[string][2]interface{}

// Compute returns the field-level differences between two versions of
// the same buyer under structural equality. Tags are compared
// element-wise in order, so reordering counts as a change.
func Compute(old, new *repository.Buyer) Changes {
	changes := Changes{}

	if old.FullName != new.FullName {
		changes["fullName"] = [2]interface{}{old.FullName, new.FullName}
	}
	if !equalStringPtr(old.Email, new.Email) {
		changes["email"] = [2]interface{}{strPtrValue(old.Email), strPtrValue(new.Email)}
	}
	if old.Phone != new.Phone {
		changes["phone"] = [2]interface{}{old.Phone, new.Phone}
	}
	if old.City != new.City {
		changes["city"] = [2]interface{}{old.City, new.City}
	}
	if old.PropertyType != new.PropertyType {
		changes["propertyType"] = [2]interface{}{old.PropertyType, new.PropertyType}
	}
	if !equalStringPtr(old.BHK, new.BHK) {
		changes["bhk"] = [2]interface{}{strPtrValue(old.BHK), strPtrValue(new.BHK)}
	}
	if old.Purpose != new.Purpose {
		changes["purpose"] = [2]interface{}{old.Purpose, new.Purpose}
	}
	if !equalInt64Ptr(old.BudgetMin, new.BudgetMin) {
		changes["budgetMin"] = [2]interface{}{intPtrValue(old.BudgetMin), intPtrValue(new.BudgetMin)}
	}
	if !equalInt64Ptr(old.BudgetMax, new.BudgetMax) {
		changes["budgetMax"] = [2]interface{}{intPtrValue(old.BudgetMax), intPtrValue(new.BudgetMax)}
	}
	if old.Timeline != new.Timeline {
		changes["timeline"] = [2]interface{}{old.Timeline, new.Timeline}
	}
	if old.Source != new.Source {
		changes["source"] = [2]interface{}{old.Source, new.Source}
	}
	if old.Status != new.Status {
		changes["status"] = [2]interface{}{old.Status, new.Status}
	}
	if !equalStringPtr(old.Notes, new.Notes) {
		changes["notes"] = [2]interface{}{strPtrValue(old.Notes), strPtrValue(new.Notes)}
	}
	if !equalTags(old.Tags, new.Tags) {
		changes["tags"] = [2]interface{}{old.Tags, new.Tags}
	}

	return changes
}

// StatusChange builds the fixed single-field diff used by the narrow
// status-transition path.
func StatusChange(old, new string) Changes {
	return Changes{"status": {old, new}}
}

// Created builds the synthetic creation entry {created: [null, record]}.
// The record snapshot holds the validated input values; server-assigned
// bookkeeping fields are not part of it.
func Created(b *repository.Buyer) Changes {
	record := map[string]interface{}{
		"fullName":     b.FullName,
		"email":        strPtrValue(b.Email),
		"phone":        b.Phone,
		"city":         b.City,
		"propertyType": b.PropertyType,
		"bhk":          strPtrValue(b.BHK),
		"purpose":      b.Purpose,
		"budgetMin":    intPtrValue(b.BudgetMin),
		"budgetMax":    intPtrValue(b.BudgetMax),
		"timeline":     b.Timeline,
		"source":       b.Source,
		"status":       b.Status,
		"notes":        strPtrValue(b.Notes),
		"tags":         b.Tags,
	}
	return Changes{CreatedKey: {nil, record}}
}

// Humanize renders one diff entry as a sentence for display. The
// reserved "created" key reads as record creation; transitions to and
// from empty values read as "set to" and "removed".
func Humanize(field string, old, new interface{}) string {
	if field == CreatedKey {
		return "Lead created"
	}

	label := humanLabel(field)
	oldEmpty := isEmptyValue(old)
	newEmpty := isEmptyValue(new)

	switch {
	case oldEmpty && newEmpty:
		return label + " unchanged"
	case oldEmpty:
		return fmt.Sprintf("%s set to %v", label, renderValue(new))
	case newEmpty:
		return label + " removed"
	default:
		return fmt.Sprintf("%s changed from %v to %v", label, renderValue(old), renderValue(new))
	}
}

var fieldLabels = map[string]string{
	"fullName":     "Full name",
	"email":        "Email",
	"phone":        "Phone",
	"city":         "City",
	"propertyType": "Property type",
	"bhk":          "BHK",
	"purpose":      "Purpose",
	"budgetMin":    "Budget min",
	"budgetMax":    "Budget max",
	"timeline":     "Timeline",
	"source":       "Source",
	"status":       "Status",
	"notes":        "Notes",
	"tags":         "Tags",
}

func humanLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

func renderValue(v interface{}) interface{} {
	if tags, ok := v.([]string); ok {
		return strings.Join(tags, ", ")
	}
	if tags, ok := v.([]interface{}); ok {
		parts := make([]string, len(tags))
		for i, t := range tags {
			parts[i] = fmt.Sprintf("%v", t)
		}
		return strings.Join(parts, ", ")
	}
	return v
}

func isEmptyValue(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []string:
		return len(value) == 0
	case []interface{}:
		return len(value) == 0
	default:
		return false
	}
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func strPtrValue(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intPtrValue(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
