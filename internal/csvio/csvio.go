package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/validation"
)

// Import hard caps
const (
	MaxImportRows  = 200
	MaxImportBytes = 5 * 1024 * 1024
)

var (
	ErrFileTooLarge  = fmt.Errorf("file exceeds the %d MB import limit", MaxImportBytes/(1024*1024))
	ErrTooManyRows   = fmt.Errorf("file exceeds the %d row import limit", MaxImportRows)
	ErrMissingHeader = fmt.Errorf("missing header row")
)

// RowError ties one failing CSV row (1-based, excluding the header) to
// its validation messages.
type RowError struct {
	Row    int                     `json:"row"`
	Errors []validation.FieldError `json:"errors"`
}

func (e RowError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("row %d: %s", e.Row, strings.Join(msgs, "; "))
}

// headerAliases maps normalized header names to canonical input fields.
// Unrecognized columns are ignored.
var headerAliases = map[string]string{
	"fullname":      "fullName",
	"full_name":     "fullName",
	"name":          "fullName",
	"email":         "email",
	"phone":         "phone",
	"city":          "city",
	"propertytype":  "propertyType",
	"property_type": "propertyType",
	"bhk":           "bhk",
	"purpose":       "purpose",
	"budgetmin":     "budgetMin",
	"budget_min":    "budgetMin",
	"budgetmax":     "budgetMax",
	"budget_max":    "budgetMax",
	"timeline":      "timeline",
	"source":        "source",
	"notes":         "notes",
	"tags":          "tags",
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(strings.ToLower(h))
	return strings.ReplaceAll(h, " ", "")
}

// ParseImport reads a CSV import file and validates every row before
// any row is considered writable: either every row passes and the
// normalized buyers are returned, or the aggregated per-row errors are
// returned and nothing else. The reader is capped at MaxImportBytes.
func ParseImport(r io.Reader) ([]*repository.Buyer, []RowError, error) {
	limited := &io.LimitedReader{R: r, N: MaxImportBytes + 1}
	reader := csv.NewReader(limited)
	reader.TrimLeadingSpace = true
	// Hand-edited files often have ragged rows; missing trailing cells
	// read as absent fields.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrMissingHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Column index -> canonical field name
	columns := make(map[int]string, len(header))
	for i, h := range header {
		if field, ok := headerAliases[normalizeHeader(h)]; ok {
			columns[i] = field
		}
	}

	var buyers []*repository.Buyer
	var rowErrors []RowError
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row %d: %w", row+1, err)
		}
		if limited.N <= 0 {
			return nil, nil, ErrFileTooLarge
		}

		row++
		if row > MaxImportRows {
			return nil, nil, ErrTooManyRows
		}

		input := rowToInput(record, columns)
		buyer, errs := validation.ValidateImportRow(input)
		if len(errs) > 0 {
			rowErrors = append(rowErrors, RowError{Row: row, Errors: errs})
			continue
		}
		buyers = append(buyers, buyer)
	}

	if limited.N <= 0 {
		return nil, nil, ErrFileTooLarge
	}
	if len(rowErrors) > 0 {
		return nil, rowErrors, nil
	}
	return buyers, nil, nil
}

func rowToInput(record []string, columns map[int]string) *validation.BuyerInput {
	input := &validation.BuyerInput{}
	for i, field := range columns {
		if i >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[i])
		if cell == "" {
			continue
		}
		value := cell
		switch field {
		case "fullName":
			input.FullName = &value
		case "email":
			input.Email = &value
		case "phone":
			input.Phone = &value
		case "city":
			input.City = &value
		case "propertyType":
			input.PropertyType = &value
		case "bhk":
			input.BHK = &value
		case "purpose":
			input.Purpose = &value
		case "budgetMin":
			input.BudgetMin = value
		case "budgetMax":
			input.BudgetMax = value
		case "timeline":
			input.Timeline = &value
		case "source":
			input.Source = &value
		case "notes":
			input.Notes = &value
		case "tags":
			tags := validation.NormalizeTags(strings.Split(value, ","))
			input.Tags = &tags
		}
	}
	return input
}

// exportHeader is the fixed sixteen-column export layout.
var exportHeader = []string{
	"Full Name", "Email", "Phone", "City", "Property Type", "BHK",
	"Purpose", "Budget Min", "Budget Max", "Timeline", "Source",
	"Status", "Notes", "Tags", "Created At", "Updated At",
}

// WriteExport streams the buyers as CSV in the documented column order.
// Timestamps are ISO-8601; tags are comma-joined.
func WriteExport(w io.Writer, buyers []*repository.Buyer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, b := range buyers {
		record := []string{
			b.FullName,
			strPtr(b.Email),
			b.Phone,
			b.City,
			b.PropertyType,
			strPtr(b.BHK),
			b.Purpose,
			intPtr(b.BudgetMin),
			intPtr(b.BudgetMax),
			b.Timeline,
			b.Source,
			b.Status,
			strPtr(b.Notes),
			strings.Join(b.Tags, ","),
			b.CreatedAt.UTC().Format(time.RFC3339),
			b.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
