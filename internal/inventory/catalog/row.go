package catalog

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// Record is a fully parsed, valid catalog row
type Record struct {
	Line                 int             `field:"-"`
	SKU                  string          `field:"sku" validate:"max=100"`
	ProductName          string          `field:"product_name" validate:"required,max=255"`
	Manufacturer         string          `field:"manufacturer" validate:"max=255"`
	ManufacturerID       *string         `field:"-"`
	Quantity             int             `field:"quantity" validate:"gte=0"`
	ExpiryDate           time.Time       `field:"expiry_date"`
	UnitCost             decimal.Decimal `field:"unit_cost"`
	LotNumber            string          `field:"lot_number" validate:"max=100"`
	TaxCode              string          `field:"tax_code" validate:"max=50"`
	RequiresLicense      bool            `field:"requires_license"`
	PrescriptionRequired bool            `field:"prescription_required"`
	ExportRestricted     bool            `field:"export_restricted"`
}

// RowResult is the tagged outcome of validating one row: a Record or the row's error.
// An invalid row carries exactly one RowError covering all of its failed fields.
type RowResult struct {
	Line   int
	Record *Record
	Errors []domain.RowError
}

// Valid wraps an accepted record
func Valid(rec Record) RowResult {
	return RowResult{Line: rec.Line, Record: &rec}
}

// Invalid wraps a rejected row, folding its per-field problems into one entry
func Invalid(line int, errs ...domain.RowError) RowResult {
	return RowResult{Line: line, Errors: []domain.RowError{combine(line, errs)}}
}

func combine(line int, errs []domain.RowError) domain.RowError {
	if len(errs) == 1 {
		e := errs[0]
		e.Row = line
		return e
	}
	out := domain.RowError{Row: line, Field: "row"}
	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		if !containsString(out.Fields, e.Field) {
			out.Fields = append(out.Fields, e.Field)
		}
		reasons = append(reasons, e.Field+": "+e.Reason)
	}
	if len(out.Fields) > 0 {
		out.Field = out.Fields[0]
	}
	out.Reason = strings.Join(reasons, "; ")
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// OK reports whether the row was accepted
func (r RowResult) OK() bool {
	return r.Record != nil && len(r.Errors) == 0
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02.01.2006", time.RFC3339}

// latest date Excel can represent
const maxExcelSerial = 2958465

// column limits of lots.quantity (INTEGER) and lots.unit_cost (NUMERIC(12,2))
var (
	maxQuantity = decimal.NewFromInt(math.MaxInt32)
	maxUnitCost = decimal.RequireFromString("9999999999.99")
)

var recordValidate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("field")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// RowValidator checks rows against one session's context
type RowValidator struct {
	SalesCategory domain.SalesCategory
	// Cutoff is the earliest acceptable expiry date
	Cutoff time.Time
	// Manufacturers maps ManufacturerKey(name) to the manufacturer id
	Manufacturers map[string]string
}

// NewRowValidator derives the expiry cutoff from today and cutoffDays
func NewRowValidator(category domain.SalesCategory, today time.Time, cutoffDays int, manufacturers map[string]string) *RowValidator {
	t := today.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &RowValidator{
		SalesCategory: category,
		Cutoff:        day.AddDate(0, 0, -cutoffDays),
		Manufacturers: manufacturers,
	}
}

// Validate parses raw into a Record, collecting every problem of the row
func (v *RowValidator) Validate(raw RawRow) RowResult {
	var errs []domain.RowError
	fail := func(f Field, format string, args ...interface{}) {
		errs = append(errs, domain.RowError{Row: raw.Line, Field: string(f), Reason: fmt.Sprintf(format, args...)})
	}

	rec := Record{
		Line:         raw.Line,
		SKU:          raw.Get(FieldSKU),
		ProductName:  raw.Get(FieldProductName),
		Manufacturer: raw.Get(FieldManufacturer),
		LotNumber:    raw.Get(FieldLotNumber),
		TaxCode:      raw.Get(FieldTaxCode),
	}

	if qty, err := parseQuantity(raw.Get(FieldQuantity)); err != nil {
		fail(FieldQuantity, "%v", err)
	} else {
		rec.Quantity = qty
	}

	if cost, err := parseCost(raw.Get(FieldUnitCost)); err != nil {
		fail(FieldUnitCost, "%v", err)
	} else {
		rec.UnitCost = cost
	}

	if expiry, err := parseDate(raw.Get(FieldExpiryDate)); err != nil {
		fail(FieldExpiryDate, "%v", err)
	} else if expiry.Before(v.Cutoff) {
		fail(FieldExpiryDate, "expiry date %s is before the %s cutoff %s",
			expiry.Format("2006-01-02"), v.SalesCategory, v.Cutoff.Format("2006-01-02"))
	} else {
		rec.ExpiryDate = expiry
	}

	if rec.Manufacturer != "" {
		if id, ok := v.Manufacturers[ManufacturerKey(rec.Manufacturer)]; ok {
			rec.ManufacturerID = &id
		} else {
			fail(FieldManufacturer, "unknown manufacturer %q", rec.Manufacturer)
		}
	}

	flags := []struct {
		field Field
		dst   *bool
	}{
		{FieldRequiresLicense, &rec.RequiresLicense},
		{FieldPrescriptionRequired, &rec.PrescriptionRequired},
		{FieldExportRestricted, &rec.ExportRestricted},
	}
	for _, flag := range flags {
		b, err := parseFlag(raw.Get(flag.field))
		if err != nil {
			fail(flag.field, "%v", err)
			continue
		}
		*flag.dst = b
	}

	if err := recordValidate.Struct(rec); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				fail(Field(e.Field()), "%s", describe(e))
			}
		}
	}

	if len(errs) > 0 {
		return Invalid(raw.Line, errs...)
	}
	return Valid(rec)
}

// ValidateRows validates rows in a pool of at most workers goroutines.
// Results keep input order; duplicates are resolved afterwards in a single ordered pass.
func ValidateRows(ctx context.Context, rows []RawRow, v *RowValidator, workers int) ([]RowResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]RowResult, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = v.Validate(rows[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	markDuplicates(results)
	return results, nil
}

// markDuplicates rejects later rows that repeat an earlier accepted row's identity
func markDuplicates(results []RowResult) {
	seen := make(map[string]int, len(results))
	for i, res := range results {
		if !res.OK() {
			continue
		}
		key := res.Record.identity()
		if first, ok := seen[key]; ok {
			results[i] = Invalid(res.Line, domain.RowError{
				Row:    res.Line,
				Field:  "row",
				Reason: fmt.Sprintf("duplicates row %d", first),
			})
			continue
		}
		seen[key] = res.Line
	}
}

func (r *Record) identity() string {
	product := strings.ToLower(r.SKU)
	if product == "" {
		product = "name:" + strings.ToLower(r.ProductName)
	}
	return strings.Join([]string{
		product,
		ManufacturerKey(r.Manufacturer),
		strings.ToLower(r.LotNumber),
		r.ExpiryDate.Format("2006-01-02"),
	}, "|")
}

// ManufacturerKey normalizes a manufacturer name for lookups
func ManufacturerKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func parseQuantity(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("quantity is required")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("quantity %q is not a number", raw)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("quantity %q must be a whole number", raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("quantity must not be negative")
	}
	if d.GreaterThan(maxQuantity) {
		return 0, fmt.Errorf("quantity %s exceeds the maximum of %s", d.String(), maxQuantity.String())
	}
	return int(d.IntPart()), nil
}

func parseCost(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(strings.TrimLeft(raw, "$€£ "))
	if value == "" {
		return decimal.Zero, fmt.Errorf("unit cost is required")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("unit cost %q is not a number", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("unit cost must not be negative")
	}
	if !d.Equal(d.Truncate(2)) {
		return decimal.Zero, fmt.Errorf("unit cost %q has more than 2 decimal places", raw)
	}
	if d.GreaterThan(maxUnitCost) {
		return decimal.Zero, fmt.Errorf("unit cost %s exceeds the maximum of %s", d.String(), maxUnitCost.StringFixed(2))
	}
	return d, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("expiry date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial >= 1 && serial <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("expiry date %q is not a recognized date", raw)
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "yes", "y", "x":
		return true, nil
	}
	return false, fmt.Errorf("%q is not a yes/no value", raw)
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "gte":
		return "must be at least " + e.Param()
	default:
		return "invalid value"
	}
}
