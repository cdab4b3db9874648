package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medsupply/medsupply-backend/pkg/errors"
)

// PostgreSQL SQLSTATE codes the repositories translate
const (
	codeNotNull    = "23502"
	codeForeignKey = "23503"
	codeUnique     = "23505"
	codeCheck      = "23514"
)

// constraintRule maps a constraint name fragment to the request field it guards
type constraintRule struct {
	fragment string
	field    string
	message  string
}

var checkRules = []constraintRule{
	{"quantity_non_negative", "quantity", "must not be negative"},
	{"unit_cost_non_negative", "unit_cost", "must not be negative"},
	{"sales_category_valid", "sales_category", "must be one of: regular, short_dated, expired"},
	{"discount_range", "discount_percentage", "must be between 0 and 100"},
	{"threshold_non_negative", "days_threshold", "must not be negative"},
	{"adjustments_type_valid", "type", "must be one of: sale, write_off, correction"},
}

var uniqueRules = []constraintRule{
	{fragment: "expiry_categories_active_sort_order", message: "an active expiry category already uses this sort order"},
	{fragment: "products_sku_manufacturer", message: "a product with this SKU already exists for the manufacturer"},
	{fragment: "manufacturers_name_lower", message: "a manufacturer with this name already exists"},
}

func findRule(rules []constraintRule, constraint string) (constraintRule, bool) {
	for _, r := range rules {
		if strings.Contains(constraint, r.fragment) {
			return r, true
		}
	}
	return constraintRule{}, false
}

// MapPQError translates a constraint violation into an AppError. It returns
// nil for anything that is not a pq.Error or not a constraint violation.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch string(pqErr.Code) {
	case codeCheck:
		if r, ok := findRule(checkRules, pqErr.Constraint); ok {
			return errors.Validation(map[string]string{r.field: r.message})
		}
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	case codeUnique:
		if r, ok := findRule(uniqueRules, pqErr.Constraint); ok {
			return errors.Conflict(r.message)
		}
		return errors.Conflict("a record with these values already exists")

	case codeForeignKey:
		return errors.BadRequest("referenced record does not exist")

	case codeNotNull:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{col: "must not be empty"})
	}
	return nil
}
