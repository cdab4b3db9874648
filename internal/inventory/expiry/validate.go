package expiry

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/errors"
)

// MaxNameLength bounds category names
const MaxNameLength = 100

// ValidateRules checks a complete rule set before it is saved.
// All problems are reported together as a configuration error keyed by "<rule>.<field>".
// Active rules must partition the timeline: unique names, sort orders and thresholds,
// and no rule hidden behind an earlier rule with a larger or equal threshold.
func ValidateRules(rules []domain.ExpiryCategory) error {
	problems := make(map[string]string)
	add := func(key, msg string) {
		if prev, ok := problems[key]; ok {
			problems[key] = prev + "; " + msg
			return
		}
		problems[key] = msg
	}

	for i, r := range rules {
		ref := ruleRef(i, r)
		if r.Name == "" {
			add(ref+".name", "must not be empty")
		} else if utf8.RuneCountInString(r.Name) > MaxNameLength {
			add(ref+".name", "must be at most "+strconv.Itoa(MaxNameLength)+" characters")
		}
		if r.Name == string(StateActive) || r.Name == string(StateExpired) {
			add(ref+".name", fmt.Sprintf("%q is reserved", r.Name))
		}
		if r.DaysThreshold < 0 {
			add(ref+".days_threshold", "must not be negative")
		}
		if r.DiscountPercentage.IsNegative() || r.DiscountPercentage.GreaterThan(hundred) {
			add(ref+".discount_percentage", "must be between 0 and 100")
		}
		if r.SortOrder < 0 {
			add(ref+".sort_order", "must not be negative")
		}
	}

	sorted := SortRules(rules)
	bySortOrder := make(map[int]string, len(sorted))
	byThreshold := make(map[int]string, len(sorted))
	byName := make(map[string]bool, len(sorted))
	reach, reachName := -1, ""

	for _, r := range sorted {
		ref := r.Name
		if ref == "" {
			ref = r.ID
		}

		if r.Name != "" {
			if byName[r.Name] {
				add(ref+".name", fmt.Sprintf("%q is used by another active category", r.Name))
			}
			byName[r.Name] = true
		}

		if other, ok := bySortOrder[r.SortOrder]; ok {
			add(ref+".sort_order", fmt.Sprintf("sort_order %d is already used by %q", r.SortOrder, other))
		} else {
			bySortOrder[r.SortOrder] = r.Name
		}

		if other, ok := byThreshold[r.DaysThreshold]; ok {
			add(ref+".days_threshold", fmt.Sprintf("days_threshold %d is already used by %q", r.DaysThreshold, other))
		} else {
			byThreshold[r.DaysThreshold] = r.Name
			if r.DaysThreshold < reach {
				add(ref+".days_threshold", fmt.Sprintf(
					"unreachable: %q is evaluated first and already covers %d days", reachName, reach))
			}
		}

		if r.DaysThreshold > reach {
			reach, reachName = r.DaysThreshold, r.Name
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Configuration(problems)
}

func ruleRef(i int, r domain.ExpiryCategory) string {
	if r.Name != "" {
		return r.Name
	}
	return "rule_" + strconv.Itoa(i+1)
}
