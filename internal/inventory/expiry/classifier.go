// Package expiry derives the lifecycle state of a lot from its expiry date.
// Classification is computed at read time and never persisted.
package expiry

import (
	"sort"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/config"
	"github.com/shopspring/decimal"
)

// State is the derived lifecycle state of a lot
type State string

const (
	StateActive     State = "active"
	StateDiscounted State = "discounted"
	StateExpired    State = "expired"
)

// ExpiredAction decides what happens to lots past their expiry date
type ExpiredAction string

const (
	ActionMarkdown       ExpiredAction = "markdown"
	ActionRemoveFromSale ExpiredAction = "remove_from_sale"
)

var hundred = decimal.NewFromInt(100)

// Policy covers the implicit expired state, which no rule can express
type Policy struct {
	ExpiredDiscount decimal.Decimal
	ExpiredAction   ExpiredAction
}

// DefaultPolicy marks expired lots down by 100 percent
func DefaultPolicy() Policy {
	return Policy{ExpiredDiscount: hundred, ExpiredAction: ActionMarkdown}
}

// PolicyFromConfig builds the expired policy from configuration
func PolicyFromConfig(cfg config.ExpiryConfig) Policy {
	return Policy{
		ExpiredDiscount: decimal.NewFromFloat(cfg.ExpiredDiscountPercentage),
		ExpiredAction:   ExpiredAction(cfg.ExpiredAction),
	}
}

// Classification is the read-time view of a lot's lifecycle
type Classification struct {
	State              State           `json:"state"`
	Label              string          `json:"label"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DaysRemaining      int             `json:"days_remaining"`
	CategoryID         string          `json:"category_id,omitempty"`
	Sellable           bool            `json:"sellable"`
}

// DaysRemaining counts whole calendar days from today to expiry, both taken as UTC dates.
// The result is negative once the expiry date has passed.
func DaysRemaining(expiry, today time.Time) int {
	return int((utcDate(expiry).Unix() - utcDate(today).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Classifier evaluates a fixed rule set. Safe for concurrent use.
type Classifier struct {
	rules  []domain.ExpiryCategory
	policy Policy
}

// NewClassifier keeps the active rules in evaluation order
func NewClassifier(rules []domain.ExpiryCategory, policy Policy) *Classifier {
	return &Classifier{rules: SortRules(rules), policy: policy}
}

// Rules returns the active rules in evaluation order
func (c *Classifier) Rules() []domain.ExpiryCategory {
	return append([]domain.ExpiryCategory(nil), c.rules...)
}

// SortRules returns the active rules ordered by sort_order, then threshold, then id
func SortRules(rules []domain.ExpiryCategory) []domain.ExpiryCategory {
	active := make([]domain.ExpiryCategory, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.DaysThreshold != b.DaysThreshold {
			return a.DaysThreshold < b.DaysThreshold
		}
		return a.ID < b.ID
	})
	return active
}

// Classify derives the state of a lot expiring on expiry, as seen on today
func (c *Classifier) Classify(expiry, today time.Time) Classification {
	days := DaysRemaining(expiry, today)

	if days < 0 {
		return Classification{
			State:              StateExpired,
			Label:              string(StateExpired),
			DiscountPercentage: c.policy.ExpiredDiscount,
			DaysRemaining:      days,
			Sellable:           c.policy.ExpiredAction != ActionRemoveFromSale,
		}
	}

	for _, r := range c.rules {
		if days <= r.DaysThreshold {
			return Classification{
				State:              StateDiscounted,
				Label:              r.Name,
				DiscountPercentage: r.DiscountPercentage,
				DaysRemaining:      days,
				CategoryID:         r.ID,
				Sellable:           true,
			}
		}
	}

	return Classification{
		State:              StateActive,
		Label:              string(StateActive),
		DiscountPercentage: decimal.Zero,
		DaysRemaining:      days,
		Sellable:           true,
	}
}

// Classify is the one-shot form of Classifier.Classify
func Classify(expiry, today time.Time, rules []domain.ExpiryCategory, policy Policy) Classification {
	return NewClassifier(rules, policy).Classify(expiry, today)
}

// DiscountedPrice applies the classification discount to unitCost, rounded to cents.
// Lots removed from sale have no price.
func DiscountedPrice(unitCost decimal.Decimal, c Classification) decimal.Decimal {
	if !c.Sellable {
		return decimal.Zero
	}
	return unitCost.Mul(hundred.Sub(c.DiscountPercentage)).Div(hundred).Round(2)
}
