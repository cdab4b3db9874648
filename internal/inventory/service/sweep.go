package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/expiry"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/metrics"
	"github.com/medsupply/medsupply-backend/pkg/redis"
	"github.com/shopspring/decimal"
)

const dashboardCacheName = "expiry-dashboard"

// DashboardCache stores the serialized dashboard. *redis.Client satisfies it.
type DashboardCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(name string) string
}

// DashboardBucket aggregates the sellable lots sharing one classification label
type DashboardBucket struct {
	State           expiry.State    `json:"state"`
	Label           string          `json:"label"`
	Discount        decimal.Decimal `json:"discount_percentage"`
	Lots            int             `json:"lots"`
	Units           int             `json:"units"`
	CostValue       decimal.Decimal `json:"cost_value"`
	DiscountedValue decimal.Decimal `json:"discounted_value"`
}

// Dashboard is a point-in-time summary of the sellable stock by expiry state.
// It is derived data and never the source of truth.
type Dashboard struct {
	AsOf            string            `json:"as_of"`
	GeneratedAt     time.Time         `json:"generated_at"`
	TotalLots       int               `json:"total_lots"`
	TotalUnits      int               `json:"total_units"`
	CostValue       decimal.Decimal   `json:"cost_value"`
	DiscountedValue decimal.Decimal   `json:"discounted_value"`
	Buckets         []DashboardBucket `json:"buckets"`
}

// ExpirySweep computes the expiry dashboard and keeps it cached.
// Without a DashboardCache the last result is held in memory.
type ExpirySweep struct {
	lots       LotStore
	rules      RuleSource
	policy     expiry.Policy
	cache      DashboardCache
	ttl        time.Duration
	inventory  *metrics.InventoryMetrics
	jobMetrics *metrics.JobMetrics
	logger     *logger.Logger
	now        func() time.Time

	mu     sync.RWMutex
	last   *Dashboard
	lastAt time.Time
}

// NewExpirySweep creates a sweep. cache and both metrics may be nil.
func NewExpirySweep(lots LotStore, rules RuleSource, policy expiry.Policy, cache DashboardCache, ttl time.Duration, inv *metrics.InventoryMetrics, jobs *metrics.JobMetrics, log *logger.Logger) *ExpirySweep {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ExpirySweep{
		lots:       lots,
		rules:      rules,
		policy:     policy,
		cache:      cache,
		ttl:        ttl,
		inventory:  inv,
		jobMetrics: jobs,
		logger:     log.WithComponent("expiry-sweep"),
		now:        time.Now,
	}
}

// WithClock replaces the sweep clock
func (s *ExpirySweep) WithClock(now func() time.Time) *ExpirySweep {
	s.now = now
	return s
}

// Compute classifies the sellable stock as of now
func (s *ExpirySweep) Compute(ctx context.Context) (*Dashboard, error) {
	rules, err := s.rules.List(ctx, false)
	if err != nil {
		return nil, err
	}
	buckets, err := s.lots.SellableByExpiry(ctx)
	if err != nil {
		return nil, err
	}

	c := expiry.NewClassifier(rules, s.policy)
	now := s.now()

	// every label is reported, in evaluation order, even when empty
	order := []string{string(expiry.StateActive)}
	byLabel := map[string]*DashboardBucket{
		string(expiry.StateActive): {State: expiry.StateActive, Label: string(expiry.StateActive)},
	}
	for _, r := range c.Rules() {
		if _, ok := byLabel[r.Name]; ok {
			continue
		}
		order = append(order, r.Name)
		byLabel[r.Name] = &DashboardBucket{State: expiry.StateDiscounted, Label: r.Name, Discount: r.DiscountPercentage}
	}
	order = append(order, string(expiry.StateExpired))
	byLabel[string(expiry.StateExpired)] = &DashboardBucket{
		State:    expiry.StateExpired,
		Label:    string(expiry.StateExpired),
		Discount: s.policy.ExpiredDiscount,
	}

	d := &Dashboard{
		AsOf:        now.UTC().Format("2006-01-02"),
		GeneratedAt: now,
	}
	for _, b := range buckets {
		cl := c.Classify(b.ExpiryDate, now)
		agg := byLabel[cl.Label]

		discounted := decimal.Zero
		if cl.Sellable {
			discounted = b.Value.Mul(decimal.NewFromInt(100).Sub(cl.DiscountPercentage)).Div(decimal.NewFromInt(100)).Round(2)
		}

		agg.Lots += b.Lots
		agg.Units += b.Units
		agg.CostValue = agg.CostValue.Add(b.Value)
		agg.DiscountedValue = agg.DiscountedValue.Add(discounted)

		d.TotalLots += b.Lots
		d.TotalUnits += b.Units
		d.CostValue = d.CostValue.Add(b.Value)
		d.DiscountedValue = d.DiscountedValue.Add(discounted)
	}

	d.Buckets = make([]DashboardBucket, 0, len(order))
	for _, label := range order {
		d.Buckets = append(d.Buckets, *byLabel[label])
	}
	return d, nil
}

// Refresh recomputes the dashboard, stores it and updates the lot gauges
func (s *ExpirySweep) Refresh(ctx context.Context) (*Dashboard, error) {
	d, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}

	states := make(map[string]int, 3)
	for _, b := range d.Buckets {
		states[string(b.State)] += b.Lots
	}
	s.inventory.SetLotsByState(states)

	s.store(ctx, d)
	return d, nil
}

// Dashboard returns the cached dashboard, computing it on a miss
func (s *ExpirySweep) Dashboard(ctx context.Context) (*Dashboard, error) {
	if d := s.cached(ctx); d != nil {
		return d, nil
	}
	return s.Refresh(ctx)
}

// Invalidate drops the cached dashboard
func (s *ExpirySweep) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cache.CacheKey(dashboardCacheName)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to drop cached dashboard")
	}
}

func (s *ExpirySweep) cached(ctx context.Context) *Dashboard {
	if s.cache == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.last != nil && s.now().Sub(s.lastAt) < s.ttl {
			return s.last
		}
		return nil
	}

	raw, err := s.cache.Get(ctx, s.cache.CacheKey(dashboardCacheName))
	if err != nil {
		if !redis.IsMiss(err) {
			s.logger.Warn().Err(err).Msg("failed to read cached dashboard")
		}
		return nil
	}

	var d Dashboard
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable cached dashboard")
		return nil
	}
	return &d
}

func (s *ExpirySweep) store(ctx context.Context, d *Dashboard) {
	if s.cache == nil {
		s.mu.Lock()
		s.last, s.lastAt = d, s.now()
		s.mu.Unlock()
		return
	}

	payload, err := json.Marshal(d)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode dashboard")
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey(dashboardCacheName), string(payload), s.ttl); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache dashboard")
	}
}
