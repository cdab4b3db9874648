package service_test

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/repository"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var today = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeLots struct {
	mu         sync.Mutex
	lots       map[string]*domain.Lot
	lastFilter *repository.LotFilter
	buckets    []repository.ExpiryBucket
	bucketHits int
	listCalls  int
}

func newFakeLots(lots ...*domain.Lot) *fakeLots {
	f := &fakeLots{lots: make(map[string]*domain.Lot)}
	for _, l := range lots {
		f.lots[l.ID] = l
	}
	return f
}

func (f *fakeLots) GetByID(_ context.Context, id string) (*domain.Lot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lots[id]
	if !ok {
		return nil, errors.NotFound("lot")
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLots) GetForUpdate(ctx context.Context, id string) (*domain.Lot, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeLots) List(_ context.Context, filter repository.LotFilter) ([]*domain.Lot, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastFilter = &filter

	var out []*domain.Lot
	for _, l := range f.lots {
		if !filter.IncludeExhausted && l.Quantity == 0 {
			continue
		}
		if filter.ExpiresFrom != nil && l.ExpiryDate.Before(*filter.ExpiresFrom) {
			continue
		}
		if filter.ExpiresTo != nil && l.ExpiryDate.After(*filter.ExpiresTo) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out, int64(len(out)), nil
}

func (f *fakeLots) UpdateQuantity(_ context.Context, id string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lots[id]
	if !ok {
		return errors.NotFound("lot")
	}
	l.Quantity = quantity
	return nil
}

func (f *fakeLots) SellableByExpiry(context.Context) ([]repository.ExpiryBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucketHits++
	return f.buckets, nil
}

type fakeAdjustments struct {
	created []domain.StockAdjustment
}

func (f *fakeAdjustments) Create(_ context.Context, adj *domain.StockAdjustment) error {
	adj.ID = "adj-1"
	adj.CreatedAt = today
	f.created = append(f.created, *adj)
	return nil
}

func (f *fakeAdjustments) ListByLot(_ context.Context, lotID string) ([]domain.StockAdjustment, error) {
	var out []domain.StockAdjustment
	for _, a := range f.created {
		if a.LotID == lotID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeCategories struct {
	rules   []domain.ExpiryCategory
	locks   int
	nextID  int
	updates int
}

func (f *fakeCategories) List(_ context.Context, includeInactive bool) ([]domain.ExpiryCategory, error) {
	var out []domain.ExpiryCategory
	for _, r := range f.rules {
		if includeInactive || r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCategories) Lock(context.Context) error {
	f.locks++
	return nil
}

func (f *fakeCategories) GetByID(_ context.Context, id string) (*domain.ExpiryCategory, error) {
	for _, r := range f.rules {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, errors.NotFound("expiry category")
}

func (f *fakeCategories) Create(_ context.Context, c *domain.ExpiryCategory) error {
	f.nextID++
	c.ID = "cat-new-" + strconv.Itoa(f.nextID)
	f.rules = append(f.rules, *c)
	return nil
}

func (f *fakeCategories) Update(_ context.Context, c *domain.ExpiryCategory) error {
	for i := range f.rules {
		if f.rules[i].ID == c.ID {
			f.rules[i] = *c
			f.updates++
			return nil
		}
	}
	return errors.NotFound("expiry category")
}

type fakePublisher struct {
	adjusted []string
	changed  []string
}

func (p *fakePublisher) PublishStockAdjusted(_ context.Context, lot *domain.Lot, adj *domain.StockAdjustment) {
	p.adjusted = append(p.adjusted, lot.ID+":"+string(adj.AdjustmentType))
}

func (p *fakePublisher) PublishExpiryCategoryChanged(_ context.Context, cat *domain.ExpiryCategory, action string) {
	p.changed = append(p.changed, cat.Name+":"+action)
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) {
	c.calls++
}

func category(id, name string, threshold int, discount int64, sortOrder int) domain.ExpiryCategory {
	return domain.ExpiryCategory{
		ID:                 id,
		Name:               name,
		DaysThreshold:      threshold,
		DiscountPercentage: decimal.NewFromInt(discount),
		SortOrder:          sortOrder,
		IsActive:           true,
	}
}

func defaultCategories() *fakeCategories {
	return &fakeCategories{rules: []domain.ExpiryCategory{
		category("cat-clearance", "clearance", 30, 50, 1),
		category("cat-short", "short_dated", 90, 25, 2),
	}}
}

func lot(id string, qty int, expiryOffset int, cost string) *domain.Lot {
	return &domain.Lot{
		ID:            id,
		ProductID:     "prod-" + id,
		SupplierID:    "sup-1",
		Quantity:      qty,
		ExpiryDate:    day(expiryOffset),
		UnitCost:      decimal.RequireFromString(cost),
		SalesCategory: domain.SalesCategoryRegular,
	}
}

type memCache struct {
	mu      sync.Mutex
	values  map[string]string
	sets    int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	c.sets++
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.deletes++
	return nil
}

func (c *memCache) CacheKey(name string) string {
	return "ms:cache:" + name
}
