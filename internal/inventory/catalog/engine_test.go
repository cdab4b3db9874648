package catalog_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medsupply/medsupply-backend/internal/inventory/catalog"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/config"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

// --- fakes ---

type storeState struct {
	lots     []domain.Lot
	products []domain.Product
}

func (s storeState) clone() storeState {
	return storeState{
		lots:     append([]domain.Lot(nil), s.lots...),
		products: append([]domain.Product(nil), s.products...),
	}
}

// memStore applies a commit to a copy of its state and keeps the copy only on success
type memStore struct {
	mu        sync.Mutex
	state     storeState
	failLotAt int // 1-based CreateLot call that fails, 0 for never
	started   chan struct{}
	release   chan struct{}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx catalog.ScopeTx) error) error {
	if m.started != nil {
		close(m.started)
		<-m.release
	}

	m.mu.Lock()
	work := &memTx{state: m.state.clone(), failLotAt: m.failLotAt}
	m.mu.Unlock()

	if err := fn(ctx, work); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work.state
	m.mu.Unlock()
	return nil
}

func (m *memStore) snapshot() storeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memTx struct {
	state     storeState
	lotCalls  int
	failLotAt int
}

func (tx *memTx) SupersedeScope(_ context.Context, scope domain.Scope, sessionID string, at time.Time) (int, error) {
	n := 0
	for i := range tx.state.lots {
		lot := &tx.state.lots[i]
		if lot.Scope() != scope || lot.Quantity == 0 {
			continue
		}
		qty := lot.Quantity
		stamp := at
		session := sessionID
		lot.SupersededQuantity = &qty
		lot.SupersededAt = &stamp
		lot.SupersededBySession = &session
		lot.Quantity = 0
		n++
	}
	return n, nil
}

func (tx *memTx) FindProductBySKU(_ context.Context, sku string, manufacturerID *string) (*domain.Product, error) {
	for _, p := range tx.state.products {
		if p.GlobalSKU == nil || *p.GlobalSKU != sku {
			continue
		}
		switch {
		case p.ManufacturerID == nil && manufacturerID == nil,
			p.ManufacturerID != nil && manufacturerID != nil && *p.ManufacturerID == *manufacturerID:
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreateProduct(_ context.Context, p *domain.Product) error {
	tx.state.products = append(tx.state.products, *p)
	return nil
}

func (tx *memTx) CreateLot(_ context.Context, lot *domain.Lot) error {
	tx.lotCalls++
	if tx.lotCalls == tx.failLotAt {
		return fmt.Errorf("insert lot: connection reset")
	}
	tx.state.lots = append(tx.state.lots, *lot)
	return nil
}

type fakeMaster struct{}

func (fakeMaster) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	if id == "sup-missing" {
		return nil, errors.NotFound("supplier")
	}
	return &domain.Supplier{ID: id, Name: "Supplier " + id, IsActive: true}, nil
}

func (fakeMaster) ManufacturersByName(_ context.Context, names []string) (map[string]string, error) {
	known := map[string]string{"acme medical": "mfr-acme"}
	out := make(map[string]string)
	for _, n := range names {
		if id, ok := known[catalog.ManufacturerKey(n)]; ok {
			out[catalog.ManufacturerKey(n)] = id
		}
	}
	return out, nil
}

type memArchive struct {
	mu       sync.Mutex
	sessions map[string]*domain.ImportSession
}

func (a *memArchive) Archive(_ context.Context, s *domain.ImportSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[s.ID] = s
	return nil
}

func (a *memArchive) Get(_ context.Context, id string) (*domain.ImportSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[id]; ok {
		return s, nil
	}
	return nil, errors.NotFound("import session")
}

func (a *memArchive) ListByScope(_ context.Context, scope domain.Scope, limit int) ([]*domain.ImportSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []*domain.ImportSession{}
	for _, s := range a.sessions {
		if s.Scope() == scope && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordedEvents) PublishImportCompleted(_ context.Context, s *domain.ImportSession) {
	r.add("completed")
}

func (r *recordedEvents) PublishImportFailed(_ context.Context, s *domain.ImportSession, stage string) {
	r.add("failed:" + stage)
}

func (r *recordedEvents) PublishLotsSuperseded(_ context.Context, s *domain.ImportSession) {
	r.add(fmt.Sprintf("superseded:%d", s.SupersededLots))
}

func (r *recordedEvents) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type harness struct {
	engine  *catalog.Engine
	store   *memStore
	archive *memArchive
	events  *recordedEvents
}

func newHarness(t *testing.T, opts catalog.Options, locker catalog.ScopeLocker) *harness {
	t.Helper()
	h := &harness{
		store:   &memStore{state: seedState()},
		archive: &memArchive{sessions: make(map[string]*domain.ImportSession)},
		events:  &recordedEvents{},
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 30 * time.Second
	}
	h.engine = catalog.NewEngine(h.store, fakeMaster{}, h.archive, h.events, locker, nil, opts, logger.Nop()).
		WithClock(func() time.Time { return today })
	return h
}

func strPtr(s string) *string {
	return &s
}

func seedState() storeState {
	lot := func(id string, category domain.SalesCategory, qty int) domain.Lot {
		return domain.Lot{
			ID:            id,
			ProductID:     "prod-syringe",
			SupplierID:    "sup-1",
			Quantity:      qty,
			ExpiryDate:    time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
			UnitCost:      decimal.RequireFromString("0.25"),
			SalesCategory: category,
		}
	}
	return storeState{
		lots: []domain.Lot{
			lot("old-1", domain.SalesCategoryRegular, 20),
			lot("old-2", domain.SalesCategoryRegular, 30),
			lot("old-exhausted", domain.SalesCategoryRegular, 0),
			lot("other-category", domain.SalesCategoryShortDated, 15),
		},
		products: []domain.Product{
			{ID: "prod-syringe", Name: "Syringe 5ml", GlobalSKU: strPtr("SY-5"), ManufacturerID: strPtr("mfr-acme")},
		},
	}
}

const catalogHeader = "sku,product_name,manufacturer,quantity,expiry_date,unit_cost,lot_number\n"

// tenRowCatalog has seven valid rows and three invalid ones on lines 9 to 11
func tenRowCatalog() string {
	return catalogHeader +
		"GL-100,Nitrile Gloves,Acme Medical,100,2026-01-31,4.50,A\n" +
		"GL-100,Nitrile Gloves,Acme Medical,50,2026-03-31,4.50,B\n" +
		"SY-5,Syringe 5ml,Acme Medical,40,2026-07-15,0.30,C\n" +
		"GZ-1,Gauze,,10,2026-02-01,1.00,\n" +
		"BD-2,Bandage,ACME  medical,5,2025-12-01,0.75,\n" +
		"MS-3,Mask,Acme Medical,200,2026-05-05,0.10,\n" +
		"TH-1,Thermometer,Acme Medical,3,2027-01-01,12.00,\n" +
		"XX-1,Widget,Unknown Corp,1,2026-01-01,1,\n" +
		"XX-2,Widget 2,Acme Medical,ten,2026-01-01,1,\n" +
		"XX-3,Widget 3,Acme Medical,1,2024-01-01,1,\n"
}

func begin(t *testing.T, h *harness, data string) *domain.ImportSession {
	t.Helper()
	s, err := h.engine.BeginImport(context.Background(), "sup-1", domain.SalesCategoryRegular, "catalog.csv", strings.NewReader(data))
	require.NoError(t, err)
	return s
}

func appErr(t *testing.T, err error) *errors.AppError {
	t.Helper()
	var ae *errors.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae
}

// --- tests ---

func TestEngine_BeginImportValidates(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)

	s := begin(t, h, tenRowCatalog())
	assert.Equal(t, domain.ImportValidating, s.Status)
	assert.Equal(t, 10, s.RowsTotal)
	assert.Equal(t, 7, s.RowsSucceeded)
	assert.Equal(t, 3, s.RowsFailed)
	require.Len(t, s.ErrorLog, 3)
	assert.Equal(t, 9, s.ErrorLog[0].Row)
	assert.Equal(t, "manufacturer", s.ErrorLog[0].Field)
	assert.Equal(t, 10, s.ErrorLog[1].Row)
	assert.Equal(t, "quantity", s.ErrorLog[1].Field)
	assert.Equal(t, 11, s.ErrorLog[2].Row)
	assert.Equal(t, "expiry_date", s.ErrorLog[2].Field)

	got, err := h.engine.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.RowsSucceeded, got.RowsSucceeded)

	// nothing is written before commit
	assert.Equal(t, seedState(), h.store.snapshot())
}

func TestEngine_ErrorLogHasOneEntryPerFailedRow(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)

	data := catalogHeader
	for i := 0; i < 7; i++ {
		data += fmt.Sprintf("OK-%d,Item %d,Acme Medical,%d,2026-06-30,1.00,\n", i, i, i+1)
	}
	data += "BAD-1,Bad1,Acme Medical,abc,notadate,xyz,\n" +
		"BAD-2,Bad2,Acme Medical,-1,,,\n" +
		"BAD-3,Bad3,Acme Medical,x,2030-01-01,y,\n"

	s := begin(t, h, data)
	assert.Equal(t, 7, s.RowsSucceeded)
	assert.Equal(t, 3, s.RowsFailed)
	require.Len(t, s.ErrorLog, s.RowsFailed)

	for i, e := range s.ErrorLog {
		assert.Equal(t, 9+i, e.Row)
		assert.Equal(t, "quantity", e.Field)
	}
	assert.Equal(t, []string{"quantity", "unit_cost", "expiry_date"}, s.ErrorLog[0].Fields)
	assert.Equal(t, []string{"quantity", "unit_cost", "expiry_date"}, s.ErrorLog[1].Fields)
	assert.Equal(t, []string{"quantity", "unit_cost"}, s.ErrorLog[2].Fields)
	assert.Contains(t, s.ErrorLog[1].Reason, "quantity: quantity must not be negative; unit_cost: unit cost is required")
}

func TestEngine_CommitReplacesScope(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)
	s := begin(t, h, tenRowCatalog())

	done, err := h.engine.Commit(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportDone, done.Status)
	assert.Equal(t, 2, done.SupersededLots)
	assert.Equal(t, 7, done.CreatedLots)
	assert.Equal(t, 5, done.CreatedProducts)
	require.NotNil(t, done.FinishedAt)

	state := h.store.snapshot()
	byID := make(map[string]domain.Lot)
	var created []domain.Lot
	for _, l := range state.lots {
		byID[l.ID] = l
		if l.ImportSessionID != nil && *l.ImportSessionID == s.ID {
			created = append(created, l)
		}
	}

	old := byID["old-1"]
	assert.Equal(t, 0, old.Quantity)
	require.NotNil(t, old.SupersededQuantity)
	assert.Equal(t, 20, *old.SupersededQuantity)
	require.NotNil(t, old.SupersededBySession)
	assert.Equal(t, s.ID, *old.SupersededBySession)

	assert.Nil(t, byID["old-exhausted"].SupersededAt, "exhausted lots are left alone")
	assert.Equal(t, 15, byID["other-category"].Quantity, "other scopes are untouched")

	require.Len(t, created, 7)
	for _, l := range created {
		assert.Equal(t, "sup-1", l.SupplierID)
		assert.Equal(t, domain.SalesCategoryRegular, l.SalesCategory)
		_, err := uuid.Parse(l.ID)
		assert.NoError(t, err)
	}

	// the existing syringe product is reused
	var syringeLots int
	for _, l := range created {
		if l.ProductID == "prod-syringe" {
			syringeLots++
		}
	}
	assert.Equal(t, 1, syringeLots)
	assert.Len(t, state.products, 6)

	assert.Equal(t, []string{"superseded:2", "completed"}, h.events.list())

	// the scope is free again
	next := begin(t, h, tenRowCatalog())
	assert.Equal(t, domain.ImportValidating, next.Status)
}

func TestEngine_CommitFailureRollsBack(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)
	h.store.failLotAt = 4
	s := begin(t, h, tenRowCatalog())

	failed, err := h.engine.Commit(context.Background(), s.ID)
	require.Error(t, err)

	ae := appErr(t, err)
	assert.Equal(t, "COMMIT_ERROR", ae.Code)
	assert.Equal(t, 500, ae.StatusCode)
	assert.Equal(t, "catalog.csv", ae.Details["file_name"])
	assert.Equal(t, "7", ae.Details["rows_attempted"])
	assert.Contains(t, ae.Details["reason"], "connection reset")
	assert.Equal(t, s.ID, ae.Details["session_id"])

	require.NotNil(t, failed)
	assert.Equal(t, domain.ImportFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Contains(t, *failed.FailureReason, "row 5")

	assert.Equal(t, seedState(), h.store.snapshot(), "old catalog must be intact")
	assert.Equal(t, []string{"failed:commit"}, h.events.list())

	_, err = h.engine.Commit(context.Background(), s.ID)
	assert.Equal(t, "CONFLICT", errors.Code(err))

	begin(t, h, tenRowCatalog())
}

func TestEngine_BusyScopeRejectsNewSession(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)
	first := begin(t, h, tenRowCatalog())

	_, err := h.engine.BeginImport(context.Background(), "sup-1", domain.SalesCategoryRegular, "again.csv", strings.NewReader(tenRowCatalog()))
	ae := appErr(t, err)
	assert.Equal(t, "CONCURRENCY_CONFLICT", ae.Code)
	assert.Equal(t, "30", ae.Details["retry_after_seconds"])
	assert.Equal(t, first.ID, ae.Details["session_id"])

	// a different sales category is a different scope
	_, err = h.engine.BeginImport(context.Background(), "sup-1", domain.SalesCategoryShortDated, "short.csv", strings.NewReader(tenRowCatalog()))
	assert.NoError(t, err)
}

func TestEngine_ConcurrentCommitRejected(t *testing.T) {
	locker := catalog.NewLocalLocker()
	a := newHarness(t, catalog.Options{}, locker)
	b := newHarness(t, catalog.Options{}, locker)

	a.store.started = make(chan struct{})
	a.store.release = make(chan struct{})

	sa := begin(t, a, tenRowCatalog())
	sb := begin(t, b, tenRowCatalog())

	result := make(chan error, 1)
	go func() {
		_, err := a.engine.Commit(context.Background(), sa.ID)
		result <- err
	}()
	<-a.store.started

	_, err := a.engine.Commit(context.Background(), sa.ID)
	assert.Equal(t, "CONCURRENCY_CONFLICT", errors.Code(err), "same session")

	_, err = b.engine.Commit(context.Background(), sb.ID)
	assert.Equal(t, "CONCURRENCY_CONFLICT", errors.Code(err), "same scope from another replica")

	got, err := b.engine.Get(context.Background(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportValidating, got.Status)

	close(a.store.release)
	require.NoError(t, <-result)

	done, err := b.engine.Commit(context.Background(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportDone, done.Status)
}

func TestEngine_FileFormatFailure(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)

	s, err := h.engine.BeginImport(context.Background(), "sup-1", domain.SalesCategoryRegular, "catalog.csv",
		strings.NewReader("product,quantity\nGauze,1\n"))
	ae := appErr(t, err)
	assert.Equal(t, "FILE_FORMAT_ERROR", ae.Code)
	assert.Equal(t, 422, ae.StatusCode)

	require.NotNil(t, s)
	assert.Equal(t, domain.ImportFailed, s.Status)
	require.Len(t, s.ErrorLog, 1)
	assert.Equal(t, 0, s.ErrorLog[0].Row)
	assert.Equal(t, "file", s.ErrorLog[0].Field)
	assert.Contains(t, s.ErrorLog[0].Reason, "missing required column")
	assert.Equal(t, []string{"failed:upload"}, h.events.list())

	begin(t, h, tenRowCatalog())
}

func TestEngine_EmptyCommit(t *testing.T) {
	onlyInvalid := catalogHeader + "XX-1,Widget,Unknown Corp,1,2026-01-01,1,\n"

	h := newHarness(t, catalog.Options{}, nil)
	s := begin(t, h, onlyInvalid)

	_, err := h.engine.Commit(context.Background(), s.ID)
	ae := appErr(t, err)
	assert.Equal(t, "COMMIT_ERROR", ae.Code)
	assert.Equal(t, 409, ae.StatusCode)

	got, err := h.engine.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportValidating, got.Status)
	assert.Equal(t, seedState(), h.store.snapshot())

	allowed := newHarness(t, catalog.Options{AllowEmptyCommit: true}, nil)
	s = begin(t, allowed, onlyInvalid)
	done, err := allowed.engine.Commit(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, done.SupersededLots)
	assert.Equal(t, 0, done.CreatedLots)
}

func TestEngine_InputValidation(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)
	ctx := context.Background()

	_, err := h.engine.BeginImport(ctx, "", domain.SalesCategoryRegular, "a.csv", strings.NewReader(""))
	assert.Equal(t, "VALIDATION_ERROR", errors.Code(err))

	_, err = h.engine.BeginImport(ctx, "sup-1", domain.SalesCategory("clearance"), "a.csv", strings.NewReader(""))
	assert.Equal(t, "VALIDATION_ERROR", errors.Code(err))

	_, err = h.engine.BeginImport(ctx, "sup-missing", domain.SalesCategoryRegular, "a.csv", strings.NewReader(""))
	assert.Equal(t, "NOT_FOUND", errors.Code(err))

	_, err = h.engine.Commit(ctx, "nope")
	assert.Equal(t, "NOT_FOUND", errors.Code(err))
}

func TestEngine_CancelAndAcknowledge(t *testing.T) {
	h := newHarness(t, catalog.Options{}, nil)
	ctx := context.Background()

	s := begin(t, h, tenRowCatalog())
	_, err := h.engine.Acknowledge(ctx, s.ID)
	assert.Equal(t, "CONFLICT", errors.Code(err), "validating sessions are cancelled, not acknowledged")

	require.NoError(t, h.engine.Cancel(ctx, s.ID))
	_, err = h.engine.Get(ctx, s.ID)
	assert.Equal(t, "NOT_FOUND", errors.Code(err))

	s = begin(t, h, tenRowCatalog())
	_, err = h.engine.Commit(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, h.engine.List(), 1)

	archived, err := h.engine.Discard(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportDone, archived.Status)
	assert.Empty(t, h.engine.List())

	// acknowledged sessions stay readable through the archive
	got, err := h.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	history, err := h.engine.History(ctx, s.Scope(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID, history[0].ID)

	other, err := h.engine.History(ctx, domain.Scope{SupplierID: s.SupplierID, SalesCategory: domain.SalesCategoryExpired}, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := catalog.OptionsFromConfig(config.ImportConfig{
		MaxUploadBytes:    1024,
		ValidationWorkers: 3,
		RetryAfter:        time.Minute,
		CutoffDays:        map[string]int{"regular": 0, "expired": 730},
	})
	assert.Equal(t, int64(1024), opts.MaxUploadBytes)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, time.Minute, opts.RetryAfter)
	assert.Equal(t, 730, opts.CutoffDays[domain.SalesCategoryExpired])
}
