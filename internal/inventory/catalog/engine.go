// Package catalog imports supplier catalogs and replaces a supplier's lots
// for one sales category in a single atomic commit.
package catalog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/config"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/metrics"
)

// Store runs a commit inside one transaction. Any error returned by fn rolls back
// every write made through the ScopeTx.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ScopeTx) error) error
}

// ScopeTx is the write surface available to a commit
type ScopeTx interface {
	SupersedeScope(ctx context.Context, scope domain.Scope, sessionID string, at time.Time) (int, error)
	FindProductBySKU(ctx context.Context, sku string, manufacturerID *string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	CreateLot(ctx context.Context, lot *domain.Lot) error
}

// MasterData resolves reference data during validation
type MasterData interface {
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	// ManufacturersByName returns manufacturer ids keyed by ManufacturerKey(name)
	ManufacturersByName(ctx context.Context, names []string) (map[string]string, error)
}

// SessionArchive persists acknowledged sessions
type SessionArchive interface {
	Archive(ctx context.Context, s *domain.ImportSession) error
	Get(ctx context.Context, id string) (*domain.ImportSession, error)
	ListByScope(ctx context.Context, scope domain.Scope, limit int) ([]*domain.ImportSession, error)
}

// Events receives session outcomes
type Events interface {
	PublishImportCompleted(ctx context.Context, s *domain.ImportSession)
	PublishImportFailed(ctx context.Context, s *domain.ImportSession, stage string)
	PublishLotsSuperseded(ctx context.Context, s *domain.ImportSession)
}

type noopEvents struct{}

func (noopEvents) PublishImportCompleted(context.Context, *domain.ImportSession)      {}
func (noopEvents) PublishImportFailed(context.Context, *domain.ImportSession, string) {}
func (noopEvents) PublishLotsSuperseded(context.Context, *domain.ImportSession)       {}

// Options tunes the engine
type Options struct {
	MaxUploadBytes   int64
	Workers          int
	AllowEmptyCommit bool
	RetryAfter       time.Duration
	CutoffDays       map[domain.SalesCategory]int
}

// OptionsFromConfig maps the import configuration section
func OptionsFromConfig(cfg config.ImportConfig) Options {
	cutoffs := make(map[domain.SalesCategory]int, len(cfg.CutoffDays))
	for k, v := range cfg.CutoffDays {
		cutoffs[domain.SalesCategory(k)] = v
	}
	return Options{
		MaxUploadBytes:   cfg.MaxUploadBytes,
		Workers:          cfg.ValidationWorkers,
		AllowEmptyCommit: cfg.AllowEmptyCommit,
		RetryAfter:       cfg.RetryAfter,
		CutoffDays:       cutoffs,
	}
}

type entry struct {
	session *domain.ImportSession
	records []Record
}

// Engine owns the in-flight import sessions. At most one non-terminal
// session exists per scope.
type Engine struct {
	store   Store
	master  MasterData
	archive SessionArchive
	events  Events
	locker  ScopeLocker
	metrics *metrics.InventoryMetrics
	logger  *logger.Logger
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	scopes   map[string]string // scope key -> session id
}

// NewEngine creates an import engine. archive, events and m may be nil.
func NewEngine(store Store, master MasterData, archive SessionArchive, events Events, locker ScopeLocker, m *metrics.InventoryMetrics, opts Options, log *logger.Logger) *Engine {
	if events == nil {
		events = noopEvents{}
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Engine{
		store:    store,
		master:   master,
		archive:  archive,
		events:   events,
		locker:   locker,
		metrics:  m,
		logger:   log.WithComponent("catalog-import"),
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*entry),
		scopes:   make(map[string]string),
	}
}

// WithClock replaces the engine clock
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// BeginImport parses and validates an uploaded catalog for a scope.
// A file that cannot be read yields a failed session together with a FILE_FORMAT_ERROR.
func (e *Engine) BeginImport(ctx context.Context, supplierID string, category domain.SalesCategory, fileName string, r io.Reader) (*domain.ImportSession, error) {
	if supplierID == "" {
		return nil, errors.Validation(map[string]string{"supplier_id": "this field is required"})
	}
	if !category.Valid() {
		return nil, errors.Validation(map[string]string{"sales_category": "must be one of: regular, short_dated, expired"})
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." {
		return nil, errors.Validation(map[string]string{"file": "this field is required"})
	}
	if _, err := e.master.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}

	scope := domain.Scope{SupplierID: supplierID, SalesCategory: category}
	now := e.now()
	s := &domain.ImportSession{
		ID:            uuid.New().String(),
		SupplierID:    supplierID,
		SalesCategory: category,
		FileName:      fileName,
		Status:        domain.ImportSelecting,
		ErrorLog:      domain.ErrorLog{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	e.mu.Lock()
	if holder, busy := e.scopes[scope.Key()]; busy {
		e.mu.Unlock()
		e.metrics.IncSession("rejected")
		return nil, errors.ConcurrencyConflict(scope.String(), e.opts.RetryAfter).WithDetail("session_id", holder)
	}
	if err := s.Transition(domain.ImportUploading, now); err != nil {
		e.mu.Unlock()
		return nil, errors.Conflict(err.Error())
	}
	e.sessions[s.ID] = &entry{session: s}
	e.scopes[scope.Key()] = s.ID
	e.mu.Unlock()

	log := e.logger.WithSession(s.ID, supplierID, string(category))

	rows, err := Parse(fileName, r, e.opts.MaxUploadBytes)
	if err != nil {
		reason := err.Error()
		log.Warn().Str("file_name", fileName).Str("reason", reason).Msg("catalog file rejected")
		return e.failUpload(ctx, s.ID, domain.RowError{Row: 0, Field: "file", Reason: reason},
			errors.FileFormat(fileName, reason))
	}

	manufacturers, err := e.master.ManufacturersByName(ctx, manufacturerNames(rows))
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve manufacturers")
		return e.failUpload(ctx, s.ID, domain.RowError{Row: 0, Field: "manufacturer", Reason: "manufacturer lookup failed"},
			errors.Internal("failed to resolve manufacturers"))
	}

	validator := NewRowValidator(category, now, e.opts.CutoffDays[category], manufacturers)
	results, err := ValidateRows(ctx, rows, validator, e.opts.Workers)
	if err != nil {
		log.Warn().Err(err).Msg("row validation interrupted")
		return e.failUpload(ctx, s.ID, domain.RowError{Row: 0, Field: "file", Reason: "validation was interrupted"},
			errors.Internal("row validation was interrupted"))
	}

	records := make([]Record, 0, len(results))
	errorLog := domain.ErrorLog{}
	for _, res := range results {
		if res.OK() {
			records = append(records, *res.Record)
			continue
		}
		errorLog = append(errorLog, res.Errors...)
	}

	e.mu.Lock()
	ent := e.sessions[s.ID]
	s.RowsTotal = len(results)
	s.RowsSucceeded = len(records)
	s.RowsFailed = len(results) - len(records)
	s.ErrorLog = errorLog
	if err := s.Transition(domain.ImportValidating, e.now()); err != nil {
		e.mu.Unlock()
		return nil, errors.Conflict(err.Error())
	}
	ent.records = records
	snap := s.Snapshot()
	e.mu.Unlock()

	e.metrics.AddRows(snap.RowsSucceeded, snap.RowsFailed)
	log.Info().
		Str("file_name", fileName).
		Int("rows_total", snap.RowsTotal).
		Int("rows_failed", snap.RowsFailed).
		Msg("catalog validated")

	return snap, nil
}

func (e *Engine) failUpload(ctx context.Context, id string, rowErr domain.RowError, appErr *errors.AppError) (*domain.ImportSession, error) {
	e.mu.Lock()
	s := e.sessions[id].session
	s.ErrorLog = append(s.ErrorLog, rowErr)
	if err := s.Fail(rowErr.Reason, e.now()); err != nil {
		e.logger.Error().Err(err).Str("session_id", id).Msg("unexpected session state")
	}
	delete(e.scopes, s.Scope().Key())
	snap := s.Snapshot()
	e.mu.Unlock()

	e.metrics.IncSession("failed")
	e.events.PublishImportFailed(ctx, snap, "upload")
	return snap, appErr.WithDetail("session_id", id)
}

// Commit replaces the session's scope with its valid rows. Existing sellable lots
// are superseded and the new lots created in one transaction under the scope lock.
// The commit ignores cancellation of ctx once started.
func (e *Engine) Commit(ctx context.Context, id string) (*domain.ImportSession, error) {
	e.mu.Lock()
	ent, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("import session")
	}
	s := ent.session
	if err := e.committable(s); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if len(ent.records) == 0 && !e.opts.AllowEmptyCommit {
		fileName := s.FileName
		e.mu.Unlock()
		e.metrics.IncSession("rejected")
		return nil, errors.CommitRejected(fileName, "no valid rows to commit").WithDetail("session_id", id)
	}
	scope := s.Scope()
	e.mu.Unlock()

	unlock, err := e.locker.TryLock(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, errors.ConcurrencyConflict(scope.String(), e.opts.RetryAfter).WithDetail("session_id", id)
		}
		e.logger.Error().Err(err).Str("scope", scope.Key()).Msg("failed to acquire scope lock")
		return nil, errors.Internal("failed to acquire scope lock")
	}
	defer unlock()

	e.mu.Lock()
	if e.sessions[id] != ent {
		e.mu.Unlock()
		return nil, errors.NotFound("import session")
	}
	if err := e.committable(s); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := s.Transition(domain.ImportCommitting, e.now()); err != nil {
		e.mu.Unlock()
		return nil, errors.Conflict(err.Error())
	}
	records := ent.records
	fileName := s.FileName
	e.mu.Unlock()

	log := e.logger.WithSession(id, scope.SupplierID, string(scope.SalesCategory))
	commitCtx := context.WithoutCancel(ctx)
	started := time.Now()
	at := e.now()

	var superseded, createdLots, createdProducts int
	err = e.store.RunInTx(commitCtx, func(txCtx context.Context, tx ScopeTx) error {
		superseded, createdLots, createdProducts = 0, 0, 0

		n, err := tx.SupersedeScope(txCtx, scope, id, at)
		if err != nil {
			return fmt.Errorf("supersede scope: %w", err)
		}
		superseded = n

		products := make(map[string]string)
		for i := range records {
			rec := &records[i]
			productID, created, err := resolveProduct(txCtx, tx, rec, products)
			if err != nil {
				return fmt.Errorf("row %d: resolve product: %w", rec.Line, err)
			}
			if created {
				createdProducts++
			}
			if err := tx.CreateLot(txCtx, newLot(rec, productID, scope, id)); err != nil {
				return fmt.Errorf("row %d: create lot: %w", rec.Line, err)
			}
			createdLots++
		}
		return nil
	})
	e.metrics.ObserveCommit(time.Since(started))

	e.mu.Lock()
	ent.records = nil
	delete(e.scopes, scope.Key())
	if err != nil {
		if failErr := s.Fail(err.Error(), e.now()); failErr != nil {
			log.Error().Err(failErr).Msg("unexpected session state")
		}
		snap := s.Snapshot()
		e.mu.Unlock()

		log.Error().Err(err).Str("file_name", fileName).Int("rows_attempted", len(records)).Msg("catalog commit rolled back")
		e.metrics.IncSession("failed")
		e.events.PublishImportFailed(commitCtx, snap, "commit")
		return snap, errors.Commit(err, fileName, len(records)).WithDetail("session_id", id)
	}

	s.SupersededLots = superseded
	s.CreatedLots = createdLots
	s.CreatedProducts = createdProducts
	if err := s.Transition(domain.ImportDone, e.now()); err != nil {
		log.Error().Err(err).Msg("unexpected session state")
	}
	snap := s.Snapshot()
	e.mu.Unlock()

	log.Info().
		Int("superseded_lots", superseded).
		Int("created_lots", createdLots).
		Int("created_products", createdProducts).
		Dur("duration", time.Since(started)).
		Msg("catalog committed")
	e.metrics.IncSession("done")
	if superseded > 0 {
		e.events.PublishLotsSuperseded(commitCtx, snap)
	}
	e.events.PublishImportCompleted(commitCtx, snap)

	return snap, nil
}

// committable reports why s cannot start a commit. Callers hold e.mu.
func (e *Engine) committable(s *domain.ImportSession) error {
	switch s.Status {
	case domain.ImportValidating:
		return nil
	case domain.ImportCommitting:
		return errors.ConcurrencyConflict(s.Scope().String(), e.opts.RetryAfter).WithDetail("session_id", s.ID)
	default:
		return errors.Conflict(fmt.Sprintf("import session is %s and cannot be committed", s.Status))
	}
}

func resolveProduct(ctx context.Context, tx ScopeTx, rec *Record, cache map[string]string) (string, bool, error) {
	var key string
	if rec.SKU != "" {
		key = rec.SKU + "|"
		if rec.ManufacturerID != nil {
			key += *rec.ManufacturerID
		}
		if id, ok := cache[key]; ok {
			return id, false, nil
		}
		existing, err := tx.FindProductBySKU(ctx, rec.SKU, rec.ManufacturerID)
		if err != nil {
			return "", false, err
		}
		if existing != nil {
			cache[key] = existing.ID
			return existing.ID, false, nil
		}
	}

	p := &domain.Product{
		ID:                   uuid.New().String(),
		Name:                 rec.ProductName,
		ManufacturerID:       rec.ManufacturerID,
		GlobalSKU:            optional(rec.SKU),
		AvalaraTaxCode:       optional(rec.TaxCode),
		RequiresLicense:      rec.RequiresLicense,
		PrescriptionRequired: rec.PrescriptionRequired,
		ExportRestricted:     rec.ExportRestricted,
	}
	if err := tx.CreateProduct(ctx, p); err != nil {
		return "", false, err
	}
	if key != "" {
		cache[key] = p.ID
	}
	return p.ID, true, nil
}

func newLot(rec *Record, productID string, scope domain.Scope, sessionID string) *domain.Lot {
	session := sessionID
	return &domain.Lot{
		ID:              uuid.New().String(),
		ProductID:       productID,
		ProductName:     rec.ProductName,
		SupplierID:      scope.SupplierID,
		Quantity:        rec.Quantity,
		ExpiryDate:      rec.ExpiryDate,
		UnitCost:        rec.UnitCost,
		SalesCategory:   scope.SalesCategory,
		LotNumber:       optional(rec.LotNumber),
		ImportSessionID: &session,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func manufacturerNames(rows []RawRow) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, r := range rows {
		name := r.Get(FieldManufacturer)
		if name == "" {
			continue
		}
		key := ManufacturerKey(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Get returns a session snapshot, falling back to the archive for acknowledged sessions
func (e *Engine) Get(ctx context.Context, id string) (*domain.ImportSession, error) {
	e.mu.Lock()
	ent, ok := e.sessions[id]
	var snap *domain.ImportSession
	if ok {
		snap = ent.session.Snapshot()
	}
	e.mu.Unlock()

	if ok {
		return snap, nil
	}
	if e.archive != nil {
		return e.archive.Get(ctx, id)
	}
	return nil, errors.NotFound("import session")
}

// History returns the acknowledged sessions of a scope, newest first
func (e *Engine) History(ctx context.Context, scope domain.Scope, limit int) ([]*domain.ImportSession, error) {
	if e.archive == nil {
		return []*domain.ImportSession{}, nil
	}
	return e.archive.ListByScope(ctx, scope, limit)
}

// List returns the in-memory sessions, newest first
func (e *Engine) List() []*domain.ImportSession {
	e.mu.Lock()
	out := make([]*domain.ImportSession, 0, len(e.sessions))
	for _, ent := range e.sessions {
		out = append(out, ent.session.Snapshot())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel discards a validated session that will not be committed and frees its scope
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.sessions[id]
	if !ok {
		return errors.NotFound("import session")
	}
	s := ent.session
	if s.Status != domain.ImportValidating {
		return errors.Conflict(fmt.Sprintf("import session is %s, only validating sessions can be cancelled", s.Status))
	}
	delete(e.sessions, id)
	delete(e.scopes, s.Scope().Key())
	e.metrics.IncSession("cancelled")
	return nil
}

// Acknowledge archives a terminal session and drops it from memory
func (e *Engine) Acknowledge(ctx context.Context, id string) (*domain.ImportSession, error) {
	e.mu.Lock()
	ent, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("import session")
	}
	if !ent.session.Status.Terminal() {
		status := ent.session.Status
		e.mu.Unlock()
		return nil, errors.Conflict(fmt.Sprintf("import session is %s, only finished sessions can be acknowledged", status))
	}
	snap := ent.session.Snapshot()
	e.mu.Unlock()

	if e.archive != nil {
		if err := e.archive.Archive(ctx, snap); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()
	return snap, nil
}

// Discard cancels a validating session or acknowledges a finished one.
// It returns the archived snapshot, or nil for a cancelled session.
func (e *Engine) Discard(ctx context.Context, id string) (*domain.ImportSession, error) {
	e.mu.Lock()
	ent, ok := e.sessions[id]
	var status domain.ImportStatus
	if ok {
		status = ent.session.Status
	}
	e.mu.Unlock()

	switch {
	case !ok:
		return nil, errors.NotFound("import session")
	case status == domain.ImportValidating:
		return nil, e.Cancel(ctx, id)
	case status.Terminal():
		return e.Acknowledge(ctx, id)
	default:
		return nil, errors.Conflict(fmt.Sprintf("import session is %s and cannot be discarded yet", status))
	}
}
