package repository_test

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/catalog"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/repository"
	"github.com/medsupply/medsupply-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to start integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

type catalogFixture struct {
	engine     *catalog.Engine
	lots       *repository.LotRepository
	sessions   *repository.SessionRepository
	supplierID string
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	testutil.SkipIfShort(t)

	ctx := context.Background()
	suite.Reset(t, ctx)

	lots := repository.NewLotRepository(suite.DB)
	master := repository.NewMasterDataRepository(suite.DB)
	sessions := repository.NewSessionRepository(suite.DB)
	store := repository.NewCatalogStore(suite.DB, lots, master)

	supplierID := suite.SeedSupplier(t, ctx, "Northwind Medical Supply")
	suite.SeedManufacturer(t, ctx, "Acme Medical")

	engine := catalog.NewEngine(store, master, sessions, nil, nil, nil, catalog.Options{
		Workers:    4,
		RetryAfter: 30 * time.Second,
	}, suite.Logger).WithClock(func() time.Time {
		return time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	})

	return &catalogFixture{engine: engine, lots: lots, sessions: sessions, supplierID: supplierID}
}

func (f *catalogFixture) importCSV(t *testing.T, rows ...string) (*domain.ImportSession, error) {
	t.Helper()
	ctx := context.Background()
	data := "sku,product_name,manufacturer,quantity,expiry_date,unit_cost\n" + strings.Join(rows, "\n") + "\n"

	s, err := f.engine.BeginImport(ctx, f.supplierID, domain.SalesCategoryRegular, "catalog.csv", strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, domain.ImportValidating, s.Status, "error log: %v", s.ErrorLog)

	return f.engine.Commit(ctx, s.ID)
}

func (f *catalogFixture) sellable(t *testing.T) []*domain.Lot {
	t.Helper()
	lots, _, err := f.lots.List(context.Background(), repository.LotFilter{SupplierID: f.supplierID, Limit: 100})
	require.NoError(t, err)
	return lots
}

func TestCatalogCommit_ReplacesScope(t *testing.T) {
	f := newCatalogFixture(t)

	first, err := f.importCSV(t,
		"GL-100,Nitrile Gloves,Acme Medical,100,2026-01-31,4.50",
		"SY-5,Syringe 5ml,Acme Medical,40,2026-07-15,0.30",
		"GZ-1,Gauze,,10,2026-02-01,1.00",
	)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportDone, first.Status)
	assert.Equal(t, 3, first.CreatedLots)
	assert.Equal(t, 3, first.CreatedProducts)
	require.Len(t, f.sellable(t), 3)
	_, err = f.engine.Acknowledge(context.Background(), first.ID)
	require.NoError(t, err)

	second, err := f.importCSV(t,
		"GL-100,Nitrile Gloves,Acme Medical,80,2026-04-30,4.40",
		"MS-3,Mask,Acme Medical,200,2026-05-05,0.10",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, second.SupersededLots)
	assert.Equal(t, 1, second.CreatedProducts, "gloves product is reused")

	lots := f.sellable(t)
	require.Len(t, lots, 2)
	for _, lot := range lots {
		require.NotNil(t, lot.ImportSessionID)
		assert.Equal(t, second.ID, *lot.ImportSessionID)
	}

	archived, err := f.sessions.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportDone, archived.Status)
	assert.Equal(t, 3, archived.CreatedLots)
}

func TestCatalogCommit_RollsBackOnFailure(t *testing.T) {
	f := newCatalogFixture(t)

	_, err := f.importCSV(t,
		"GL-100,Nitrile Gloves,Acme Medical,100,2026-01-31,4.50",
		"SY-5,Syringe 5ml,Acme Medical,40,2026-07-15,0.30",
	)
	require.NoError(t, err)
	before := f.sellable(t)
	require.Len(t, before, 2)

	// the second row overflows the quantity column and aborts the transaction
	failed, err := f.importCSV(t,
		"MS-3,Mask,Acme Medical,200,2026-05-05,0.10",
		fmt.Sprintf("TH-1,Thermometer,Acme Medical,%d,2027-01-01,12.00", int64(1)<<40),
	)
	require.Error(t, err)
	assert.Equal(t, domain.ImportFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Contains(t, *failed.FailureReason, "row 3")

	after := f.sellable(t)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Quantity, after[i].Quantity)
		assert.Nil(t, after[i].SupersededAt)
	}
}

func TestMasterDataRepository_ManufacturersByNameNormalizesStoredNames(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.Reset(t, ctx)

	id := suite.SeedManufacturer(t, ctx, "  Medline\tIndustries ")
	master := repository.NewMasterDataRepository(suite.DB)

	got, err := master.ManufacturersByName(ctx, []string{"MEDLINE  industries"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"medline industries": id}, got)
}

func TestLotRepository_SellableByExpiry(t *testing.T) {
	f := newCatalogFixture(t)

	_, err := f.importCSV(t,
		"GL-100,Nitrile Gloves,Acme Medical,100,2026-01-31,4.50",
		"GL-101,Nitrile Gloves L,Acme Medical,10,2026-01-31,5.00",
		"SY-5,Syringe 5ml,Acme Medical,40,2026-07-15,0.30",
	)
	require.NoError(t, err)

	buckets, err := f.lots.SellableByExpiry(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, 2, buckets[0].Lots)
	assert.Equal(t, 110, buckets[0].Units)
	assert.Equal(t, "500", buckets[0].Value.StringFixed(0))
	assert.Equal(t, 40, buckets[1].Units)
}
