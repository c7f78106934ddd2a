// Package storetest holds the behaviour every store.Repository must satisfy.
// Each implementation runs Run from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
	"medshelf/backend/internal/xid"
)

// Factory returns an empty repository for a single subtest.
type Factory func(t *testing.T) store.Repository

func Run(t *testing.T, newRepo Factory) {
	t.Run("DuplicateOwnerRejected", func(t *testing.T) { testDuplicateOwner(t, newRepo(t)) })
	t.Run("MedicineLookupIsOwnerScoped", func(t *testing.T) { testOwnerScoped(t, newRepo(t)) })
	t.Run("ListMedicinesFIFO", func(t *testing.T) { testListFIFO(t, newRepo(t)) })
	t.Run("DecrementNeverGoesNegative", func(t *testing.T) { testDecrement(t, newRepo(t)) })
	t.Run("RestockCannotOverflow", func(t *testing.T) { testRestockCap(t, newRepo(t)) })
	t.Run("PurgeBoundary", func(t *testing.T) { testPurge(t, newRepo(t)) })
	t.Run("CommitSaleDeductsAndRecords", func(t *testing.T) { testCommit(t, newRepo(t)) })
	t.Run("CommitSaleOversellLeavesStock", func(t *testing.T) { testOversell(t, newRepo(t)) })
	t.Run("CommitSaleIsAllOrNothing", func(t *testing.T) { testAtomicCart(t, newRepo(t)) })
	t.Run("ConcurrentCommitsSellOnce", func(t *testing.T) { testConcurrentCommits(t, newRepo(t)) })
	t.Run("ListSalesNewestFirst", func(t *testing.T) { testSalesOrder(t, newRepo(t)) })
}

func SeedOwner(t *testing.T, repo store.Repository, username string) domain.Owner {
	t.Helper()
	owner, err := repo.CreateOwner(context.Background(), domain.Owner{
		Name:          "Owner " + username,
		Email:         username + "@example.com",
		Phone:         "0800000000",
		Username:      username,
		PasswordHash:  "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
		PharmacyName:  "Pharmacy " + username,
		LicenseNumber: "LIC-" + username,
	})
	require.NoError(t, err)
	return *owner
}

func SeedMedicine(t *testing.T, repo store.Repository, ownerID int64, name string, qty int, expiry string, cost string, rate string) domain.Medicine {
	t.Helper()
	med, err := repo.CreateMedicine(context.Background(), domain.Medicine{
		OwnerID:      ownerID,
		Name:         name,
		Quantity:     qty,
		ExpiryDate:   expiry,
		CostPrice:    decimal.RequireFromString(cost),
		SellingPrice: decimal.RequireFromString(rate),
	})
	require.NoError(t, err)
	return *med
}

func saleFor(ownerID int64, lines []domain.LineItem) domain.SaleTransaction {
	revenue := decimal.Zero
	cost := decimal.Zero
	for _, line := range lines {
		revenue = revenue.Add(line.Revenue())
		cost = cost.Add(line.CostOfGoods())
	}
	return domain.SaleTransaction{
		ID:           xid.New("sale"),
		OwnerID:      ownerID,
		CustomerName: "Walk-in",
		TotalRevenue: revenue,
		TotalCost:    cost,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		Receipt:      "receipt\n",
	}
}

func line(med domain.Medicine, qty int) domain.LineItem {
	return domain.LineItem{
		MedicineID: med.ID,
		Name:       med.Name,
		Quantity:   qty,
		Rate:       decimal.NewNullDecimal(med.SellingPrice),
		Cost:       decimal.NewNullDecimal(med.CostPrice),
	}
}

func quantityOf(t *testing.T, repo store.Repository, ownerID int64, id int64) int {
	t.Helper()
	med, err := repo.FindMedicine(context.Background(), ownerID, id)
	require.NoError(t, err)
	return med.Quantity
}

func testDuplicateOwner(t *testing.T, repo store.Repository) {
	SeedOwner(t, repo, "alice")
	_, err := repo.CreateOwner(context.Background(), domain.Owner{
		Name:          "Other",
		Email:         "other@example.com",
		Username:      "alice",
		PasswordHash:  "x",
		PharmacyName:  "Other",
		LicenseNumber: "LIC-other",
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = repo.CreateOwner(context.Background(), domain.Owner{
		Name:          "Other",
		Email:         "other2@example.com",
		Username:      "bob",
		PasswordHash:  "x",
		PharmacyName:  "Other",
		LicenseNumber: "LIC-alice",
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	found, err := repo.FindOwnerByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Pharmacy alice", found.PharmacyName)
}

func testOwnerScoped(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	alice := SeedOwner(t, repo, "alice")
	bob := SeedOwner(t, repo, "bob")
	med := SeedMedicine(t, repo, alice.ID, "Paracetamol", 5, "2030-01-01", "6", "10")

	_, err := repo.FindMedicine(ctx, bob.ID, med.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.FindMedicine(ctx, alice.ID, med.ID+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := repo.ListMedicines(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = repo.CommitSale(ctx, saleFor(bob.ID, []domain.LineItem{line(med, 1)}), []domain.LineItem{line(med, 1)})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 5, quantityOf(t, repo, alice.ID, med.ID))
}

func testListFIFO(t *testing.T, repo store.Repository) {
	owner := SeedOwner(t, repo, "alice")
	late := SeedMedicine(t, repo, owner.ID, "Late", 1, "2031-01-01", "1", "2")
	bad := SeedMedicine(t, repo, owner.ID, "Legacy", 1, "next spring", "1", "2")
	early := SeedMedicine(t, repo, owner.ID, "Early", 1, "2030-01-01", "1", "2")

	list, err := repo.ListMedicines(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{early.ID, late.ID, bad.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func testDecrement(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	med := SeedMedicine(t, repo, owner.ID, "Amoxicillin", 3, "2030-01-01", "6", "10")

	require.NoError(t, repo.DecrementQuantity(ctx, owner.ID, med.ID, 2))
	err := repo.DecrementQuantity(ctx, owner.ID, med.ID, 2)

	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Amoxicillin", stockErr.Item)
	assert.Equal(t, 1, quantityOf(t, repo, owner.ID, med.ID))

	restocked, err := repo.IncreaseQuantity(ctx, owner.ID, med.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, restocked.Quantity)
}

func testRestockCap(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	med := SeedMedicine(t, repo, owner.ID, "Amoxicillin", 5, "2030-01-01", "6", "10")

	_, err := repo.IncreaseQuantity(ctx, owner.ID, med.ID, math.MaxInt)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = repo.IncreaseQuantity(ctx, owner.ID, med.ID, store.MaxQuantity-4)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	assert.Equal(t, 5, quantityOf(t, repo, owner.ID, med.ID))

	full, err := repo.IncreaseQuantity(ctx, owner.ID, med.ID, store.MaxQuantity-5)
	require.NoError(t, err)
	assert.Equal(t, store.MaxQuantity, full.Quantity)

	list, err := repo.ListMedicines(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.IncreaseQuantity(ctx, owner.ID, med.ID+1000, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.CreateMedicine(ctx, domain.Medicine{
		OwnerID:      owner.ID,
		Name:         "Bulk",
		Quantity:     store.MaxQuantity + 1,
		ExpiryDate:   "2030-01-01",
		CostPrice:    decimal.RequireFromString("1"),
		SellingPrice: decimal.RequireFromString("2"),
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func testPurge(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	other := SeedOwner(t, repo, "bob")
	SeedMedicine(t, repo, owner.ID, "Day before", 1, "2025-05-31", "1", "2")
	SeedMedicine(t, repo, owner.ID, "Same day", 1, "2025-06-01", "1", "2")
	kept := SeedMedicine(t, repo, owner.ID, "Day after", 1, "2025-06-02", "1", "2")
	legacy := SeedMedicine(t, repo, owner.ID, "Legacy", 1, "not-a-date", "1", "2")
	foreign := SeedMedicine(t, repo, other.ID, "Other owner", 1, "2025-01-01", "1", "2")

	asOf := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	result, err := repo.PurgeExpired(ctx, owner.ID, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Removed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "2025-06-01", result.AsOf)

	list, err := repo.ListMedicines(ctx, owner.ID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(list))
	for _, med := range list {
		ids = append(ids, med.ID)
	}
	assert.ElementsMatch(t, []int64{kept.ID, legacy.ID}, ids)

	_, err = repo.FindMedicine(ctx, other.ID, foreign.ID)
	assert.NoError(t, err)
}

func testCommit(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	med := SeedMedicine(t, repo, owner.ID, "Paracetamol", 5, "2030-01-01", "6", "10")

	lines := []domain.LineItem{line(med, 3)}
	sale, err := repo.CommitSale(ctx, saleFor(owner.ID, lines), lines)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(sale.TotalRevenue), "revenue %s", sale.TotalRevenue)
	assert.True(t, decimal.NewFromInt(18).Equal(sale.TotalCost), "cost %s", sale.TotalCost)
	assert.Equal(t, 1, sale.ItemCount)
	assert.Equal(t, 2, quantityOf(t, repo, owner.ID, med.ID))

	stored, err := repo.FindSale(ctx, owner.ID, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "receipt\n", stored.Receipt)
	assert.True(t, decimal.NewFromInt(30).Equal(stored.TotalRevenue))
}

func testOversell(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	med := SeedMedicine(t, repo, owner.ID, "Paracetamol", 5, "2030-01-01", "6", "10")

	lines := []domain.LineItem{line(med, 10)}
	_, err := repo.CommitSale(ctx, saleFor(owner.ID, lines), lines)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 5, quantityOf(t, repo, owner.ID, med.ID))

	sales, err := repo.ListSales(ctx, owner.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func testAtomicCart(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	first := SeedMedicine(t, repo, owner.ID, "Cetirizine", 4, "2030-01-01", "1", "3")
	second := SeedMedicine(t, repo, owner.ID, "Ibuprofen", 1, "2030-01-01", "2", "5")

	lines := []domain.LineItem{line(first, 2), line(second, 3)}
	_, err := repo.CommitSale(ctx, saleFor(owner.ID, lines), lines)

	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Ibuprofen", stockErr.Item)
	assert.Equal(t, 4, quantityOf(t, repo, owner.ID, first.ID))
	assert.Equal(t, 1, quantityOf(t, repo, owner.ID, second.ID))

	sales, err := repo.ListSales(ctx, owner.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func testConcurrentCommits(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	med := SeedMedicine(t, repo, owner.ID, "Paracetamol", 5, "2030-01-01", "6", "10")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
		other     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines := []domain.LineItem{line(med, 5)}
			_, err := repo.CommitSale(ctx, saleFor(owner.ID, lines), lines)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other, fmt.Sprintf("unexpected errors: %v", other))
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, 0, quantityOf(t, repo, owner.ID, med.ID))

	sales, err := repo.ListSales(ctx, owner.ID, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func testSalesOrder(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	owner := SeedOwner(t, repo, "alice")
	med := SeedMedicine(t, repo, owner.ID, "Paracetamol", 10, "2030-01-01", "6", "10")

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		lines := []domain.LineItem{line(med, 1)}
		sale := saleFor(owner.ID, lines)
		sale.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		created, err := repo.CommitSale(ctx, sale, lines)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	sales, err := repo.ListSales(ctx, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, sales, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{sales[0].ID, sales[1].ID, sales[2].ID})

	limited, err := repo.ListSales(ctx, owner.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
