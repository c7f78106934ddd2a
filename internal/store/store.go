package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"medshelf/backend/internal/domain"
)

// MaxQuantity caps any single stock row. It fits a 32-bit column.
const MaxQuantity = 1_000_000

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyCart         = fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	ErrDuplicate         = errors.New("already exists")
	ErrConflict          = errors.New("concurrent update, retry")
)

// InsufficientStockError names the cart item that could not be covered.
type InsufficientStockError struct {
	MedicineID int64
	Item       string
}

func (e *InsufficientStockError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("insufficient stock for medicine %d", e.MedicineID)
	}
	return fmt.Sprintf("insufficient stock for %s", e.Item)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Repository is the owner-partitioned persistence boundary. Every medicine
// and sale lookup filters by owner, and a row of another owner is reported as
// ErrNotFound.
type Repository interface {
	CreateOwner(ctx context.Context, owner domain.Owner) (*domain.Owner, error)
	FindOwnerByID(ctx context.Context, id int64) (*domain.Owner, error)
	FindOwnerByUsername(ctx context.Context, username string) (*domain.Owner, error)

	CreateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error)
	FindMedicine(ctx context.Context, ownerID int64, medicineID int64) (*domain.Medicine, error)
	ListMedicines(ctx context.Context, ownerID int64) ([]domain.Medicine, error)
	IncreaseQuantity(ctx context.Context, ownerID int64, medicineID int64, amount int) (*domain.Medicine, error)
	DecrementQuantity(ctx context.Context, ownerID int64, medicineID int64, amount int) error
	PurgeExpired(ctx context.Context, ownerID int64, asOf time.Time) (domain.PurgeResult, error)

	// CommitSale decrements every line in order and appends the sale as one
	// unit. The first line that cannot be covered aborts the whole unit with
	// an *InsufficientStockError.
	CommitSale(ctx context.Context, sale domain.SaleTransaction, lines []domain.LineItem) (*domain.SaleTransaction, error)
	ListSales(ctx context.Context, ownerID int64, limit int) ([]domain.SaleTransaction, error)
	FindSale(ctx context.Context, ownerID int64, saleID string) (*domain.SaleTransaction, error)
}

// SortFIFO orders medicines for dispensing: earliest expiry first, rows with
// an unreadable expiry last, ties by id.
func SortFIFO(meds []domain.Medicine) {
	sort.SliceStable(meds, func(i, j int) bool {
		return compareFIFO(meds[i], meds[j]) < 0
	})
}

func compareFIFO(a domain.Medicine, b domain.Medicine) int {
	aExp, aErr := a.Expiry()
	bExp, bErr := b.Expiry()
	switch {
	case aErr != nil && bErr == nil:
		return 1
	case aErr == nil && bErr != nil:
		return -1
	case aErr == nil && bErr == nil && !aExp.Equal(bExp):
		if aExp.Before(bExp) {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Expired reports whether a medicine should be swept at asOf. The second
// result is false when the expiry text cannot be read.
func Expired(med domain.Medicine, asOf time.Time) (bool, bool) {
	expiry, err := med.Expiry()
	if err != nil {
		return false, false
	}
	return !expiry.After(domain.DateOf(asOf)), true
}

// SortSalesNewestFirst orders by creation time descending, ties by id.
func SortSalesNewestFirst(sales []domain.SaleTransaction) {
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.After(sales[j].CreatedAt)
		}
		return sales[i].ID > sales[j].ID
	})
}
