package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	logger         *zap.Logger
	nextOwnerID    int64
	nextMedicineID int64
	owners         map[int64]domain.Owner
	medicines      map[int64]domain.Medicine
	sales          map[string]domain.SaleTransaction
}

func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:    logger.Named("memory-store"),
		owners:    make(map[int64]domain.Owner),
		medicines: make(map[int64]domain.Medicine),
		sales:     make(map[string]domain.SaleTransaction),
	}
}

func (s *Store) CreateOwner(_ context.Context, owner domain.Owner) (*domain.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.owners {
		if strings.EqualFold(existing.Username, owner.Username) ||
			strings.EqualFold(existing.Email, owner.Email) ||
			existing.LicenseNumber == owner.LicenseNumber {
			return nil, store.ErrDuplicate
		}
	}

	s.nextOwnerID++
	owner.ID = s.nextOwnerID
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}
	s.owners[owner.ID] = owner
	dup := owner
	return &dup, nil
}

func (s *Store) FindOwnerByID(_ context.Context, id int64) (*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &owner, nil
}

func (s *Store) FindOwnerByUsername(_ context.Context, username string) (*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, owner := range s.owners {
		if strings.EqualFold(owner.Username, username) {
			dup := owner
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateMedicine(_ context.Context, med domain.Medicine) (*domain.Medicine, error) {
	if med.Quantity < 0 || med.Quantity > store.MaxQuantity {
		return nil, store.Invalid("quantity", fmt.Sprintf("must be between 0 and %d", store.MaxQuantity))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owners[med.OwnerID]; !ok {
		return nil, store.ErrNotFound
	}
	s.nextMedicineID++
	med.ID = s.nextMedicineID
	if med.CreatedAt.IsZero() {
		med.CreatedAt = time.Now().UTC()
	}
	s.medicines[med.ID] = med
	dup := med
	return &dup, nil
}

func (s *Store) FindMedicine(_ context.Context, ownerID int64, medicineID int64) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	med, ok := s.medicines[medicineID]
	if !ok || med.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return &med, nil
}

func (s *Store) ListMedicines(_ context.Context, ownerID int64) ([]domain.Medicine, error) {
	s.mu.RLock()
	result := make([]domain.Medicine, 0, len(s.medicines))
	for _, med := range s.medicines {
		if med.OwnerID == ownerID {
			result = append(result, med)
		}
	}
	s.mu.RUnlock()

	store.SortFIFO(result)
	return result, nil
}

func (s *Store) IncreaseQuantity(_ context.Context, ownerID int64, medicineID int64, amount int) (*domain.Medicine, error) {
	if amount < 1 || amount > store.MaxQuantity {
		return nil, store.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", store.MaxQuantity))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	med, ok := s.medicines[medicineID]
	if !ok || med.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if med.Quantity > store.MaxQuantity-amount {
		return nil, store.Invalid("quantity", fmt.Sprintf("stock would exceed %d", store.MaxQuantity))
	}
	med.Quantity += amount
	s.medicines[medicineID] = med
	return &med, nil
}

func (s *Store) DecrementQuantity(_ context.Context, ownerID int64, medicineID int64, amount int) error {
	if amount < 1 {
		return store.Invalid("quantity", "must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.decrementLocked(ownerID, medicineID, amount)
}

// decrementLocked is the compare-and-decrement step. Callers hold s.mu.
func (s *Store) decrementLocked(ownerID int64, medicineID int64, amount int) error {
	med, ok := s.medicines[medicineID]
	if !ok || med.OwnerID != ownerID {
		return &store.InsufficientStockError{MedicineID: medicineID}
	}
	if med.Quantity < amount {
		return &store.InsufficientStockError{MedicineID: medicineID, Item: med.Name}
	}
	med.Quantity -= amount
	s.medicines[medicineID] = med
	return nil
}

func (s *Store) PurgeExpired(_ context.Context, ownerID int64, asOf time.Time) (domain.PurgeResult, error) {
	result := domain.PurgeResult{AsOf: domain.DateOf(asOf).Format(domain.ExpiryLayout)}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, med := range s.medicines {
		if med.OwnerID != ownerID {
			continue
		}
		expired, readable := store.Expired(med, asOf)
		if !readable {
			s.logger.Debug("purge skipped unreadable expiry",
				zap.Int64("owner_id", ownerID),
				zap.Int64("medicine_id", id),
				zap.String("expiry_date", med.ExpiryDate),
			)
			result.Skipped++
			continue
		}
		if expired {
			delete(s.medicines, id)
			result.Removed++
		}
	}
	return result, nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.SaleTransaction, lines []domain.LineItem) (*domain.SaleTransaction, error) {
	if len(lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrDuplicate
	}

	// Validate the whole cart against a scratch view first so a failing line
	// leaves every earlier line untouched.
	pending := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, store.Invalid("quantity", "must be at least 1")
		}
		med, ok := s.medicines[line.MedicineID]
		if !ok || med.OwnerID != sale.OwnerID {
			return nil, &store.InsufficientStockError{MedicineID: line.MedicineID, Item: line.Name}
		}
		if med.Quantity-pending[line.MedicineID] < line.Quantity {
			return nil, &store.InsufficientStockError{MedicineID: line.MedicineID, Item: med.Name}
		}
		pending[line.MedicineID] += line.Quantity
	}

	for _, line := range lines {
		if err := s.decrementLocked(sale.OwnerID, line.MedicineID, line.Quantity); err != nil {
			return nil, err
		}
	}

	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.ItemCount = len(lines)
	s.sales[sale.ID] = sale
	dup := sale
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, ownerID int64, limit int) ([]domain.SaleTransaction, error) {
	s.mu.RLock()
	result := make([]domain.SaleTransaction, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.OwnerID == ownerID {
			result = append(result, sale)
		}
	}
	s.mu.RUnlock()

	store.SortSalesNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FindSale(_ context.Context, ownerID int64, saleID string) (*domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}
