package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"medshelf/backend/internal/dispense"
	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

const maxNameLength = 200

func (s *Service) AddStock(ctx context.Context, ownerID int64, req domain.AddStockRequest) (domain.Medicine, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Medicine{}, store.Invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return domain.Medicine{}, store.Invalid("name", "is too long")
	}
	if req.Quantity < 0 || req.Quantity > store.MaxQuantity {
		return domain.Medicine{}, store.Invalid("quantity", fmt.Sprintf("must be between 0 and %d", store.MaxQuantity))
	}
	expiry, err := domain.ParseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Medicine{}, store.Invalid("expiry_date", "must be a date in YYYY-MM-DD form")
	}
	if req.CostPrice.IsNegative() {
		return domain.Medicine{}, store.Invalid("cost_price", "must not be negative")
	}
	if req.SellingPrice.IsNegative() {
		return domain.Medicine{}, store.Invalid("selling_price", "must not be negative")
	}

	created, err := s.repo.CreateMedicine(ctx, domain.Medicine{
		OwnerID:      ownerID,
		Name:         name,
		Quantity:     req.Quantity,
		ExpiryDate:   expiry.Format(domain.ExpiryLayout),
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.Medicine{}, err
	}
	s.invalidateAlerts(ctx, ownerID)
	return *created, nil
}

func (s *Service) Restock(ctx context.Context, ownerID int64, medicineID int64, quantity int) (domain.Medicine, error) {
	if quantity < 1 || quantity > store.MaxQuantity {
		return domain.Medicine{}, store.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", store.MaxQuantity))
	}
	med, err := s.repo.IncreaseQuantity(ctx, ownerID, medicineID, quantity)
	if err != nil {
		return domain.Medicine{}, err
	}
	s.invalidateAlerts(ctx, ownerID)
	return *med, nil
}

func (s *Service) GetMedicine(ctx context.Context, ownerID int64, medicineID int64) (domain.Medicine, error) {
	med, err := s.repo.FindMedicine(ctx, ownerID, medicineID)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *med, nil
}

// ListStock returns the owner's stock in FIFO dispensing order after a gated
// expiry sweep.
func (s *Service) ListStock(ctx context.Context, ownerID int64) ([]domain.Medicine, error) {
	s.maybePurge(ctx, ownerID)
	return s.repo.ListMedicines(ctx, ownerID)
}

// PurgeExpired sweeps unconditionally, bypassing the purge gate.
func (s *Service) PurgeExpired(ctx context.Context, ownerID int64) (domain.PurgeResult, error) {
	result, err := s.repo.PurgeExpired(ctx, ownerID, s.now())
	if err != nil {
		return domain.PurgeResult{}, err
	}
	s.logPurge(ownerID, result)
	if result.Removed > 0 {
		s.invalidateAlerts(ctx, ownerID)
	}
	return result, nil
}

// maybePurge runs the sweep at most once per owner per purge interval. A
// failed sweep is logged and does not fail the read that triggered it.
func (s *Service) maybePurge(ctx context.Context, ownerID int64) {
	acquired, err := s.purgeGate.Acquire(ctx, ownerID, s.purgeInterval)
	if err != nil {
		s.logger.Warn("purge gate unavailable, sweeping anyway", zap.Int64("owner_id", ownerID), zap.Error(err))
		acquired = true
	}
	if !acquired {
		return
	}
	if _, err := s.PurgeExpired(ctx, ownerID); err != nil {
		s.logger.Warn("opportunistic purge failed", zap.Int64("owner_id", ownerID), zap.Error(err))
	}
}

func (s *Service) logPurge(ownerID int64, result domain.PurgeResult) {
	if result.Removed == 0 && result.Skipped == 0 {
		return
	}
	s.logger.Info("expired stock purged",
		zap.Int64("owner_id", ownerID),
		zap.String("as_of", result.AsOf),
		zap.Int("removed", result.Removed),
		zap.Int("skipped_unreadable", result.Skipped),
	)
}

func (s *Service) SuggestDispense(ctx context.Context, ownerID int64, req domain.SuggestRequest) (dispense.Plan, error) {
	stock, err := s.ListStock(ctx, ownerID)
	if err != nil {
		return dispense.Plan{}, err
	}
	return dispense.Suggest(stock, req, s.now())
}
