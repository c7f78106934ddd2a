package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/receipt"
	"medshelf/backend/internal/store"
	"medshelf/backend/internal/xid"
)

// CommitSale validates the cart in order, stopping at the first line that
// cannot be covered, then deducts stock and appends the sale as one unit.
// A receipt that cannot be stored is reported in ReceiptWarning; the sale
// stays committed.
func (s *Service) CommitSale(ctx context.Context, ownerID int64, req domain.CommitRequest) (domain.CommitResult, error) {
	if len(req.Items) == 0 {
		return domain.CommitResult{}, store.ErrEmptyCart
	}

	owner, err := s.repo.FindOwnerByID(ctx, ownerID)
	if err != nil {
		return domain.CommitResult{}, err
	}

	lines, err := s.resolveLines(ctx, ownerID, req.Items)
	if err != nil {
		return domain.CommitResult{}, err
	}

	revenue := decimal.Zero
	cost := decimal.Zero
	for _, line := range lines {
		revenue = revenue.Add(line.Revenue())
		cost = cost.Add(line.CostOfGoods())
	}

	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		customer = "Walk-in"
	}
	sale := domain.SaleTransaction{
		ID:            xid.New("sale"),
		OwnerID:       ownerID,
		CustomerName:  customer,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		TotalRevenue:  revenue,
		TotalCost:     cost,
		ItemCount:     len(lines),
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
	}
	sale.Receipt = receipt.Render(*owner, sale, lines)

	committed, err := s.repo.CommitSale(ctx, sale, lines)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			s.logger.Info("sale aborted", zap.Int64("owner_id", ownerID), zap.Error(err))
		}
		return domain.CommitResult{}, err
	}
	s.invalidateAlerts(ctx, ownerID)

	result := domain.CommitResult{
		Sale:        *committed,
		Lines:       lines,
		ReceiptName: receipt.FileName(*committed),
	}
	if err := s.sink.Put(ctx, result.ReceiptName, committed.Receipt); err != nil {
		s.logger.Warn("receipt not stored",
			zap.String("sale_id", committed.ID),
			zap.String("receipt", result.ReceiptName),
			zap.Error(err),
		)
		result.ReceiptWarning = fmt.Sprintf("sale recorded but receipt could not be stored: %v", err)
	}

	s.logger.Info("sale committed",
		zap.Int64("owner_id", ownerID),
		zap.String("sale_id", committed.ID),
		zap.Int("items", committed.ItemCount),
		zap.String("total_revenue", committed.TotalRevenue.String()),
	)
	return result, nil
}

// resolveLines fills each line from the stored medicine and rejects the cart
// at the first line that is malformed or cannot be covered. The store repeats
// the stock check atomically at commit time.
func (s *Service) resolveLines(ctx context.Context, ownerID int64, items []domain.LineItem) ([]domain.LineItem, error) {
	lines := make([]domain.LineItem, 0, len(items))
	claimed := make(map[int64]int, len(items))

	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if item.MedicineID < 1 {
			return nil, store.Invalid(field+".medicine_id", "is required")
		}
		if item.Quantity < 1 || item.Quantity > store.MaxQuantity {
			return nil, store.Invalid(field+".quantity", fmt.Sprintf("must be between 1 and %d", store.MaxQuantity))
		}
		if item.Rate.Valid && item.Rate.Decimal.IsNegative() {
			return nil, store.Invalid(field+".rate", "must not be negative")
		}
		if item.Cost.Valid && item.Cost.Decimal.IsNegative() {
			return nil, store.Invalid(field+".cost", "must not be negative")
		}

		med, err := s.repo.FindMedicine(ctx, ownerID, item.MedicineID)
		if errors.Is(err, store.ErrNotFound) {
			name := item.Name
			if name == "" {
				name = fmt.Sprintf("medicine %d", item.MedicineID)
			}
			return nil, &store.InsufficientStockError{MedicineID: item.MedicineID, Item: name}
		}
		if err != nil {
			return nil, err
		}
		if med.Quantity-claimed[med.ID] < item.Quantity {
			return nil, &store.InsufficientStockError{MedicineID: med.ID, Item: med.Name}
		}
		claimed[med.ID] += item.Quantity

		line := domain.LineItem{
			MedicineID: med.ID,
			Name:       med.Name,
			Quantity:   item.Quantity,
			Rate:       decimal.NewNullDecimal(med.SellingPrice),
			Cost:       decimal.NewNullDecimal(med.CostPrice),
		}
		if item.Rate.Valid {
			line.Rate = item.Rate
		}
		if item.Cost.Valid {
			line.Cost = item.Cost
		}
		lines = append(lines, line)
	}
	return lines, nil
}
