package service

import (
	"context"
	"strings"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/receipt"
	"medshelf/backend/internal/store"
)

const (
	defaultSalesLimit = 100
	maxSalesLimit     = 1000
)

// ListSales returns the owner's sales newest first. Receipt text is omitted;
// fetch it per sale with Receipt.
func (s *Service) ListSales(ctx context.Context, ownerID int64, limit int) ([]domain.SaleTransaction, error) {
	if limit <= 0 {
		limit = defaultSalesLimit
	}
	if limit > maxSalesLimit {
		limit = maxSalesLimit
	}
	sales, err := s.repo.ListSales(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Receipt = ""
	}
	return sales, nil
}

func (s *Service) GetSale(ctx context.Context, ownerID int64, saleID string) (domain.SaleTransaction, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleTransaction{}, store.Invalid("sale_id", "is required")
	}
	sale, err := s.repo.FindSale(ctx, ownerID, saleID)
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	return *sale, nil
}

// Receipt returns the stored receipt text and its file name.
func (s *Service) Receipt(ctx context.Context, ownerID int64, saleID string) (string, string, error) {
	sale, err := s.GetSale(ctx, ownerID, saleID)
	if err != nil {
		return "", "", err
	}
	return receipt.FileName(sale), receipt.Normalize(sale.Receipt), nil
}
