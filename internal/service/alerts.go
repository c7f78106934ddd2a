package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"medshelf/backend/internal/alert"
	"medshelf/backend/internal/domain"
)

const recentSalesOnDashboard = 5

func (s *Service) Alerts(ctx context.Context, ownerID int64, filter string) (alert.Summary, error) {
	if _, err := alert.Filter(alert.Summary{}, filter); err != nil {
		return alert.Summary{}, err
	}
	summary, err := s.alertSummary(ctx, ownerID)
	if err != nil {
		return alert.Summary{}, err
	}
	return alert.Filter(summary, filter)
}

func (s *Service) alertSummary(ctx context.Context, ownerID int64) (alert.Summary, error) {
	s.maybePurge(ctx, ownerID)

	asOf := s.now()
	day := domain.DateOf(asOf).Format(domain.ExpiryLayout)
	cached, gen, ok, cacheErr := s.alerts.Get(ctx, ownerID, day)
	if cacheErr != nil {
		s.logger.Warn("alert cache read failed", zap.Int64("owner_id", ownerID), zap.Error(cacheErr))
	} else if ok {
		return *cached, nil
	}

	meds, err := s.repo.ListMedicines(ctx, ownerID)
	if err != nil {
		return alert.Summary{}, err
	}
	summary := alert.Summarize(meds, asOf, s.alertOpts)
	if summary.DateErrorCount > 0 {
		s.logger.Debug("stock with unreadable expiry", zap.Int64("owner_id", ownerID), zap.Int("count", summary.DateErrorCount))
	}

	if cacheErr != nil {
		return summary, nil
	}
	if err := s.alerts.Set(ctx, ownerID, gen, &summary, s.alertTTL); err != nil {
		s.logger.Warn("alert cache write failed", zap.Int64("owner_id", ownerID), zap.Error(err))
	}
	return summary, nil
}

func (s *Service) Dashboard(ctx context.Context, ownerID int64) (domain.Dashboard, error) {
	summary, err := s.alertSummary(ctx, ownerID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	sales, err := s.repo.ListSales(ctx, ownerID, 0)
	if err != nil {
		return domain.Dashboard{}, err
	}

	board := domain.Dashboard{
		AsOf:              summary.AsOf,
		MedicineCount:     len(summary.Items),
		ExpiringSoonCount: summary.ExpiringSoonCount,
		LowStockCount:     summary.LowStockCount,
		DateErrorCount:    summary.DateErrorCount,
		SalesCount:        len(sales),
		TotalRevenue:      decimal.Zero,
		TotalCost:         decimal.Zero,
		RecentSales:       make([]domain.SaleTransaction, 0, recentSalesOnDashboard),
	}
	for i, sale := range sales {
		board.TotalRevenue = board.TotalRevenue.Add(sale.TotalRevenue)
		board.TotalCost = board.TotalCost.Add(sale.TotalCost)
		if i < recentSalesOnDashboard {
			sale.Receipt = ""
			board.RecentSales = append(board.RecentSales, sale)
		}
	}
	board.GrossProfit = board.TotalRevenue.Sub(board.TotalCost)
	return board, nil
}
