package sqlstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

const saleColumns = `id, owner_id, customer_name, customer_phone, total_revenue, total_cost, item_count, created_at, receipt`

// commitAttempts bounds how often a cart that lost a deadlock or
// serialization race is replayed before the caller sees ErrConflict.
const commitAttempts = 3

func (s *Store) CommitSale(ctx context.Context, sale domain.SaleTransaction, lines []domain.LineItem) (*domain.SaleTransaction, error) {
	if len(lines) == 0 {
		return nil, store.ErrEmptyCart
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, store.Invalid("quantity", "must be at least 1")
		}
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.ItemCount = len(lines)

	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		err = s.commitSaleTx(ctx, sale, lines)
		if err == nil {
			return &sale, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("sale commit lost a lock race, retrying",
			zap.Int64("owner_id", sale.OwnerID),
			zap.String("sale_id", sale.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("%w: %v", store.ErrConflict, err)
}

// commitSaleTx decrements every line and records the ledger row in one
// transaction. Any error leaves stock and ledger untouched.
func (s *Store) commitSaleTx(ctx context.Context, sale domain.SaleTransaction, lines []domain.LineItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range lines {
		if err := decrement(ctx, tx, sale.OwnerID, line); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO sale_transactions (`+saleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sale.ID, sale.OwnerID, sale.CustomerName, sale.CustomerPhone,
		sale.TotalRevenue, sale.TotalCost, sale.ItemCount, sale.CreatedAt, sale.Receipt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}

	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context, ownerID int64, limit int) ([]domain.SaleTransaction, error) {
	query := `SELECT ` + saleColumns + ` FROM sale_transactions WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	sales := make([]domain.SaleTransaction, 0, 32)
	if err := s.db.SelectContext(ctx, &sales, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) FindSale(ctx context.Context, ownerID int64, saleID string) (*domain.SaleTransaction, error) {
	var sale domain.SaleTransaction
	err := s.db.GetContext(ctx, &sale, s.db.Rebind(`SELECT `+saleColumns+` FROM sale_transactions WHERE id = ? AND owner_id = ?`), saleID, ownerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &sale, nil
}
