package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

const medicineColumns = `id, owner_id, name, quantity, expiry_date, cost_price, selling_price, created_at`

func (s *Store) CreateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error) {
	if med.Quantity < 0 || med.Quantity > store.MaxQuantity {
		return nil, store.Invalid("quantity", fmt.Sprintf("must be between 0 and %d", store.MaxQuantity))
	}
	if med.CreatedAt.IsZero() {
		med.CreatedAt = time.Now().UTC()
	}

	if _, err := s.FindOwnerByID(ctx, med.OwnerID); err != nil {
		return nil, err
	}

	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO medicines (owner_id, name, quantity, expiry_date, cost_price, selling_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), med.OwnerID, med.Name, med.Quantity, med.ExpiryDate, med.CostPrice, med.SellingPrice, med.CreatedAt,
	).Scan(&med.ID)
	if err != nil {
		return nil, err
	}
	return &med, nil
}

func (s *Store) FindMedicine(ctx context.Context, ownerID int64, medicineID int64) (*domain.Medicine, error) {
	var med domain.Medicine
	err := s.db.GetContext(ctx, &med, s.db.Rebind(`SELECT `+medicineColumns+` FROM medicines WHERE id = ? AND owner_id = ?`), medicineID, ownerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &med, nil
}

func (s *Store) ListMedicines(ctx context.Context, ownerID int64) ([]domain.Medicine, error) {
	meds := make([]domain.Medicine, 0, 64)
	err := s.db.SelectContext(ctx, &meds, s.db.Rebind(`SELECT `+medicineColumns+` FROM medicines WHERE owner_id = ?`), ownerID)
	if err != nil {
		return nil, err
	}
	// Expiry is free text, so FIFO order is decided in Go rather than by ORDER BY.
	store.SortFIFO(meds)
	return meds, nil
}

func (s *Store) IncreaseQuantity(ctx context.Context, ownerID int64, medicineID int64, amount int) (*domain.Medicine, error) {
	if amount < 1 || amount > store.MaxQuantity {
		return nil, store.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", store.MaxQuantity))
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE medicines SET quantity = quantity + ? WHERE id = ? AND owner_id = ? AND quantity <= ?`),
		amount, medicineID, ownerID, store.MaxQuantity-amount)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Missing row or a sum past the cap; FindMedicine tells them apart.
		if _, err := s.FindMedicine(ctx, ownerID, medicineID); err != nil {
			return nil, err
		}
		return nil, store.Invalid("quantity", fmt.Sprintf("stock would exceed %d", store.MaxQuantity))
	}
	return s.FindMedicine(ctx, ownerID, medicineID)
}

func (s *Store) DecrementQuantity(ctx context.Context, ownerID int64, medicineID int64, amount int) error {
	if amount < 1 {
		return store.Invalid("quantity", "must be at least 1")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := decrement(ctx, tx, ownerID, domain.LineItem{MedicineID: medicineID, Quantity: amount}); err != nil {
		return err
	}
	return tx.Commit()
}

// decrement is the single compare-and-decrement statement. A zero row count
// means the medicine is missing, belongs to another owner, or is short.
func decrement(ctx context.Context, tx *sqlx.Tx, ownerID int64, line domain.LineItem) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE medicines SET quantity = quantity - ? WHERE id = ? AND owner_id = ? AND quantity >= ?`),
		line.Quantity, line.MedicineID, ownerID, line.Quantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	stockErr := &store.InsufficientStockError{MedicineID: line.MedicineID, Item: line.Name}
	var name string
	err = tx.GetContext(ctx, &name, tx.Rebind(`SELECT name FROM medicines WHERE id = ? AND owner_id = ?`), line.MedicineID, ownerID)
	if err == nil {
		stockErr.Item = name
	}
	return stockErr
}

func (s *Store) PurgeExpired(ctx context.Context, ownerID int64, asOf time.Time) (domain.PurgeResult, error) {
	result := domain.PurgeResult{AsOf: domain.DateOf(asOf).Format(domain.ExpiryLayout)}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func() { _ = tx.Rollback() }()

	var rows []struct {
		ID         int64  `db:"id"`
		ExpiryDate string `db:"expiry_date"`
	}
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(`SELECT id, expiry_date FROM medicines WHERE owner_id = ?`), ownerID); err != nil {
		return result, err
	}

	expiredIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		expired, readable := store.Expired(domain.Medicine{ExpiryDate: row.ExpiryDate}, asOf)
		if !readable {
			s.logger.Debug("purge skipped unreadable expiry",
				zap.Int64("owner_id", ownerID),
				zap.Int64("medicine_id", row.ID),
				zap.String("expiry_date", row.ExpiryDate),
			)
			result.Skipped++
			continue
		}
		if expired {
			expiredIDs = append(expiredIDs, row.ID)
		}
	}

	if len(expiredIDs) > 0 {
		query, args, err := sqlx.In(`DELETE FROM medicines WHERE owner_id = ? AND id IN (?)`, ownerID, expiredIDs)
		if err != nil {
			return result, err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return result, err
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return result, err
		}
		result.Removed = int(removed)
	}

	if err := tx.Commit(); err != nil {
		return domain.PurgeResult{AsOf: result.AsOf}, err
	}
	return result, nil
}
