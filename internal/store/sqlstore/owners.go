package sqlstore

import (
	"context"
	"time"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

const ownerColumns = `id, name, email, phone, username, password_hash, pharmacy_name, license_number, address, created_at`

func (s *Store) CreateOwner(ctx context.Context, owner domain.Owner) (*domain.Owner, error) {
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO owners (name, email, phone, username, password_hash, pharmacy_name, license_number, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), owner.Name, owner.Email, owner.Phone, owner.Username, owner.PasswordHash,
		owner.PharmacyName, owner.LicenseNumber, owner.Address, owner.CreatedAt,
	).Scan(&owner.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &owner, nil
}

func (s *Store) FindOwnerByID(ctx context.Context, id int64) (*domain.Owner, error) {
	var owner domain.Owner
	err := s.db.GetContext(ctx, &owner, s.db.Rebind(`SELECT `+ownerColumns+` FROM owners WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err)
	}
	return &owner, nil
}

func (s *Store) FindOwnerByUsername(ctx context.Context, username string) (*domain.Owner, error) {
	var owner domain.Owner
	err := s.db.GetContext(ctx, &owner, s.db.Rebind(`SELECT `+ownerColumns+` FROM owners WHERE username = ?`), username)
	if err != nil {
		return nil, notFound(err)
	}
	return &owner, nil
}
