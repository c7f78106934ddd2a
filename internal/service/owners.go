package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.Owner, error) {
	owner := domain.Owner{
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:         strings.TrimSpace(req.Phone),
		Username:      strings.ToLower(strings.TrimSpace(req.Username)),
		PharmacyName:  strings.TrimSpace(req.PharmacyName),
		LicenseNumber: strings.ToUpper(strings.TrimSpace(req.LicenseNumber)),
		Address:       strings.TrimSpace(req.Address),
	}

	required := []struct{ field, value string }{
		{"name", owner.Name},
		{"email", owner.Email},
		{"phone", owner.Phone},
		{"username", owner.Username},
		{"pharmacy_name", owner.PharmacyName},
		{"license_number", owner.LicenseNumber},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.Owner{}, store.Invalid(r.field, "is required")
		}
	}
	if len(owner.Username) < 3 || strings.ContainsAny(owner.Username, " \t\r\n") {
		return domain.Owner{}, store.Invalid("username", "must be at least 3 characters without spaces")
	}
	if _, err := mail.ParseAddress(owner.Email); err != nil {
		return domain.Owner{}, store.Invalid("email", "is not a valid address")
	}
	if len(req.Password) < 8 {
		return domain.Owner{}, store.Invalid("password", "must be at least 8 characters")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.Owner{}, err
	}
	owner.PasswordHash = hash

	created, err := s.repo.CreateOwner(ctx, owner)
	if err != nil {
		return domain.Owner{}, err
	}
	s.logger.Info("owner registered", zap.Int64("owner_id", created.ID), zap.String("username", created.Username))
	return *created, nil
}

// Authenticate checks credentials and, on success, gives the owner's expired
// stock a chance to be swept.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Owner, error) {
	owner, err := s.repo.FindOwnerByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Owner{}, ErrInvalidCredentials
		}
		return domain.Owner{}, err
	}
	if !verifyPassword(owner.PasswordHash, password) {
		return domain.Owner{}, ErrInvalidCredentials
	}

	s.maybePurge(ctx, owner.ID)
	return *owner, nil
}

func (s *Service) Owner(ctx context.Context, ownerID int64) (domain.Owner, error) {
	owner, err := s.repo.FindOwnerByID(ctx, ownerID)
	if err != nil {
		return domain.Owner{}, err
	}
	return *owner, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
