package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"medshelf/backend/internal/domain"
)

const tokenIssuer = "medshelf"

// AuthManager issues and verifies owner access tokens. The subject claim
// carries the owner id.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), tokenTTL: tokenTTL, now: time.Now}
}

func (a *AuthManager) Issue(owner domain.Owner) (domain.LoginResponse, error) {
	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(owner.ID, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		Owner:       owner,
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (int64, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return 0, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("invalid token subject")
	}
	ownerID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || ownerID < 1 {
		return 0, errors.New("invalid token subject")
	}
	return ownerID, nil
}

func (a *AuthManager) sign(ownerID int64, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		Subject:   strconv.FormatInt(ownerID, 10),
		IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    tokenIssuer,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

type ctxKey string

const ctxOwnerID ctxKey = "ownerID"

func withOwnerID(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ctxOwnerID, ownerID)
}

// ownerIDFrom returns the authenticated owner. Handlers behind requireAuth
// always have one.
func ownerIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxOwnerID).(int64)
	return id
}
