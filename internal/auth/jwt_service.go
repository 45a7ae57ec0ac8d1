package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	apperrors "accounts/internal/errors"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 15 * time.Minute

// JWTService issues and verifies HS256 access tokens whose subject is a user ID.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the given secret and token lifetime.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the configured token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token bound to userID.
func (s *JWTService) Issue(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := &jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the subject user ID.
// It fails with ErrTokenExpired for expired tokens and ErrTokenInvalid otherwise.
func (s *JWTService) Verify(tokenString string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, apperrors.ErrTokenInvalid
	}

	// Time claims are checked against the service clock, not jwt.TimeFunc.
	now := s.now()
	if !claims.VerifyExpiresAt(now, true) {
		return uuid.Nil, apperrors.ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) || !claims.VerifyIssuedAt(now, false) {
		return uuid.Nil, apperrors.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apperrors.ErrTokenInvalid
	}
	return userID, nil
}
