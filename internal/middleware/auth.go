package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	apperrors "accounts/internal/errors"
	"accounts/internal/model"
	"accounts/internal/repository"
)

// UserIDKey is the echo context key holding the authenticated user ID.
const UserIDKey = "user_id"

// TokenVerifier decodes a bearer token into a user ID.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// UserFinder loads a user by ID.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Authenticate rejects requests without a valid bearer token and binds the
// token's user ID under UserIDKey.
func Authenticate(tokens TokenVerifier) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  UserIDKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return tokens.Verify(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			switch {
			case errors.Is(err, apperrors.ErrTokenExpired):
				return apperrors.ErrTokenExpired
			case errors.Is(err, apperrors.ErrTokenInvalid):
				return apperrors.ErrTokenInvalid
			default:
				return apperrors.ErrTokenMissing
			}
		},
	})
}

// RequireRole lets the request through only when the authenticated user holds role.
// It must run after Authenticate.
func RequireRole(users UserFinder, role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := UserID(c)
			if !ok {
				return apperrors.ErrTokenInvalid
			}

			user, err := users.FindByID(c.Request().Context(), id)
			if err != nil {
				// The token outlived its user.
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.ErrTokenInvalid
				}
				return fmt.Errorf("load user role: %w", err)
			}
			if user.Role != role {
				return apperrors.ErrForbidden
			}
			return next(c)
		}
	}
}

// UserID returns the user ID bound by Authenticate.
func UserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(UserIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
