package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"accounts/internal/cache"
	apperrors "accounts/internal/errors"
	"accounts/internal/model"
	"accounts/internal/repository"
)

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest password bcrypt accepts, in bytes.
	MaxPasswordBytes = 72

	profileCacheTTL = 5 * time.Minute
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9.-]+$`)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// ProfileCache stores serialized profiles by key. *cache.Client satisfies it.
type ProfileCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Email    string `validate:"required,mailbox"`
	Name     string `validate:"required"`
	Password string `validate:"required,min=8,bcryptmax"`
	Role     string `validate:"required,role"`
}

// ProfilePatch holds the fields to change; nil fields are left untouched.
type ProfilePatch struct {
	Email *string
	Name  *string
}

// AccountService handles registration, login and profile operations.
type AccountService interface {
	// Register creates a member account.
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	// RegisterWithRole creates an account with the role given in the input.
	RegisterWithRole(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	// AdminLogin is Login restricted to admin accounts.
	AdminLogin(ctx context.Context, email, password string) (string, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// EnsureAdmin creates an admin with the given credentials unless the email is
	// already registered. It reports whether a user was created.
	EnsureAdmin(ctx context.Context, email, name, password string) (*model.User, bool, error)
}

type accountService struct {
	repo     repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	cache    ProfileCache
	validate *validator.Validate
	group    singleflight.Group

	// cacheGen is bumped by every profile write. A fill that started under an
	// older generation must not store what it read.
	cacheMu  sync.Mutex
	cacheGen uint64
}

// NewAccountService creates a new account service. profiles may be nil.
func NewAccountService(repo repository.UserRepository, hasher PasswordHasher, tokens TokenIssuer, profiles ProfileCache) AccountService {
	if profiles == nil {
		profiles = (*cache.Client)(nil)
	}
	return &accountService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		cache:    profiles,
		validate: NewValidator(),
	}
}

// NewValidator returns a validator with the "mailbox", "bcryptmax" and "role" tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bcryptmax", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	return v
}

func (s *accountService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id.String())
}

func (s *accountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Role = string(model.RoleMember)
	return s.create(ctx, in)
}

func (s *accountService) RegisterWithRole(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.create(ctx, in)
}

func (s *accountService) create(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}

	_, err := s.repo.FindByEmail(ctx, in.Email)
	if err == nil {
		return nil, apperrors.ErrAlreadyRegistered
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hashed,
		Role:         model.Role(in.Role),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		// Lost the race against a concurrent registration.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// checkInput reports the first failing rule in the order: missing field,
// email shape, password length, role.
func (s *accountService) checkInput(in RegisterInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	byField := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apperrors.ErrMissingField
		}
		byField[fe.Field()] = fe.Tag()
	}
	switch {
	case byField["Email"] != "":
		return apperrors.ErrInvalidEmail
	case byField["Password"] == "bcryptmax":
		return apperrors.ErrPasswordTooLong
	case byField["Password"] != "":
		return apperrors.ErrWeakPassword
	default:
		return apperrors.ErrInvalidRole
	}
}

func (s *accountService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	return s.issue(user)
}

func (s *accountService) AdminLogin(ctx context.Context, email, password string) (string, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	if user.Role != model.RoleAdmin {
		return "", apperrors.ErrInvalidCredentials
	}
	return s.issue(user)
}

// authenticate does not distinguish an unknown email from a wrong password.
func (s *accountService) authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *accountService) issue(user *model.User) (string, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return token, nil
}

func (s *accountService) GetProfile(ctx context.Context, id uuid.UUID) (*model.User, error) {
	key := s.cacheKey(id)
	if data, _ := s.cache.Get(ctx, key); data != nil {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Shared by every caller of the flight; one caller going away must not fail the rest.
		ctx := context.WithoutCancel(ctx)
		gen := s.generation()
		user, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.fillCache(ctx, key, gen, user)
		return user, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	// Callers sharing a flight must not share the pointer.
	user := *v.(*model.User)
	return &user, nil
}

func (s *accountService) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*model.User, error) {
	if patch.Name != nil && *patch.Name == "" {
		return nil, apperrors.ErrMissingField
	}
	if patch.Email != nil {
		if *patch.Email == "" {
			return nil, apperrors.ErrMissingField
		}
		if !emailPattern.MatchString(*patch.Email) {
			return nil, apperrors.ErrInvalidEmail
		}
	}

	var updated *model.User
	err := s.repo.WithTransaction(ctx, func(ctx context.Context, repo repository.UserRepository) error {
		user, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}

		if patch.Email != nil && *patch.Email != user.Email {
			other, err := repo.FindByEmail(ctx, *patch.Email)
			switch {
			case err == nil && other.ID != user.ID:
				return apperrors.ErrAlreadyRegistered
			case err != nil && !errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("check email: %w", err)
			}
			user.Email = *patch.Email
		}
		if patch.Name != nil {
			user.Name = *patch.Name
		}

		if err := repo.Update(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return apperrors.ErrAlreadyRegistered
			}
			return fmt.Errorf("update user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, s.cacheKey(id))
	return updated, nil
}

func (s *accountService) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// fillCache stores user unless a profile write happened since gen was read.
func (s *accountService) fillCache(ctx context.Context, key string, gen uint64, user *model.User) {
	payload, err := json.Marshal(user)
	if err != nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen != gen {
		return
	}
	_ = s.cache.Set(ctx, key, payload, profileCacheTTL)
}

// invalidate drops the cached profile after a committed write. Fills already in
// flight see the new generation and skip their store; later readers start a new flight.
func (s *accountService) invalidate(ctx context.Context, key string) {
	s.cacheMu.Lock()
	s.cacheGen++
	s.cacheMu.Unlock()
	s.group.Forget(key)
	_ = s.cache.Delete(context.WithoutCancel(ctx), key)
}

func (s *accountService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *accountService) EnsureAdmin(ctx context.Context, email, name, password string) (*model.User, bool, error) {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("check admin existence: %w", err)
	}

	user, err := s.RegisterWithRole(ctx, RegisterInput{
		Email:    email,
		Name:     name,
		Password: password,
		Role:     string(model.RoleAdmin),
	})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}
