package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"accounts/internal/auth"
	"accounts/internal/handler"
	"accounts/internal/model"
	"accounts/internal/repository"
	"accounts/internal/router"
	"accounts/internal/service"
)

// memoryRepository is an in-memory UserRepository with a unique email index.
type memoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
	order []uuid.UUID
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{users: map[uuid.UUID]model.User{}}
}

func (r *memoryRepository) emailTaken(email string, except uuid.UUID) bool {
	for id, u := range r.users {
		if u.Email == email && id != except {
			return true
		}
	}
	return false
}

func (r *memoryRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(user.Email, uuid.Nil) {
		return repository.ErrDuplicateEmail
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	r.order = append(r.order, user.ID)
	return nil
}

func (r *memoryRepository) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(user.Email, user.ID) {
		return repository.ErrDuplicateEmail
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *memoryRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]model.User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.users[id])
	}
	return users, nil
}

func (r *memoryRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo repository.UserRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepository) delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	e       *echo.Echo
	repo    *memoryRepository
	service service.AccountService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := newMemoryRepository()
	jwtService := auth.NewJWTService("test-secret", time.Minute)
	accountService := service.NewAccountService(repo, auth.NewPasswordHasher(bcrypt.MinCost), jwtService, nil)

	log := logrus.New()
	log.Out = io.Discard

	e := echo.New()
	router.Register(e, log, jwtService, repo, handler.NewAccountHandler(accountService))
	return &testServer{t: t, e: e, repo: repo, service: accountService}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(s.t, rec.Code, env.StatusCode)
	assert.NotContains(s.t, rec.Body.String(), `"password`)
	assert.NotContains(s.t, rec.Body.String(), "$2a$")
	return rec.Code, env
}

func (s *testServer) login(path, email, password string) string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, path, "", map[string]string{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, code, env.Message)
	var data handler.TokenData
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.AccessToken)
	return data.AccessToken
}

func (s *testServer) seedAdmin() string {
	s.t.Helper()
	_, created, err := s.service.EnsureAdmin(context.Background(), "root@x.com", "Root", "rootpassword")
	require.NoError(s.t, err)
	require.True(s.t, created)
	return s.login("/admin/login", "root@x.com", "rootpassword")
}

func decodeUser(t *testing.T, env envelope) model.UserView {
	t.Helper()
	var data handler.UserData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.User
}

func TestAccountFlow(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": "longpassword1",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	created := decodeUser(t, env)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, model.RoleMember, created.Role)
	assert.NotEmpty(t, created.CreatedAt)

	token := s.login("/login", "a@x.com", "longpassword1")

	code, env = s.do(http.MethodGet, "/profile", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ann", decodeUser(t, env).Name)

	code, env = s.do(http.MethodPut, "/edit", token, map[string]string{"name": "Annie"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "Annie", decodeUser(t, env).Name)

	code, env = s.do(http.MethodGet, "/profile", token, nil)
	require.Equal(t, http.StatusOK, code)
	profile := decodeUser(t, env)
	assert.Equal(t, "Annie", profile.Name)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, created.ID, profile.ID)
}

func TestRegister_Failures(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": "longpassword1",
	})
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name    string
		body    map[string]string
		code    string
		message string
	}{
		{name: "missing name", body: map[string]string{"email": "b@x.com", "password": "longpassword1"}, code: "MISSING_FIELD", message: "Missing required fields"},
		{name: "bad email", body: map[string]string{"email": "b-at-x.com", "name": "B", "password": "longpassword1"}, code: "INVALID_EMAIL", message: "Invalid email format"},
		{name: "weak password", body: map[string]string{"email": "b@x.com", "name": "B", "password": "short"}, code: "WEAK_PASSWORD", message: "Password must be at least 8 characters long"},
		{name: "73 byte password", body: map[string]string{"email": "b@x.com", "name": "B", "password": strings.Repeat("a", 73)}, code: "PASSWORD_TOO_LONG", message: "Password must be at most 72 bytes long"},
		{name: "37 character but 74 byte password", body: map[string]string{"email": "b@x.com", "name": "B", "password": strings.Repeat("é", 37)}, code: "PASSWORD_TOO_LONG", message: "Password must be at most 72 bytes long"},
		{name: "duplicate email", body: map[string]string{"email": "a@x.com", "name": "Other", "password": "otherpassword"}, code: "ALREADY_REGISTERED", message: "User already registered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(http.MethodPost, "/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.message, env.Message)
			assert.JSONEq(t, `{"code":"`+tt.code+`"}`, string(env.Data))
		})
	}
}

func TestRegister_PasswordAtBcryptLimit(t *testing.T) {
	s := newTestServer(t)
	password := strings.Repeat("a", 72)

	code, env := s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": password,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	s.login("/login", "a@x.com", password)
}

func TestAdminRegister_PasswordTooLong(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.seedAdmin()

	code, env := s.do(http.MethodPost, "/admin/register", adminToken, map[string]string{
		"email": "ops@x.com", "name": "Ops", "role": "admin", "password": strings.Repeat("a", 73),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Password must be at most 72 bytes long", env.Message)
}

func TestRegister_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{"email":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": "longpassword1",
	})
	require.Equal(t, http.StatusCreated, code)

	code, wrongPassword := s.do(http.MethodPost, "/login", "", map[string]string{"email": "a@x.com", "password": "nottherightone"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, unknown := s.do(http.MethodPost, "/login", "", map[string]string{"email": "nobody@x.com", "password": "longpassword1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, wrongPassword.Message, unknown.Message)

	code, _ = s.do(http.MethodPost, "/login", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/admin/login", "", map[string]string{"email": "a@x.com", "password": "longpassword1"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProfile_UserGone(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": "longpassword1",
	})
	require.Equal(t, http.StatusCreated, code)
	token := s.login("/login", "a@x.com", "longpassword1")

	s.repo.delete(decodeUser(t, env).ID)

	code, _ = s.do(http.MethodGet, "/profile", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodPut, "/edit", token, map[string]string{"name": "Ghost"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodGet, "/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(http.MethodPut, "/edit", "", map[string]string{"name": "X"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(http.MethodGet, "/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestEdit_PartialUpdates(t *testing.T) {
	s := newTestServer(t)
	for _, email := range []string{"a@x.com", "b@x.com"} {
		code, _ := s.do(http.MethodPost, "/register", "", map[string]string{
			"email": email, "name": "User", "password": "longpassword1",
		})
		require.Equal(t, http.StatusCreated, code)
	}
	token := s.login("/login", "a@x.com", "longpassword1")

	code, env := s.do(http.MethodPut, "/edit", token, map[string]string{"email": "ann@x.com"})
	require.Equal(t, http.StatusOK, code, env.Message)
	updated := decodeUser(t, env)
	assert.Equal(t, "ann@x.com", updated.Email)
	assert.Equal(t, "User", updated.Name)

	code, env = s.do(http.MethodPut, "/edit", token, map[string]string{"email": "b@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "User already registered", env.Message)

	code, _ = s.do(http.MethodPut, "/edit", token, map[string]string{"email": "broken"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPut, "/edit", token, map[string]string{"role": "admin", "password": "hijacked!!"})
	require.Equal(t, http.StatusOK, code)
	stored, err := s.repo.FindByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, stored.Role)
	assert.True(t, auth.NewPasswordHasher(bcrypt.MinCost).Verify("longpassword1", stored.PasswordHash))
}

func TestAdminUsers_AccessGuard(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.seedAdmin()

	code, _ := s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": "longpassword1",
	})
	require.Equal(t, http.StatusCreated, code)
	memberToken := s.login("/login", "a@x.com", "longpassword1")

	code, _ = s.do(http.MethodGet, "/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/admin/users", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(http.MethodGet, "/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	var list handler.UserListData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Users, 2)
	assert.Equal(t, "root@x.com", list.Users[0].Email)
	assert.Equal(t, "a@x.com", list.Users[1].Email)
}

func TestAdminRegister(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.seedAdmin()

	body := map[string]string{"email": "ops@x.com", "name": "Ops", "role": "admin", "password": "opspassword"}

	code, _ := s.do(http.MethodPost, "/admin/register", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/register", "", map[string]string{
		"email": "a@x.com", "name": "Ann", "password": "longpassword1",
	})
	require.Equal(t, http.StatusCreated, code)
	memberToken := s.login("/login", "a@x.com", "longpassword1")
	code, _ = s.do(http.MethodPost, "/admin/register", memberToken, body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(http.MethodPost, "/admin/register", adminToken, body)
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, model.RoleAdmin, decodeUser(t, env).Role)
	s.login("/admin/login", "ops@x.com", "opspassword")

	code, env = s.do(http.MethodPost, "/admin/register", adminToken, map[string]string{
		"email": "x@x.com", "name": "X", "password": "longpassword1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing required fields", env.Message)

	code, env = s.do(http.MethodPost, "/admin/register", adminToken, map[string]string{
		"email": "x@x.com", "name": "X", "role": "owner", "password": "longpassword1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid role", env.Message)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
}
