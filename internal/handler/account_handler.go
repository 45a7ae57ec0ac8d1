package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "accounts/internal/errors"
	"accounts/internal/middleware"
	"accounts/internal/model"
	"accounts/internal/service"
)

// AccountHandler handles the account endpoints.
type AccountHandler struct {
	accountService service.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// RegisterRequest represents a self-service registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AdminRegisterRequest represents a registration request with an explicit role.
type AdminRegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// EditRequest represents a partial profile update. Omitted fields are unchanged.
type EditRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

// TokenData is the payload of a successful login.
type TokenData struct {
	AccessToken string `json:"access_token"`
}

// UserData wraps a single user view.
type UserData struct {
	User model.UserView `json:"user"`
}

// UserListData wraps a list of user views.
type UserListData struct {
	Users []model.UserView `json:"users"`
}

// Register godoc
// @Summary Register a new member
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} errors.Response{data=UserData}
// @Failure 400 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ErrInvalidBody
	}

	user, err := h.accountService.Register(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, "User successfully registered", UserData{User: user.View()})
}

// Login godoc
// @Summary Login
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} errors.Response{data=TokenData}
// @Failure 400 {object} errors.Response
// @Failure 401 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	req, err := bindLogin(c)
	if err != nil {
		return err
	}

	token, err := h.accountService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Login successful", TokenData{AccessToken: token})
}

// Profile godoc
// @Summary Current user's profile
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} errors.Response{data=UserData}
// @Failure 401 {object} errors.Response
// @Failure 404 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /profile [get]
func (h *AccountHandler) Profile(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return apperrors.ErrTokenInvalid
	}

	user, err := h.accountService.GetProfile(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "User profile retrieved", UserData{User: user.View()})
}

// Edit godoc
// @Summary Update the current user's email and/or name
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EditRequest true "Fields to change"
// @Success 200 {object} errors.Response{data=UserData}
// @Failure 400 {object} errors.Response
// @Failure 401 {object} errors.Response
// @Failure 404 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /edit [put]
func (h *AccountHandler) Edit(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return apperrors.ErrTokenInvalid
	}

	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ErrInvalidBody
	}

	user, err := h.accountService.UpdateProfile(c.Request().Context(), id, service.ProfilePatch{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "User profile updated", UserData{User: user.View()})
}

// AdminRegister godoc
// @Summary Register a user with an explicit role
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AdminRegisterRequest true "Registration data"
// @Success 201 {object} errors.Response{data=UserData}
// @Failure 400 {object} errors.Response
// @Failure 401 {object} errors.Response
// @Failure 403 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /admin/register [post]
func (h *AccountHandler) AdminRegister(c echo.Context) error {
	var req AdminRegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ErrInvalidBody
	}

	user, err := h.accountService.RegisterWithRole(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, "User successfully added", UserData{User: user.View()})
}

// AdminLogin godoc
// @Summary Login as an administrator
// @Tags admin
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} errors.Response{data=TokenData}
// @Failure 400 {object} errors.Response
// @Failure 401 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /admin/login [post]
func (h *AccountHandler) AdminLogin(c echo.Context) error {
	req, err := bindLogin(c)
	if err != nil {
		return err
	}

	token, err := h.accountService.AdminLogin(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Admin login successful", TokenData{AccessToken: token})
}

// ListUsers godoc
// @Summary List every user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} errors.Response{data=UserListData}
// @Failure 401 {object} errors.Response
// @Failure 403 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /admin/users [get]
func (h *AccountHandler) ListUsers(c echo.Context) error {
	users, err := h.accountService.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Users retrieved", UserListData{Users: model.Views(users)})
}

func bindLogin(c echo.Context) (*LoginRequest, error) {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return nil, apperrors.ErrInvalidBody
	}
	if err := c.Validate(&req); err != nil {
		return nil, apperrors.ErrMissingField
	}
	return &req, nil
}
