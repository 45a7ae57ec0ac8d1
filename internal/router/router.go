package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	echoSwagger "github.com/swaggo/echo-swagger"

	"accounts/internal/handler"
	"accounts/internal/middleware"
	"accounts/internal/model"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	log *logrus.Logger,
	tokens middleware.TokenVerifier,
	users middleware.UserFinder,
	accountHandler *handler.AccountHandler,
) {
	e.HideBanner = true
	e.HTTPErrorHandler = handler.NewErrorHandler(log)
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Public routes
	e.POST("/register", accountHandler.Register)
	e.POST("/login", accountHandler.Login)
	e.POST("/admin/login", accountHandler.AdminLogin)

	// Secured routes (require a bearer token)
	authenticate := middleware.Authenticate(tokens)
	e.GET("/profile", accountHandler.Profile, authenticate)
	e.PUT("/edit", accountHandler.Edit, authenticate)

	// Admin routes (bearer token of an admin user)
	admin := e.Group("/admin", authenticate, middleware.RequireRole(users, model.RoleAdmin))
	admin.POST("/register", accountHandler.AdminRegister)
	admin.GET("/users", accountHandler.ListUsers)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
