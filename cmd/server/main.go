package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"accounts/docs"
	"accounts/internal/auth"
	"accounts/internal/cache"
	"accounts/internal/config"
	"accounts/internal/db"
	"accounts/internal/handler"
	"accounts/internal/logging"
	"accounts/internal/repository"
	"accounts/internal/router"
	"accounts/internal/service"
)

// @title User Account API
// @version 1.0
// @description User registration, login, profile management and admin user listing with JWT authentication.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	if cfg.ResetDB {
		log.Warn("RESET_DB=true detected, dropping users table")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	cacheClient := cache.New(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	defer cacheClient.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := cacheClient.Ping(pingCtx); err != nil {
		log.WithError(err).Warn("redis unavailable, profile cache disabled until it recovers")
	}
	cancelPing()

	userRepo := repository.NewUserRepository(gormDB)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)
	accountService := service.NewAccountService(userRepo, hasher, jwtService, cacheClient)
	accountHandler := handler.NewAccountHandler(accountService)

	if cfg.AdminBootstrapEnabled() {
		user, created, err := accountService.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
		if err != nil {
			log.Fatalf("admin bootstrap: %v", err)
		}
		log.WithField("email", user.Email).WithField("created", created).Info("admin bootstrap done")
	}

	e := echo.New()
	router.Register(e, log, jwtService, userRepo, accountHandler)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	log.Infof("Swagger documentation available at: http://%s/swagger/index.html", docs.SwaggerInfo.Host)

	addr := ":" + cfg.ServerPort
	go func() {
		log.Infof("listening on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server exited")
}
