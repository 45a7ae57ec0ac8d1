package main

import (
	"context"
	"time"

	"accounts/internal/auth"
	"accounts/internal/config"
	"accounts/internal/db"
	"accounts/internal/logging"
	"accounts/internal/repository"
	"accounts/internal/service"
)

// seed creates the first administrator so that /admin/register, which needs an
// admin token, can be used at all.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	log.Info("Starting seed script...")

	if !cfg.AdminBootstrapEnabled() {
		log.Fatal("ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD are required")
	}

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Info("Connected to database")

	// Run migrations to ensure schema is up to date
	if err := db.Migrate(gormDB, false); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Info("Database migrations completed")

	userRepo := repository.NewUserRepository(gormDB)
	accountService := service.NewAccountService(
		userRepo,
		auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL),
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := accountService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to seed admin: %v", err)
	}

	entry := log.WithField("id", user.ID.String()).WithField("email", user.Email).WithField("role", user.Role)
	if !created {
		entry.Warn("Email already registered, nothing created")
		return
	}
	entry.Info("Admin created")
}
