package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	JWTSecret   string
	JWTTTL      time.Duration
	BcryptCost  int
	LogLevel    string
	SwaggerHost string
	ResetDB     bool

	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// Load builds Config from environment with sensible defaults. A .env file in the
// working directory is read first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		MySQLDSN:      getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/accounts?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPass:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		JWTTTL:        getEnvDuration("JWT_TTL", 15*time.Minute),
		BcryptCost:    getEnvInt("BCRYPT_COST", 10),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SwaggerHost:   os.Getenv("SWAGGER_HOST"),
		ResetDB:       getEnvBool("RESET_DB", false),
		AdminEmail:    os.Getenv("ADMIN_BOOTSTRAP_EMAIL"),
		AdminName:     getEnv("ADMIN_BOOTSTRAP_NAME", "Administrator"),
		AdminPassword: os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"),
	}
}

// AdminBootstrapEnabled reports whether an initial admin should be ensured.
func (c *Config) AdminBootstrapEnabled() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("15m", "1h") or a bare number of minutes.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if minutes, err := strconv.Atoi(v); err == nil {
		if minutes <= 0 {
			return def
		}
		return time.Duration(minutes) * time.Minute
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
