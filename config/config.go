package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	OAuth     OAuthConfig
	ClickPesa ClickPesaConfig
	Stripe    StripeConfig
	Redis     RedisConfig
	Firebase  FirebaseConfig
	Credits   CreditsConfig
	Jobs      JobsConfig
	Admin     AdminConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver          string // mysql, postgres or sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	AdminExpiry  time.Duration
	Issuer       string
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// ClickPesaConfig holds the merchant credentials for the ClickPesa third-party API.
type ClickPesaConfig struct {
	BaseURL        string
	ClientID       string
	APIKey         string
	ChecksumSecret string
	WebhookSecret  string
	Timeout        time.Duration
	TokenTTL       time.Duration
}

type StripeConfig struct {
	SecretKey string
}

// RedisConfig is optional. When Addr is empty the gateway token lives in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TokenKey string
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

type CreditsConfig struct {
	StartingCredits    int64
	USDRateFallback    decimal.Decimal
	ExchangeRateURL    string
	ExchangeRateTTL    time.Duration
	PayoutTZSPerCredit decimal.Decimal
}

type JobsConfig struct {
	SweepInterval    time.Duration
	SweepMinAge      time.Duration
	SweepBatch       int
	SweepConcurrency int
}

type AdminConfig struct {
	Username string
	Password string
	Name     string
	Email    string
}

type LogConfig struct {
	Level string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8099"),
			Env:            getEnv("APP_ENV", "development"),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
			AllowedOrigins: []string{getEnv("CORS_ORIGIN", "*")},
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "mysql"),
			DSN:             getEnv("DB_DSN", "dukasell:dukasell@tcp(localhost:3306)/dukasell?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_SECRET", ""),
			AccessExpiry: getEnvDuration("JWT_EXPIRY", 30*24*time.Hour),
			AdminExpiry:  getEnvDuration("JWT_ADMIN_EXPIRY", 7*24*time.Hour),
			Issuer:       getEnv("JWT_ISSUER", "dukasell"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		},
		ClickPesa: ClickPesaConfig{
			BaseURL:        getEnv("CLICKPESA_BASE_URL", "https://api.clickpesa.com/third-parties"),
			ClientID:       getEnv("CLICKPESA_CLIENT_ID", ""),
			APIKey:         getEnv("CLICKPESA_API_KEY", ""),
			ChecksumSecret: getEnv("CLICKPESA_CHECKSUM_SECRET", ""),
			WebhookSecret:  getEnv("CLICKPESA_WEBHOOK_SECRET", ""),
			Timeout:        getEnvDuration("CLICKPESA_TIMEOUT", 20*time.Second),
			TokenTTL:       getEnvDuration("CLICKPESA_TOKEN_TTL", time.Hour),
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TokenKey: getEnv("REDIS_TOKEN_KEY", "dukasell:clickpesa:token"),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT", ""),
		},
		Credits: CreditsConfig{
			StartingCredits:    int64(getEnvInt("STARTING_CREDITS", 5)),
			USDRateFallback:    getEnvDecimal("CLICKPESA_USD_RATE", decimal.NewFromInt(2500)),
			ExchangeRateURL:    getEnv("EXCHANGE_RATE_URL", "https://www.bot.go.tz/api/exchangerates"),
			ExchangeRateTTL:    getEnvDuration("EXCHANGE_RATE_TTL", time.Hour),
			PayoutTZSPerCredit: getEnvDecimal("PAYOUT_TZS_PER_CREDIT", decimal.NewFromInt(1000)),
		},
		Jobs: JobsConfig{
			SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			SweepMinAge:      getEnvDuration("SWEEP_MIN_AGE", 10*time.Minute),
			SweepBatch:       getEnvInt("SWEEP_BATCH", 50),
			SweepConcurrency: getEnvInt("SWEEP_CONCURRENCY", 4),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
			Email:    getEnv("ADMIN_EMAIL", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs with APP_ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("config: JWT_SECRET is required")
		}
		c.JWT.AccessSecret = "dev-only-secret"
	}
	if c.ClickPesa.WebhookSecret == "" && !c.IsDevelopment() {
		return errors.New("config: CLICKPESA_WEBHOOK_SECRET is required outside development")
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return errors.New("config: DB_DRIVER must be mysql, postgres or sqlite")
	}
	if !c.Credits.USDRateFallback.IsPositive() {
		return errors.New("config: CLICKPESA_USD_RATE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
