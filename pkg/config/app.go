package config

import "time"

// AppConfig holds runtime configuration for the foyer service.
type AppConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	JWTSecret        string
	CookieName       string
	CookieExpiryDays int
	SecureCookies    bool

	PasswordMinLength       int
	PasswordMaxLength       int
	PasswordRequireDigit    bool
	PasswordRequireUpper    bool
	PasswordRequireNonAlnum bool
	BcryptCost              int

	SessionRedisAddr string
	SessionRedisPass string
	SessionRedisDB   int

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	EventsToken  string
	EventsBuffer int
}

// LoadAppConfig constructs an AppConfig from environment variables.
func LoadAppConfig() AppConfig {
	return AppConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("FOYER_ADDR", ":4000"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://foyer:foyer@db:5432/foyer?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "./migrations"),

		JWTSecret:        GetString("JWT_SECRET", "supersecuresecret"),
		CookieName:       GetString("SESSION_COOKIE_NAME", "foyer_session"),
		CookieExpiryDays: GetInt("COOKIE_EXPIRY_DAYS", 5),
		SecureCookies:    GetBool("SECURE_COOKIES", false),

		PasswordMinLength:       GetInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:       GetInt("PASSWORD_MAX_LENGTH", 32),
		PasswordRequireDigit:    GetBool("PASSWORD_REQUIRE_DIGIT", false),
		PasswordRequireUpper:    GetBool("PASSWORD_REQUIRE_UPPERCASE", false),
		PasswordRequireNonAlnum: GetBool("PASSWORD_REQUIRE_NON_ALPHANUMERIC", false),
		BcryptCost:              GetInt("BCRYPT_COST", 0),

		SessionRedisAddr: GetString("SESSION_REDIS_ADDR", ""),
		SessionRedisPass: GetString("SESSION_REDIS_PASSWORD", ""),
		SessionRedisDB:   GetInt("SESSION_REDIS_DB", 0),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),

		WebhookURL:     GetString("USER_CREATED_WEBHOOK_URL", ""),
		WebhookSecret:  GetString("USER_CREATED_WEBHOOK_SECRET", ""),
		WebhookTimeout: time.Duration(GetInt("USER_CREATED_WEBHOOK_TIMEOUT_SECONDS", 5)) * time.Second,

		EventsToken:  GetString("EVENTS_STREAM_TOKEN", ""),
		EventsBuffer: GetInt("EVENTS_BUFFER", 64),
	}
}
