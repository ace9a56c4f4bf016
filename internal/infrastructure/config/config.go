package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // organization timezones are validated on hosts without zoneinfo

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Session      SessionConfig
	Webhook      WebhookConfig
	Identity     IdentityConfig
	Organization OrganizationConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// RowSecurity controls whether each unit of work pushes the bound
	// organization and caller into the transaction with set_config.
	RowSecurity bool
	// ConnectTimeout bounds the startup retry loop.
	ConnectTimeout time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SessionConfig describes how identity provider session tokens are verified.
// Exactly one of HMACSecret and RSAPublicKeyPEM is used; the RSA key wins when
// both are set.
type SessionConfig struct {
	Issuer          string
	Audience        string
	HMACSecret      string
	RSAPublicKeyPEM string
	OrgClaim        string // claim holding the active organization id
	Leeway          time.Duration
}

// WebhookConfig holds identity provider webhook settings
type WebhookConfig struct {
	SigningSecret  string        // whsec_ prefixed base64 secret
	Tolerance      time.Duration // accepted clock skew of the signed timestamp
	IdempotencyTTL time.Duration
	Store          string // memory or redis
}

// IdentityConfig sizes the resolved-identity cache
type IdentityConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// OrganizationConfig holds the settings applied to new organizations
type OrganizationConfig struct {
	Timezone        string
	Currency        string
	LateFeeAmount   string
	GracePeriodDays int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// OnboardingURL is returned to authenticated callers without an organization.
	OnboardingURL string
	// Per client IP limit on the webhook endpoint; zero disables it.
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with EP_ prefix (e.g., EP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("EP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot be told apart from "unset" after
	// GetBool, so they are registered with viper directly.
	v.SetDefault("database.row_security", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			RowSecurity:     v.GetBool("database.row_security"),
			ConnectTimeout:  v.GetDuration("database.connect_timeout"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			Issuer:          v.GetString("session.issuer"),
			Audience:        v.GetString("session.audience"),
			HMACSecret:      v.GetString("session.hmac_secret"),
			RSAPublicKeyPEM: v.GetString("session.rsa_public_key_pem"),
			OrgClaim:        v.GetString("session.org_claim"),
			Leeway:          v.GetDuration("session.leeway"),
		},
		Webhook: WebhookConfig{
			SigningSecret:  v.GetString("webhook.signing_secret"),
			Tolerance:      v.GetDuration("webhook.tolerance"),
			IdempotencyTTL: v.GetDuration("webhook.idempotency_ttl"),
			Store:          v.GetString("webhook.store"),
		},
		Identity: IdentityConfig{
			CacheSize: v.GetInt("identity.cache_size"),
			CacheTTL:  v.GetDuration("identity.cache_ttl"),
		},
		Organization: OrganizationConfig{
			Timezone:        v.GetString("organization.timezone"),
			Currency:        v.GetString("organization.currency"),
			LateFeeAmount:   v.GetString("organization.late_fee_amount"),
			GracePeriodDays: v.GetInt("organization.grace_period_days"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			OnboardingURL:     v.GetString("http.onboarding_url"),
			WebhookRateLimit:  v.GetInt("http.webhook_rate_limit"),
			WebhookRateWindow: v.GetDuration("http.webhook_rate_window"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "everyday-properties"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "everyday_properties"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 30 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Session.OrgClaim == "" {
		cfg.Session.OrgClaim = "org_id"
	}
	if cfg.Session.Leeway == 0 {
		cfg.Session.Leeway = 5 * time.Second
	}
	if cfg.Webhook.Tolerance == 0 {
		cfg.Webhook.Tolerance = 5 * time.Minute
	}
	if cfg.Webhook.IdempotencyTTL == 0 {
		cfg.Webhook.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Webhook.Store == "" {
		cfg.Webhook.Store = "memory"
	}
	if cfg.Identity.CacheSize == 0 {
		cfg.Identity.CacheSize = 4096
	}
	if cfg.Identity.CacheTTL == 0 {
		cfg.Identity.CacheTTL = 5 * time.Minute
	}
	if cfg.Organization.Timezone == "" {
		cfg.Organization.Timezone = "America/New_York"
	}
	if cfg.Organization.Currency == "" {
		cfg.Organization.Currency = "USD"
	}
	if cfg.Organization.LateFeeAmount == "" {
		cfg.Organization.LateFeeAmount = "50"
	}
	if cfg.Organization.GracePeriodDays == 0 {
		cfg.Organization.GracePeriodDays = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// CORS origins have no fallback: an empty list allows no cross-origin requests.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.HTTP.WebhookRateWindow == 0 {
		cfg.HTTP.WebhookRateWindow = time.Minute
	}
	if cfg.HTTP.OnboardingURL == "" {
		cfg.HTTP.OnboardingURL = "/onboarding"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "everyday-properties"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Webhook.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("webhook.store must be memory or redis, got %q", c.Webhook.Store)
	}
	if c.Webhook.SigningSecret != "" && !strings.HasPrefix(c.Webhook.SigningSecret, "whsec_") {
		return fmt.Errorf("webhook.signing_secret must start with whsec_")
	}

	if _, err := time.LoadLocation(c.Organization.Timezone); err != nil {
		return fmt.Errorf("organization.timezone: %w", err)
	}
	if len(c.Organization.Currency) != 3 {
		return fmt.Errorf("organization.currency must be a 3-letter code, got %q", c.Organization.Currency)
	}
	fee, err := decimal.NewFromString(c.Organization.LateFeeAmount)
	if err != nil {
		return fmt.Errorf("organization.late_fee_amount: %w", err)
	}
	if fee.IsNegative() {
		return fmt.Errorf("organization.late_fee_amount cannot be negative")
	}
	if c.Organization.GracePeriodDays < 0 {
		return fmt.Errorf("organization.grace_period_days cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Session.HMACSecret == "" && c.Session.RSAPublicKeyPEM == "" {
			return fmt.Errorf("session.hmac_secret or session.rsa_public_key_pem is required in production")
		}
		if c.Session.RSAPublicKeyPEM == "" && len(c.Session.HMACSecret) < 32 {
			return fmt.Errorf("session.hmac_secret must be at least 32 characters in production")
		}
		if c.Session.Issuer == "" {
			return fmt.Errorf("session.issuer is required in production")
		}
		if c.Webhook.SigningSecret == "" {
			return fmt.Errorf("webhook.signing_secret is required in production")
		}
		if c.Webhook.Store != "redis" {
			return fmt.Errorf("webhook.store must be redis in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if !c.Database.RowSecurity {
			return fmt.Errorf("database.row_security cannot be disabled in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// LateFee returns the configured late fee. validate has already checked it.
func (o OrganizationConfig) LateFee() decimal.Decimal {
	fee, err := decimal.NewFromString(o.LateFeeAmount)
	if err != nil {
		return decimal.Zero
	}
	return fee
}

// IsProduction reports whether the app runs in production.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
