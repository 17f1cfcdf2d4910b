package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Supported email providers
const (
	ProviderSMTP  = "smtp"
	ProviderGmail = "gmail"
)

// ErrMissingDatabase is returned by Validate when no usable database configuration is present
var ErrMissingDatabase = errors.New("database configuration is missing")

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Email    EmailConfig    `mapstructure:"email"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds reminder store configuration
type DatabaseConfig struct {
	// Driver selects the backing engine: "postgres" or "mongo". Left empty it
	// is inferred: mongo when only a Mongo URI is present, postgres otherwise.
	Driver string `mapstructure:"driver"`
	// URL is a full PostgreSQL connection string; it wins over the discrete fields below
	URL            string      `mapstructure:"url"`
	Host           string      `mapstructure:"host"`
	Port           int         `mapstructure:"port"`
	Name           string      `mapstructure:"name"`
	User           string      `mapstructure:"user"`
	Password       string      `mapstructure:"password"`
	SSLMode        string      `mapstructure:"ssl_mode"`
	MaxConnections int         `mapstructure:"max_connections"`
	AutoMigrate    bool        `mapstructure:"auto_migrate"`
	Mongo          MongoConfig `mapstructure:"mongo"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration for reminder submissions
type RateLimitingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// PollerConfig holds delivery poller configuration
type PollerConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule    string        `mapstructure:"schedule"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
}

// EmailConfig holds email sending configuration
type EmailConfig struct {
	// Provider is the email provider to use: "smtp" or "gmail"
	Provider string `mapstructure:"provider"`
	// From is the sender address; falls back to the SMTP username
	From string `mapstructure:"from"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
	// Subject is the subject line of every reminder mail
	Subject string           `mapstructure:"subject"`
	SMTP    SMTPEmailConfig  `mapstructure:"smtp"`
	Gmail   GmailEmailConfig `mapstructure:"gmail"`
}

// SenderAddress returns the effective "From" address
func (c EmailConfig) SenderAddress() string {
	if c.From != "" {
		return c.From
	}
	return c.SMTP.Username
}

// HasCredentials reports whether the selected provider has enough credentials to send
func (c EmailConfig) HasCredentials() bool {
	switch c.Provider {
	case ProviderGmail:
		if c.Gmail.CredentialsJSON != "" {
			return c.SenderAddress() != ""
		}
		return c.Gmail.ClientID != "" && c.Gmail.ClientSecret != "" && c.Gmail.RefreshToken != "" && c.SenderAddress() != ""
	default:
		return c.SMTP.Username != "" && c.SMTP.Password != ""
	}
}

// SMTPEmailConfig holds SMTP credentials
type SMTPEmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/remindmail")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("REMINDMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Database.Driver = cfg.Database.inferDriver()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c DatabaseConfig) inferDriver() string {
	if c.Driver != "" {
		return c.Driver
	}
	if c.Mongo.URI != "" && c.URL == "" {
		return DriverMongo
	}
	return DriverPostgres
}

// Validate checks settings that make startup impossible
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
			return fmt.Errorf("%w: set database.url or database.host and database.name", ErrMissingDatabase)
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return fmt.Errorf("%w: set database.mongo.uri", ErrMissingDatabase)
		}
		if c.Database.Mongo.Database == "" {
			return fmt.Errorf("%w: set database.mongo.database", ErrMissingDatabase)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Email.Provider {
	case ProviderSMTP, ProviderGmail:
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Poller.Schedule == "" {
		return errors.New("poller.schedule must not be empty")
	}
	if c.Security.RateLimiting.Enabled && (c.Security.RateLimiting.Limit <= 0 || c.Security.RateLimiting.Window <= 0) {
		return errors.New("rate limiting requires a positive limit and window")
	}
	return nil
}

// bindLegacyEnv maps the plain variable names used by earlier deployments
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":         {"REMINDMAIL_SERVER_PORT", "PORT"},
		"database.driver":     {"REMINDMAIL_DATABASE_DRIVER"},
		"database.url":        {"REMINDMAIL_DATABASE_URL", "DATABASE_URL"},
		"database.mongo.uri":  {"REMINDMAIL_DATABASE_MONGO_URI", "MONGO_URI"},
		"email.smtp.username": {"REMINDMAIL_EMAIL_SMTP_USERNAME", "EMAIL_USER"},
		"email.smtp.password": {"REMINDMAIL_EMAIL_SMTP_PASSWORD", "EMAIL_PASS"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "remindmail")
	v.SetDefault("database.user", "remindmail")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.mongo.uri", "")
	v.SetDefault("database.mongo.database", "remindmail")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Rate limiting is off unless Redis is available
	v.SetDefault("security.rate_limiting.enabled", false)
	v.SetDefault("security.rate_limiting.limit", 20)
	v.SetDefault("security.rate_limiting.window", "1h")

	// Poller defaults
	v.SetDefault("poller.schedule", "* * * * *")
	v.SetDefault("poller.send_timeout", "30s")
	v.SetDefault("poller.run_on_start", true)

	// Email defaults
	v.SetDefault("email.provider", ProviderSMTP)
	v.SetDefault("email.from", "")
	v.SetDefault("email.sender_name", "")
	v.SetDefault("email.subject", "Reminder App")
	v.SetDefault("email.smtp.host", "smtp.gmail.com")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.gmail.credentials_json", "")
	v.SetDefault("email.gmail.client_id", "")
	v.SetDefault("email.gmail.client_secret", "")
	v.SetDefault("email.gmail.refresh_token", "")
}
