package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Resend    ResendConfig    `mapstructure:"resend"`
	Paystack  PaystackConfig  `mapstructure:"paystack"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	FrontendURL  string        `mapstructure:"frontend_url"`
	AdminToken   string        `mapstructure:"admin_token"`

	// TrustedProxies lists the addresses or CIDR ranges whose forwarding
	// headers are believed. Empty means clients connect directly.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// StatusSocketLifetime caps how long one order status socket stays open.
	StatusSocketLifetime time.Duration `mapstructure:"status_socket_lifetime"`
}

type DatabaseConfig struct {
	URL             string // Full database URL
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type ResendConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	AdminEmail string
}

type PaystackConfig struct {
	SecretKey   string
	PublicKey   string
	CallbackURL string
	MaxAttempts int
	BaseTimeout time.Duration
}

// StoreConfig carries the commercial settings used by pricing.
type StoreConfig struct {
	DomesticCountry string
	Currency        string

	// PendingOrderTTL is how long an unpaid order holds its stock.
	PendingOrderTTL time.Duration

	// ExpirySweepInterval is how often stale pending orders are checked.
	ExpirySweepInterval time.Duration
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

func Load() (*Config, error) {
	// Load .env files if they exist (try .env.local first, then .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	config := &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			Host:         v.GetString("HOST"),
			Env:          v.GetString("ENVIRONMENT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
			FrontendURL:  strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
			AdminToken:   v.GetString("ADMIN_TOKEN"),

			TrustedProxies:       splitList(v.GetString("TRUSTED_PROXIES")),
			StatusSocketLifetime: v.GetDuration("STATUS_SOCKET_LIFETIME"),
		},
		Database: parseDatabaseConfig(v),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Resend: ResendConfig{
			APIKey:     v.GetString("RESEND_API_KEY"),
			FromEmail:  v.GetString("RESEND_FROM_EMAIL"),
			FromName:   v.GetString("RESEND_FROM_NAME"),
			AdminEmail: v.GetString("ADMIN_EMAIL"),
		},
		Paystack: PaystackConfig{
			SecretKey:   v.GetString("PAYSTACK_SECRET_KEY"),
			PublicKey:   v.GetString("PAYSTACK_PUBLIC_KEY"),
			CallbackURL: v.GetString("PAYSTACK_CALLBACK_URL"),
			MaxAttempts: v.GetInt("PAYSTACK_MAX_ATTEMPTS"),
			BaseTimeout: v.GetDuration("PAYSTACK_BASE_TIMEOUT"),
		},
		Store: StoreConfig{
			DomesticCountry: v.GetString("DOMESTIC_COUNTRY"),
			Currency:        v.GetString("CURRENCY"),

			PendingOrderTTL:     v.GetDuration("PENDING_ORDER_TTL"),
			ExpirySweepInterval: v.GetDuration("EXPIRY_SWEEP_INTERVAL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if config.Paystack.CallbackURL == "" {
		config.Paystack.CallbackURL = config.Server.FrontendURL + "/checkout/verify"
	}

	// Production databases always require TLS
	if config.IsProduction() && (config.Database.SSLMode == "" || config.Database.SSLMode == "disable") {
		config.Database.SSLMode = "require"
	}

	if config.IsProduction() && config.Paystack.SecretKey == "" {
		return nil, fmt.Errorf("PAYSTACK_SECRET_KEY is required in production")
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("HOST", "localhost")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("STATUS_SOCKET_LIFETIME", 30*time.Minute)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DB_CONNECT_TIMEOUT", 10*time.Second)

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	v.SetDefault("RESEND_FROM_EMAIL", "orders@storefront.local")
	v.SetDefault("RESEND_FROM_NAME", "Storefront")

	v.SetDefault("PAYSTACK_MAX_ATTEMPTS", 3)
	v.SetDefault("PAYSTACK_BASE_TIMEOUT", 10*time.Second)

	v.SetDefault("DOMESTIC_COUNTRY", "Nigeria")
	v.SetDefault("CURRENCY", "NGN")
	v.SetDefault("PENDING_ORDER_TTL", 2*time.Hour)
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", 10*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
}

// splitList splits a comma separated setting, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDatabaseConfig(v *viper.Viper) DatabaseConfig {
	var config DatabaseConfig

	// Check if DATABASE_URL is provided
	if databaseURL := v.GetString("DATABASE_URL"); databaseURL != "" {
		config = parseDatabaseURL(databaseURL)
	} else {
		config = DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		}
	}

	config.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	config.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	config.ConnMaxIdleTime = v.GetDuration("DB_CONN_MAX_IDLE_TIME")
	config.ConnMaxLifetime = v.GetDuration("DB_CONN_MAX_LIFETIME")
	config.ConnectTimeout = v.GetDuration("DB_CONNECT_TIMEOUT")
	return config
}

func parseDatabaseURL(databaseURL string) DatabaseConfig {
	config := DatabaseConfig{
		URL: databaseURL,
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		// If parsing fails, return the URL as-is
		return config
	}

	config.Host = u.Hostname()
	if u.Port() != "" {
		config.Port, _ = strconv.Atoi(u.Port())
	} else {
		config.Port = 5432
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	config.DBName = strings.TrimPrefix(u.Path, "/")

	config.SSLMode = u.Query().Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config
}
