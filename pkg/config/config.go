package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Trading modes
const (
	ModeSimulation = "simulation"
	ModeLive       = "live"
)

// Config holds all process-level configuration.
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음 (전략 파라미터는 strategyconfig)
type Config struct {
	Env string // development, staging, production

	// Trading
	TradingMode  string // simulation, live
	StrategyFile string
	StateDir     string
	TradeLogPath string

	Database DatabaseConfig
	Redis    RedisConfig
	API      APIConfig
	Gateway  GatewayConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// APIConfig holds the status server configuration
type APIConfig struct {
	Enabled        bool
	Port           string
	AllowedOrigins []string
}

// GatewayConfig bounds every call made to the market data provider and the order gateway.
type GatewayConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	CallTimeout    time.Duration
	RatePerSecond  float64
	Burst          int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		TradingMode:  getEnv("TRADING_MODE", ModeSimulation),
		StrategyFile: getEnv("STRATEGY_FILE", ""),
		StateDir:     getEnv("STATE_DIR", "state"),
		TradeLogPath: getEnv("TRADE_LOG_PATH", "trade_log.csv"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		API: APIConfig{
			Enabled:        getEnvAsBool("API_ENABLED", true),
			Port:           getEnv("API_PORT", "8089"),
			AllowedOrigins: getEnvAsList("API_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},

		Gateway: GatewayConfig{
			MaxRetries:     getEnvAsInt("GATEWAY_MAX_RETRIES", 3),
			RetryBaseDelay: getEnvAsDuration("GATEWAY_RETRY_DELAY", "200ms"),
			CallTimeout:    getEnvAsDuration("GATEWAY_CALL_TIMEOUT", "3s"),
			RatePerSecond:  getEnvAsFloat("GATEWAY_RATE_PER_SECOND", 20),
			Burst:          getEnvAsInt("GATEWAY_BURST", 5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// IsSimulation reports whether fills are booked against the local ledger.
func (c *Config) IsSimulation() bool {
	return c.TradingMode == ModeSimulation
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.TradingMode != ModeSimulation && c.TradingMode != ModeLive {
		return fmt.Errorf("TRADING_MODE must be one of: %s, %s", ModeSimulation, ModeLive)
	}

	if c.StateDir == "" {
		return fmt.Errorf("STATE_DIR must not be empty")
	}

	if c.Gateway.MaxRetries < 0 {
		return fmt.Errorf("GATEWAY_MAX_RETRIES must be >= 0")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
