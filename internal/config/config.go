package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ndewijer/depotsync/internal/model"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Broker   BrokerConfig
	Ingest   IngestConfig
	Log      LogConfig
	Accounts []Account
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// BrokerConfig holds the brokerage API endpoint and challenge polling settings.
type BrokerConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration
	TANPollInterval time.Duration
	TANTimeout      time.Duration
}

// IngestConfig controls statement ingestion.
type IngestConfig struct {
	LookbackDays  int
	UseStoredData bool
	DataDir       string
	ArchiveKey    string
	Schedule      string
	Concurrency   int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// Account holds the credentials of one brokerage account.
// Name is the account reference used throughout the application.
type Account struct {
	Name         string `mapstructure:"name"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Ref returns the account reference.
func (a Account) Ref() model.AccountRef {
	return model.AccountRef(a.Name)
}

// String never includes secrets.
func (a Account) String() string {
	return a.Name
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var errs []error

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/depotsync.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost",
			}),
		},
		Broker: BrokerConfig{
			BaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "https://api.comdirect.de"), "/"),
			RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
			TANPollInterval: getDuration("TAN_POLL_INTERVAL", 2*time.Second, &errs),
			TANTimeout:      getDuration("TAN_TIMEOUT", 120*time.Second, &errs),
		},
		Ingest: IngestConfig{
			LookbackDays:  getInt("LOOKBACK_DAYS", 730, &errs),
			UseStoredData: getBool("USE_STORED_DATA", false, &errs),
			DataDir:       getEnv("DATA_DIR", "./data"),
			ArchiveKey:    os.Getenv("ARCHIVE_KEY"),
			Schedule:      os.Getenv("INGEST_SCHEDULE"),
			Concurrency:   getInt("INGEST_CONCURRENCY", 1, &errs),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBool("LOG_PRETTY", false, &errs),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	accounts, err := loadAccounts()
	if err != nil {
		errs = append(errs, err)
	}
	config.Accounts = accounts

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the loaded configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("no accounts configured"))
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("account %d: name is required", i+1))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("account %s: duplicate name", a.Name))
		}
		seen[a.Name] = true

		if c.Ingest.UseStoredData {
			continue
		}
		if a.Username == "" || a.Password == "" {
			errs = append(errs, fmt.Errorf("account %s: username and password are required", a.Name))
		}
		if a.ClientID == "" || a.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("account %s: client id and secret are required", a.Name))
		}
	}

	if c.Ingest.LookbackDays <= 0 {
		errs = append(errs, errors.New("LOOKBACK_DAYS must be positive"))
	}
	if c.Ingest.Concurrency <= 0 {
		errs = append(errs, errors.New("INGEST_CONCURRENCY must be positive"))
	}
	if c.Broker.TANPollInterval <= 0 || c.Broker.TANTimeout <= 0 {
		errs = append(errs, errors.New("TAN_POLL_INTERVAL and TAN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Account returns the configured account with the given reference.
func (c *Config) Account(ref model.AccountRef) (Account, bool) {
	for _, a := range c.Accounts {
		if a.Ref() == ref {
			return a, true
		}
	}
	return Account{}, false
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
