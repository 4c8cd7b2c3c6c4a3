package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	StartBlock      uint64
	ReceiptTimeout  time.Duration
}

type MediaConfig struct {
	APIURL         string
	MaxUploadBytes int64
}

type OracleConfig struct {
	URL     string
	Timeout time.Duration
}

type ClaimsConfig struct {
	// Year is sent both with the ledger claim and the oracle request.
	Year int
}

type RequestsConfig struct {
	UnitPrice decimal.Decimal
}

type DirectoryConfig struct {
	PhotoConcurrency int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	Media       MediaConfig
	Oracle      OracleConfig
	Claims      ClaimsConfig
	Requests    RequestsConfig
	Directory   DirectoryConfig
}

// Load reads the configuration of the HTTP service.
func Load() (*Config, error) {
	return load(true)
}

// LoadCLI reads the same configuration for the operator CLI. Database and
// JWT settings are optional there; commands that need the database check
// DB_DSN themselves.
func LoadCLI() (*Config, error) {
	return load(false)
}

func load(server bool) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 7090)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("LEDGER_RECEIPT_TIMEOUT", "2m")
	v.SetDefault("MEDIA_API_URL", "http://127.0.0.1:5001")
	v.SetDefault("MEDIA_MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("ORACLE_URL", "http://127.0.0.1:5000/predict")
	v.SetDefault("ORACLE_TIMEOUT", "10s")
	v.SetDefault("CLAIMS_YEAR", 2023)
	v.SetDefault("REQUESTS_UNIT_PRICE", "50")
	v.SetDefault("DIRECTORY_PHOTO_CONCURRENCY", 4)

	_ = v.ReadInConfig()

	unitPrice, err := decimal.NewFromString(strings.TrimSpace(v.GetString("REQUESTS_UNIT_PRICE")))
	if err != nil {
		return nil, fmt.Errorf("REQUESTS_UNIT_PRICE: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:        v.GetString("HTTP_HOST"),
			Port:        v.GetInt("HTTP_PORT"),
			CORSOrigins: parseList(v.GetString("HTTP_CORS_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Ledger: LedgerConfig{
			RPCURL:          v.GetString("LEDGER_RPC_URL"),
			ContractAddress: v.GetString("LEDGER_CONTRACT_ADDRESS"),
			PrivateKey:      v.GetString("LEDGER_PRIVATE_KEY"),
			ChainID:         v.GetInt64("LEDGER_CHAIN_ID"),
			StartBlock:      v.GetUint64("LEDGER_START_BLOCK"),
			ReceiptTimeout:  v.GetDuration("LEDGER_RECEIPT_TIMEOUT"),
		},
		Media: MediaConfig{
			APIURL:         v.GetString("MEDIA_API_URL"),
			MaxUploadBytes: v.GetInt64("MEDIA_MAX_UPLOAD_BYTES"),
		},
		Oracle: OracleConfig{
			URL:     v.GetString("ORACLE_URL"),
			Timeout: v.GetDuration("ORACLE_TIMEOUT"),
		},
		Claims: ClaimsConfig{
			Year: v.GetInt("CLAIMS_YEAR"),
		},
		Requests: RequestsConfig{
			UnitPrice: unitPrice,
		},
		Directory: DirectoryConfig{
			PhotoConcurrency: v.GetInt("DIRECTORY_PHOTO_CONCURRENCY"),
		},
	}

	if len(cfg.HTTP.CORSOrigins) == 0 {
		cfg.HTTP.CORSOrigins = []string{"*"}
	}

	if err := validate(cfg, server); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config, server bool) error {
	if server && cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if server && cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Ledger.RPCURL == "" {
		return fmt.Errorf("LEDGER_RPC_URL is required")
	}
	if cfg.Ledger.ContractAddress == "" {
		return fmt.Errorf("LEDGER_CONTRACT_ADDRESS is required")
	}
	if cfg.Ledger.PrivateKey == "" {
		return fmt.Errorf("LEDGER_PRIVATE_KEY is required")
	}
	if cfg.Claims.Year <= 0 {
		return fmt.Errorf("CLAIMS_YEAR must be positive")
	}
	if cfg.Requests.UnitPrice.IsNegative() {
		return fmt.Errorf("REQUESTS_UNIT_PRICE must not be negative")
	}
	if cfg.Directory.PhotoConcurrency <= 0 {
		return fmt.Errorf("DIRECTORY_PHOTO_CONCURRENCY must be positive")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
