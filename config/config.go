package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// LedgerConfig selects the ledger driver and, for the json driver, the
// files it keeps under DataDir.
type LedgerConfig struct {
	Driver       string `mapstructure:"driver"` // json, postgres
	DataDir      string `mapstructure:"data_dir"`
	UserDataFile string `mapstructure:"user_data_file"`
	SettingsFile string `mapstructure:"settings_file"`
	PackagesFile string `mapstructure:"packages_file"`
	AuditFile    string `mapstructure:"audit_file"`
}

// Path joins name onto DataDir unless name is already absolute.
func (l LedgerConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.DataDir, name)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// AdminConfig is the single back-office account. PasswordHash is an
// Argon2id hash in PHC form ($argon2id$v=19$...), as printed by cmd/hashpw.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// WalletConfig carries the settings used whenever the settings file is
// missing or unreadable.
type WalletConfig struct {
	ServiceFee     string `mapstructure:"service_fee"`
	Currency       string `mapstructure:"currency"`
	MinWithdrawal  string `mapstructure:"min_withdrawal"`
	MaxWithdrawal  string `mapstructure:"max_withdrawal"`
	ProcessingTime string `mapstructure:"processing_time"`

	BankTransferRequiresApproval bool `mapstructure:"bank_transfer_requires_approval"`
	CardDepositInstant           bool `mapstructure:"card_deposit_instant"`
	PaypalDepositInstant         bool `mapstructure:"paypal_deposit_instant"`
}

// Amounts parses the decimal fields. Unparseable values fall back to zero
// and are rejected later by settings validation.
func (w WalletConfig) Amounts() (fee, minWithdrawal, maxWithdrawal decimal.Decimal) {
	parse := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return parse(w.ServiceFee), parse(w.MinWithdrawal), parse(w.MaxWithdrawal)
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: LEDGER_.
// Nested keys use underscore: LEDGER_LEDGER_DRIVER, LEDGER_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("ledger.driver", "json")
	v.SetDefault("ledger.data_dir", "./data")
	v.SetDefault("ledger.user_data_file", "user-data.json")
	v.SetDefault("ledger.settings_file", "wallet-settings.json")
	v.SetDefault("ledger.packages_file", "packages.json")
	v.SetDefault("ledger.audit_file", "audit.log")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "agency_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "agency-ledger")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("wallet.service_fee", "5")
	v.SetDefault("wallet.currency", "EUR")
	v.SetDefault("wallet.min_withdrawal", "10")
	v.SetDefault("wallet.max_withdrawal", "10000")
	v.SetDefault("wallet.processing_time", "3-5 business days")
	v.SetDefault("wallet.bank_transfer_requires_approval", true)
	v.SetDefault("wallet.card_deposit_instant", true)
	v.SetDefault("wallet.paypal_deposit_instant", true)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: LEDGER_DATABASE_HOST -> database.host
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	switch cfg.Ledger.Driver {
	case "json", "postgres":
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}

	return &cfg, nil
}
