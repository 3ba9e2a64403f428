package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"mintgate/pkg/platform/middleware/metadata"
)

// Config is the full runtime configuration, parsed from the environment.
type Config struct {
	Server   Server
	Redis    RedisConfig
	Postgres PostgresConfig
	Tables   Tables
	Chain    Chain
	Mint     Mint
	Audit    Audit
	Limits   RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"MINTGATE_ADDR" envDefault:":3000"`
	Environment       string        `env:"MINTGATE_ENV" envDefault:"development"`
	LogLevel          string        `env:"MINTGATE_LOG_LEVEL" envDefault:"info"`
	FrontendOrigin    string        `env:"MINTGATE_FRONTEND_URL"`
	RequestTimeout    time.Duration `env:"MINTGATE_REQUEST_TIMEOUT" envDefault:"30s"`
	ReadHeaderTimeout time.Duration `env:"MINTGATE_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"MINTGATE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AdminToken        string        `env:"MINTGATE_ADMIN_TOKEN"`
	// TrustedProxies lists the CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"MINTGATE_TRUSTED_PROXIES" envSeparator:","`
}

// RedisConfig configures the counter, pool and claim stores. Empty URL keeps
// them in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// PostgresConfig configures the whitelist and mint record stores. Empty URL
// keeps them in memory.
type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" envDefault:"false"`
}

// Tables names the four logical tables. Redis stores use them as key prefixes.
type Tables struct {
	Whitelist string `env:"WHITELIST_TABLE_NAME" envDefault:"whitelist"`
	Records   string `env:"NFT_TABLE_NAME" envDefault:"mint_records"`
	Pool      string `env:"TOKEN_ID_TABLE_NAME" envDefault:"identifier_pool"`
	Counters  string `env:"TOKEN_ID_COUNTERS_TABLE_NAME" envDefault:"counters"`
}

// Chain configures the RPC endpoint and the minting contract.
type Chain struct {
	RPCURL          string        `env:"CHAIN_RPC_URL"`
	ContractAddress string        `env:"CONTRACT_ADDRESS"`
	ArtifactPath    string        `env:"CONTRACT_ARTIFACT_PATH"`
	EventName       string        `env:"CHAIN_MINT_EVENT" envDefault:"NFTMinted"`
	PollInterval    time.Duration `env:"CHAIN_POLL_INTERVAL" envDefault:"15s"`
	StartBlock      uint64        `env:"CHAIN_START_BLOCK" envDefault:"0"`
	BlockBatch      uint64        `env:"CHAIN_BLOCK_BATCH" envDefault:"2000"`
}

// Mint holds the allocation and authorization rules.
type Mint struct {
	AuthPrivateKey     string        `env:"AUTH_PRIVATE_KEY"`
	CategoryCapacities []int         `env:"CATEGORY_CAPACITIES" envSeparator:","`
	OverflowCategory   int           `env:"OVERFLOW_CATEGORY" envDefault:"2"`
	GraceWindow        time.Duration `env:"MINT_GRACE_WINDOW" envDefault:"360s"`
	// DevWhitelist seeds the in-memory whitelist as address:category pairs.
	DevWhitelist []string `env:"MINTGATE_DEV_WHITELIST" envSeparator:","`
}

// SeedEntry is one parsed MINTGATE_DEV_WHITELIST pair.
type SeedEntry struct {
	Address  string
	Category int
}

// WhitelistSeed parses DevWhitelist.
func (m Mint) WhitelistSeed() ([]SeedEntry, error) {
	entries := make([]SeedEntry, 0, len(m.DevWhitelist))
	for _, raw := range m.DevWhitelist {
		addr, cat, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("MINTGATE_DEV_WHITELIST entry %q is not address:category", raw)
		}
		category, err := strconv.Atoi(cat)
		if err != nil || category < 0 || category >= len(m.CategoryCapacities) {
			return nil, fmt.Errorf("MINTGATE_DEV_WHITELIST entry %q has an unknown category", raw)
		}
		entries = append(entries, SeedEntry{Address: strings.ToLower(addr), Category: category})
	}
	return entries, nil
}

// Audit configures the mint lifecycle event stream. Without brokers events go
// to the structured log only.
type Audit struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"mint-audit"`
	Partitions   int32    `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	Replication  int16    `env:"KAFKA_AUDIT_REPLICATION" envDefault:"-1"`
	BufferSize   int      `env:"AUDIT_BUFFER_SIZE" envDefault:"256"`
}

// RateLimit bounds requests per client IP on the mint routes. A zero limit
// disables throttling.
type RateLimit struct {
	PerIP  int           `env:"RATE_LIMIT_PER_IP" envDefault:"30"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// FromEnv parses and validates configuration from environment variables.
func FromEnv() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads the environment without validation. Operator tools that never
// sign use it so they do not need AUTH_PRIVATE_KEY.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Mint.AuthPrivateKey) == "" {
		errs = append(errs, errors.New("AUTH_PRIVATE_KEY is required"))
	}
	if len(c.Mint.CategoryCapacities) == 0 {
		errs = append(errs, errors.New("CATEGORY_CAPACITIES is required"))
	}
	for i, capacity := range c.Mint.CategoryCapacities {
		if capacity <= 0 {
			errs = append(errs, fmt.Errorf("category %d capacity must be positive, got %d", i, capacity))
		}
	}
	if n := len(c.Mint.CategoryCapacities); n > 0 && (c.Mint.OverflowCategory < 0 || c.Mint.OverflowCategory >= n) {
		errs = append(errs, fmt.Errorf("OVERFLOW_CATEGORY %d out of range [0, %d)", c.Mint.OverflowCategory, n))
	}
	if c.Mint.GraceWindow <= 0 {
		errs = append(errs, errors.New("MINT_GRACE_WINDOW must be positive"))
	}
	if _, err := c.Mint.WhitelistSeed(); err != nil {
		errs = append(errs, err)
	}
	if _, err := metadata.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("MINTGATE_TRUSTED_PROXIES: %w", err))
	}
	if c.Chain.ContractAddress != "" && !common.IsHexAddress(c.Chain.ContractAddress) {
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS %q is not a hex address", c.Chain.ContractAddress))
	}
	if c.Chain.RPCURL != "" {
		if c.Chain.ContractAddress == "" {
			errs = append(errs, errors.New("CONTRACT_ADDRESS is required when CHAIN_RPC_URL is set"))
		}
		if c.Chain.ArtifactPath == "" {
			errs = append(errs, errors.New("CONTRACT_ARTIFACT_PATH is required when CHAIN_RPC_URL is set"))
		}
	}
	return errors.Join(errs...)
}

// InMemory reports whether no external store is configured.
func (c Config) InMemory() bool {
	return c.Redis.URL == "" && c.Postgres.URL == ""
}
