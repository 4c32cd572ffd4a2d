package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Chain    ChainConfig    `mapstructure:"chain"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Modules  ModulesConfig  `mapstructure:"modules"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ChainConfig struct {
	Name          string        `mapstructure:"name"`
	ChainID       int64         `mapstructure:"chain_id"`
	RPCEndpoint   string        `mapstructure:"rpc_endpoint"`
	BlockTime     time.Duration `mapstructure:"block_time"`
	StartBlock    uint64        `mapstructure:"start_block"`
	BatchSize     uint64        `mapstructure:"batch_size"`
	Confirmations uint64        `mapstructure:"confirmations"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

// StorageConfig selects the entity store backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory | postgres
}

// RedisConfig enables the shared redelivery guard
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type RealtimeConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ModulesConfig struct {
	Manifest string `mapstructure:"manifest"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Load reads the config file at configPath. Every key can be overridden by
// an INDEXER_ prefixed environment variable, e.g. INDEXER_CHAIN_RPC_ENDPOINT.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.name", "bsc")
	v.SetDefault("chain.chain_id", 56)
	v.SetDefault("chain.block_time", "3s")
	v.SetDefault("chain.batch_size", 500)
	v.SetDefault("chain.confirmations", 15)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "pancake")
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("modules.manifest", "manifests/exchange.yaml")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the settings the indexer cannot start without
func (c *Config) Validate() error {
	if c.Chain.RPCEndpoint == "" {
		return fmt.Errorf("chain.rpc_endpoint is required")
	}
	if c.Chain.BatchSize == 0 {
		return fmt.Errorf("chain.batch_size must be positive")
	}
	if c.Chain.BlockTime <= 0 {
		return fmt.Errorf("chain.block_time must be positive")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Modules.Manifest == "" {
		return fmt.Errorf("modules.manifest is required")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
