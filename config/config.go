package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Treasury TreasuryConfig `mapstructure:"treasury"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Keyring  KeyringConfig  `mapstructure:"keyring"`
	Chains   []ChainConfig  `mapstructure:"chains"`
	Platform []WalletConfig `mapstructure:"platform_wallets"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TreasuryConfig struct {
	Timelock              time.Duration `mapstructure:"timelock"`
	Reserve               string        `mapstructure:"reserve"`
	MinReasonLength       int           `mapstructure:"min_reason_length"`
	MaxReasonLength       int           `mapstructure:"max_reason_length"`
	MinRejectReasonLength int           `mapstructure:"min_reject_reason_length"`
	SuperAdmins           []string      `mapstructure:"super_admins"`
	SigningKeyRef         string        `mapstructure:"signing_key_ref"`
}

type ExecutorConfig struct {
	Workers          int           `mapstructure:"workers"`
	BroadcastTimeout time.Duration `mapstructure:"broadcast_timeout"`
	DequeueTimeout   time.Duration `mapstructure:"dequeue_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	StuckAfter       time.Duration `mapstructure:"stuck_after"`
}

type TimeoutConfig struct {
	Balance time.Duration `mapstructure:"balance"`
	Rate    time.Duration `mapstructure:"rate"`
	Audit   time.Duration `mapstructure:"audit"`
}

type RatesConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Pegged   []string      `mapstructure:"pegged"`
}

type KeyringConfig struct {
	SeedFile      string `mapstructure:"seed_file"`
	PassphraseEnv string `mapstructure:"passphrase_env"`
}

type ChainConfig struct {
	Name           string `mapstructure:"name"`
	ChainID        int64  `mapstructure:"chain_id"`
	RPC            string `mapstructure:"rpc"`
	TokenSymbol    string `mapstructure:"token_symbol"`
	TokenContract  string `mapstructure:"token_contract"`
	TokenDecimals  int32  `mapstructure:"token_decimals"`
	NativeSymbol   string `mapstructure:"native_symbol"`
	NativeDecimals int32  `mapstructure:"native_decimals"`
	GasLimit       uint64 `mapstructure:"gas_limit"`
}

// WalletConfig is used only by the provisioning script.
type WalletConfig struct {
	Chain   string `mapstructure:"chain"`
	Address string `mapstructure:"address"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "treasury_service")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "treasury")
	v.SetDefault("log.level", "info")

	v.SetDefault("treasury.timelock", 24*time.Hour)
	v.SetDefault("treasury.reserve", "100")
	v.SetDefault("treasury.min_reason_length", 30)
	v.SetDefault("treasury.max_reason_length", 2000)
	v.SetDefault("treasury.min_reject_reason_length", 20)
	v.SetDefault("treasury.signing_key_ref", "treasury/0")

	v.SetDefault("executor.workers", 2)
	v.SetDefault("executor.broadcast_timeout", 45*time.Second)
	v.SetDefault("executor.dequeue_timeout", 5*time.Second)
	v.SetDefault("executor.sweep_interval", time.Minute)
	v.SetDefault("executor.stuck_after", 30*time.Minute)

	v.SetDefault("timeouts.balance", 10*time.Second)
	v.SetDefault("timeouts.rate", 5*time.Second)
	v.SetDefault("timeouts.audit", 3*time.Second)

	v.SetDefault("rates.base_url", "https://www.okx.com")
	v.SetDefault("rates.cache_ttl", time.Minute)
	v.SetDefault("rates.pegged", []string{"USD", "USDC", "USDT"})

	v.SetDefault("keyring.passphrase_env", "TREASURY_KEYRING_PASSPHRASE")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	// ENV 覆盖 YAML
	v.SetEnvPrefix("TREASURY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Treasury.Timelock <= 0 {
		return fmt.Errorf("treasury.timelock must be positive")
	}
	if c.Executor.Workers < 1 {
		return fmt.Errorf("executor.workers must be >= 1, got %d", c.Executor.Workers)
	}
	if c.Executor.BroadcastTimeout <= 0 {
		return fmt.Errorf("executor.broadcast_timeout must be positive")
	}
	for key, d := range map[string]time.Duration{
		"timeouts.balance": c.Timeouts.Balance,
		"timeouts.rate":    c.Timeouts.Rate,
		"timeouts.audit":   c.Timeouts.Audit,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	seenNames := make(map[string]struct{}, len(c.Chains))
	seenIDs := make(map[int64]struct{}, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.Name == "" || ch.ChainID == 0 {
			return fmt.Errorf("chain entry requires name and chain_id")
		}
		name := strings.ToLower(strings.TrimSpace(ch.Name))
		if _, ok := seenNames[name]; ok {
			return fmt.Errorf("duplicate chain name %q", ch.Name)
		}
		if _, ok := seenIDs[ch.ChainID]; ok {
			return fmt.Errorf("duplicate chain id %d", ch.ChainID)
		}
		if ch.TokenDecimals < 0 || ch.TokenDecimals > 18 {
			return fmt.Errorf("chain %q: token_decimals out of range", ch.Name)
		}
		seenNames[name] = struct{}{}
		seenIDs[ch.ChainID] = struct{}{}
	}
	return nil
}
