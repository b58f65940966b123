// Package config loads the custody tool configuration.
// Priority: env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"alpha-custody/internal/orchestrator"
	"alpha-custody/internal/ss58"
	"alpha-custody/internal/subtensor"
)

// EnvPrefix prefixes every environment override, e.g. ALPHA_CUSTODY_TARGET_HOTKEY.
const EnvPrefix = "ALPHA_CUSTODY"

// EnvConfigPath names the env var holding the config file path.
const EnvConfigPath = EnvPrefix + "_CONFIG"

// DefaultTargetHotkey is the validator hotkey stake is delegated to.
const DefaultTargetHotkey = "5DQ2Geab6G25wiZ4jGH6wJM8fekrm1QhV9hrRuntjBVxxKZm"

// WalletRef names a wallet and, optionally, one of its hotkeys.
type WalletRef struct {
	Name   string `mapstructure:"name"`
	Hotkey string `mapstructure:"hotkey"`
}

// RPCConfig configures the chain transport.
type RPCConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// JournalConfig enables persistent journal backends. Empty DSNs keep the
// in-memory journal.
type JournalConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// MetricsConfig configures the pushgateway. An empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ReportConfig configures the run report files. An empty Dir writes none.
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full tool configuration.
type Config struct {
	Endpoint           string        `mapstructure:"endpoint"`
	WalletPath         string        `mapstructure:"wallet_path"`
	HoldingWallet      WalletRef     `mapstructure:"holding_wallet"`
	MinerWallets       []WalletRef   `mapstructure:"miner_wallets"`
	TargetHotkey       string        `mapstructure:"target_hotkey"`
	OriginHotkeyPolicy string        `mapstructure:"origin_hotkey_policy"`
	SkipZeroTransfers  bool          `mapstructure:"skip_zero_transfers"`
	RPC                RPCConfig     `mapstructure:"rpc"`
	Journal            JournalConfig `mapstructure:"journal"`
	Metrics            MetricsConfig `mapstructure:"metrics"`
	Report             ReportConfig  `mapstructure:"report"`
	Log                LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("wallet_path", "~/.bittensor/wallets")
	v.SetDefault("holding_wallet.name", "my-hodl")
	v.SetDefault("holding_wallet.hotkey", "")
	v.SetDefault("miner_wallets", []map[string]interface{}{
		{"name": "miner1", "hotkey": "miner1"},
		{"name": "miner2", "hotkey": "miner2"},
	})
	v.SetDefault("target_hotkey", DefaultTargetHotkey)
	v.SetDefault("origin_hotkey_policy", string(orchestrator.OriginFromPosition))
	v.SetDefault("skip_zero_transfers", true)
	v.SetDefault("rpc.timeout", 30*time.Second)
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.retry_delay", time.Second)
	v.SetDefault("journal.postgres_dsn", "")
	v.SetDefault("journal.clickhouse_dsn", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "alpha-custody")
	v.SetDefault("report.dir", "")
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")
}

// DefaultPath returns $ALPHA_CUSTODY_CONFIG, else ~/.alpha-custody/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".alpha-custody", "config.yaml")
}

// Load reads the config file at path. A missing file means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.WalletPath = expandHome(cfg.WalletPath)
	cfg.Report.Dir = expandHome(cfg.Report.Dir)
	return &cfg, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks the configuration is usable for a run.
func (c *Config) Validate() error {
	var errs []error

	if err := ss58.Validate(c.TargetHotkey); err != nil {
		errs = append(errs, fmt.Errorf("target_hotkey: %w", err))
	}
	if _, err := orchestrator.ParseOriginPolicy(c.OriginHotkeyPolicy); err != nil {
		errs = append(errs, fmt.Errorf("origin_hotkey_policy: %w", err))
	}
	if _, err := c.ChainEndpoint(); err != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	}
	if c.WalletPath == "" {
		errs = append(errs, errors.New("wallet_path is empty"))
	}
	if c.HoldingWallet.Name == "" {
		errs = append(errs, errors.New("holding_wallet.name is empty"))
	}
	if len(c.MinerWallets) == 0 {
		errs = append(errs, errors.New("miner_wallets is empty"))
	}

	seen := make(map[string]bool)
	for i, m := range c.MinerWallets {
		switch {
		case m.Name == "":
			errs = append(errs, fmt.Errorf("miner_wallets[%d].name is empty", i))
		case m.Name == c.HoldingWallet.Name:
			errs = append(errs, fmt.Errorf("miner_wallets[%d]: %s is the holding wallet", i, m.Name))
		case seen[m.Name]:
			errs = append(errs, fmt.Errorf("miner_wallets[%d]: duplicate wallet %s", i, m.Name))
		}
		seen[m.Name] = true
	}

	return errors.Join(errs...)
}

// ChainEndpoint returns the stake gateway URL. There is no default: public
// subtensor nodes do not serve the gateway's stake_* methods.
func (c *Config) ChainEndpoint() (string, error) {
	if c.Endpoint == "" {
		return "", errors.New("no gateway endpoint configured")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", c.Endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q has no host", c.Endpoint)
	}
	return c.Endpoint, nil
}

// Policy returns the parsed origin hotkey policy.
func (c *Config) Policy() orchestrator.OriginPolicy {
	p, err := orchestrator.ParseOriginPolicy(c.OriginHotkeyPolicy)
	if err != nil {
		return orchestrator.OriginFromPosition
	}
	return p
}

// Transport returns the subtensor transport settings.
func (c *Config) Transport() subtensor.TransportConfig {
	return subtensor.TransportConfig{
		Timeout:    c.RPC.Timeout,
		MaxRetries: c.RPC.MaxRetries,
		RetryDelay: c.RPC.RetryDelay,
	}
}
