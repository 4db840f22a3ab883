package config

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// Job ids used by the scheduler. The checkpoint store uses the same names as
// file prefixes so that one name identifies a monitor kind everywhere.
const (
	JobPriceMonitor    = "price_monitor"
	JobPositionChanges = "position_changes"
	JobAccountTracker  = "account_tracker"
	JobStateSaver      = "state_saver"
)

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token" json:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id" json:"chat_id"`
}

type TrackedAccount struct {
	Address string `mapstructure:"address" yaml:"address" json:"address"`
	Label   string `mapstructure:"label" yaml:"label" json:"label"`
}

// PriceAlert is a per-market price monitor override. Above and Below are fixed
// level alerts, Threshold overrides the default change threshold.
type PriceAlert struct {
	Above     *float64 `mapstructure:"above" yaml:"above,omitempty" json:"above,omitempty"`
	Below     *float64 `mapstructure:"below" yaml:"below,omitempty" json:"below,omitempty"`
	Threshold *float64 `mapstructure:"threshold" yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

type PriceMonitorConfig struct {
	IntervalSeconds  int                   `mapstructure:"interval_seconds" yaml:"interval_seconds" json:"interval_seconds"`
	DefaultThreshold float64               `mapstructure:"default_threshold" yaml:"default_threshold" json:"default_threshold"`
	PerMarket        map[string]PriceAlert `mapstructure:"per_market" yaml:"per_market" json:"per_market"`
}

func (c PriceMonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type PositionChangeMarket struct {
	Threshold *float64 `mapstructure:"threshold" yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

type PositionChangesConfig struct {
	IntervalSeconds  int                             `mapstructure:"interval_seconds" yaml:"interval_seconds" json:"interval_seconds"`
	DefaultThreshold float64                         `mapstructure:"default_threshold" yaml:"default_threshold" json:"default_threshold"`
	PerMarket        map[string]PositionChangeMarket `mapstructure:"per_market" yaml:"per_market" json:"per_market"`
}

func (c PositionChangesConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type AccountTrackerConfig struct {
	IntervalSeconds int              `mapstructure:"interval_seconds" yaml:"interval_seconds" json:"interval_seconds"`
	Accounts        []TrackedAccount `mapstructure:"accounts" yaml:"accounts" json:"accounts"`
}

func (c AccountTrackerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type AppConfig struct {
	Telegram            TelegramConfig        `mapstructure:"telegram" yaml:"telegram" json:"telegram"`
	MyWallets           []string              `mapstructure:"my_wallets" yaml:"my_wallets" json:"my_wallets"`
	PriceMonitor        PriceMonitorConfig    `mapstructure:"price_monitor" yaml:"price_monitor" json:"price_monitor"`
	PositionChanges     PositionChangesConfig `mapstructure:"position_changes" yaml:"position_changes" json:"position_changes"`
	AccountTracker      AccountTrackerConfig  `mapstructure:"account_tracker" yaml:"account_tracker" json:"account_tracker"`
	StateDir            string                `mapstructure:"state_dir" yaml:"state_dir" json:"state_dir"`
	WebPort             int                   `mapstructure:"web_port" yaml:"web_port" json:"web_port"`
	SaveIntervalSeconds int                   `mapstructure:"save_interval_seconds" yaml:"save_interval_seconds" json:"save_interval_seconds"`
}

func (c *AppConfig) SaveInterval() time.Duration {
	return time.Duration(c.SaveIntervalSeconds) * time.Second
}

func Default() *AppConfig {
	return &AppConfig{
		PriceMonitor: PriceMonitorConfig{
			IntervalSeconds:  60,
			DefaultThreshold: 0.05,
		},
		PositionChanges: PositionChangesConfig{
			IntervalSeconds:  3600,
			DefaultThreshold: 0.1,
		},
		AccountTracker: AccountTrackerConfig{
			IntervalSeconds: 120,
		},
		StateDir:            "data",
		WebPort:             8888,
		SaveIntervalSeconds: 600,
	}
}

// Load unmarshals the already-read viper config over the defaults.
func Load() (*AppConfig, error) {
	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.WebPort < 0 || c.WebPort > 65535 {
		return fmt.Errorf("web_port must be between 0 and 65535, got %d", c.WebPort)
	}
	if err := c.PriceMonitor.validate(); err != nil {
		return fmt.Errorf("price_monitor: %w", err)
	}
	if err := c.PositionChanges.validate(); err != nil {
		return fmt.Errorf("position_changes: %w", err)
	}
	if err := c.AccountTracker.validate(); err != nil {
		return fmt.Errorf("account_tracker: %w", err)
	}
	return nil
}

func (c PriceMonitorConfig) validate() error {
	if c.DefaultThreshold < 0 {
		return fmt.Errorf("default_threshold must not be negative, got %v", c.DefaultThreshold)
	}
	for id, alert := range c.PerMarket {
		if id == "" {
			return fmt.Errorf("per_market contains an empty condition id")
		}
		if alert.Threshold != nil && *alert.Threshold < 0 {
			return fmt.Errorf("market %s: threshold must not be negative", id)
		}
		if alert.Above != nil && (*alert.Above < 0 || *alert.Above > 1) {
			return fmt.Errorf("market %s: above level must be within [0, 1]", id)
		}
		if alert.Below != nil && (*alert.Below < 0 || *alert.Below > 1) {
			return fmt.Errorf("market %s: below level must be within [0, 1]", id)
		}
	}
	return nil
}

func (c PositionChangesConfig) validate() error {
	if c.DefaultThreshold < 0 {
		return fmt.Errorf("default_threshold must not be negative, got %v", c.DefaultThreshold)
	}
	for id, market := range c.PerMarket {
		if id == "" {
			return fmt.Errorf("per_market contains an empty condition id")
		}
		if market.Threshold != nil && *market.Threshold < 0 {
			return fmt.Errorf("market %s: threshold must not be negative", id)
		}
	}
	return nil
}

func (c AccountTrackerConfig) validate() error {
	for i, account := range c.Accounts {
		if account.Address == "" {
			return fmt.Errorf("account %d has no address", i)
		}
	}
	return nil
}

// Clone returns a deep copy, so an update built from it never aliases the live
// config's maps and slices.
func (c *AppConfig) Clone() *AppConfig {
	out := *c
	out.MyWallets = slices.Clone(c.MyWallets)
	out.PriceMonitor.PerMarket = maps.Clone(c.PriceMonitor.PerMarket)
	out.PositionChanges.PerMarket = maps.Clone(c.PositionChanges.PerMarket)
	out.AccountTracker.Accounts = slices.Clone(c.AccountTracker.Accounts)
	return &out
}
