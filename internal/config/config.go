package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig          `yaml:"log"`
	Metrics  MetricsConfig          `yaml:"metrics"`
	State    StateConfig            `yaml:"state"`
	History  HistoryConfig          `yaml:"history"`
	Telegram TelegramConfig         `yaml:"telegram"`
	Venues   map[string]VenueConfig `yaml:"venues"`
	Strategy StrategyParams         `yaml:"strategy"`
	Arb      ArbitrageParams        `yaml:"arbitrage"`
	Risk     RiskConfig             `yaml:"risk"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Schema  string `yaml:"schema"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type VenueConfig struct {
	RESTURL        string        `yaml:"rest_url"`
	ExchangeURL    string        `yaml:"exchange_url"`
	WSURL          string        `yaml:"ws_url"`
	AccountAddress string        `yaml:"account_address"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	OrdersPerSec   float64       `yaml:"orders_per_sec"`
	OrderBurst     int           `yaml:"order_burst"`
}

// StrategyParams is the immutable per-run parameter set for the quoting
// strategies. A copy travels with each run; the engine never mutates it.
type StrategyParams struct {
	Name                    string        `yaml:"name"`
	Venue                   string        `yaml:"venue"`
	Symbol                  string        `yaml:"symbol"`
	BidSpread               float64       `yaml:"bid_spread"`
	AskSpread               float64       `yaml:"ask_spread"`
	OrderAmount             float64       `yaml:"order_amount"`
	RefreshTime             time.Duration `yaml:"refresh_time"`
	OrderMaxAge             time.Duration `yaml:"order_max_age"`
	PriceDeviationThreshold float64       `yaml:"price_deviation_threshold"`
	MaxOrderDistance        float64       `yaml:"max_order_distance"`
	IsPerp                  bool          `yaml:"is_perp"`
	Leverage                int           `yaml:"leverage"`
	UseDynamicSpreads       bool          `yaml:"use_dynamic_spreads"`
	VolatilityWindow        int           `yaml:"volatility_window"`
	VolReference            float64       `yaml:"vol_reference"`
	MinSpreadFactor         float64       `yaml:"min_spread_factor"`
	MaxSpreadFactor         float64       `yaml:"max_spread_factor"`
	TickSize                float64       `yaml:"tick_size"`
	MinOrderSize            float64       `yaml:"min_order_size"`
}

// ArbitrageParams configures the cross-exchange variant. VenueA and VenueB
// name entries in Config.Venues; SymbolA and SymbolB are the venue-local
// spellings of the same pair.
type ArbitrageParams struct {
	Symbol                string        `yaml:"symbol"`
	VenueA                string        `yaml:"venue_a"`
	VenueB                string        `yaml:"venue_b"`
	SymbolA               string        `yaml:"symbol_a"`
	SymbolB               string        `yaml:"symbol_b"`
	MinDeltaPercentage    float64       `yaml:"min_delta_percentage"`
	MaxOrderSize          float64       `yaml:"max_order_size"`
	MaxInventoryImbalance float64       `yaml:"max_inventory_imbalance"`
	RefreshTime           time.Duration `yaml:"refresh_time"`
}

type RiskConfig struct {
	MaxConsecutiveRejects int           `yaml:"max_consecutive_rejects"`
	MaxConnectivityErrors int           `yaml:"max_connectivity_errors"`
	CancelTimeout         time.Duration `yaml:"cancel_timeout"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, Validate(&cfg)
}

func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-mm-bot.db"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	for name, venue := range cfg.Venues {
		if venue.ExchangeURL == "" {
			venue.ExchangeURL = venue.RESTURL
		}
		if venue.Timeout == 0 {
			venue.Timeout = 10 * time.Second
		}
		if venue.ReconnectDelay == 0 {
			venue.ReconnectDelay = 3 * time.Second
		}
		if venue.PingInterval == 0 {
			venue.PingInterval = 30 * time.Second
		}
		if venue.OrdersPerSec == 0 {
			venue.OrdersPerSec = 5
		}
		if venue.OrderBurst == 0 {
			venue.OrderBurst = 10
		}
		cfg.Venues[name] = venue
	}
	ApplyStrategyDefaults(&cfg.Strategy)
	ApplyArbitrageDefaults(&cfg.Arb)
	if cfg.Risk.MaxConsecutiveRejects == 0 {
		cfg.Risk.MaxConsecutiveRejects = 3
	}
	if cfg.Risk.MaxConnectivityErrors == 0 {
		cfg.Risk.MaxConnectivityErrors = 3
	}
	if cfg.Risk.CancelTimeout == 0 {
		cfg.Risk.CancelTimeout = 10 * time.Second
	}
}

func ApplyStrategyDefaults(p *StrategyParams) {
	if p.BidSpread == 0 {
		p.BidSpread = 0.0005
	}
	if p.AskSpread == 0 {
		p.AskSpread = 0.0005
	}
	if p.RefreshTime == 0 {
		p.RefreshTime = 10 * time.Second
	}
	if p.OrderMaxAge == 0 {
		p.OrderMaxAge = 30 * time.Second
	}
	if p.PriceDeviationThreshold == 0 {
		p.PriceDeviationThreshold = 0.002
	}
	if p.Leverage == 0 {
		p.Leverage = 1
	}
	if p.VolatilityWindow == 0 {
		p.VolatilityWindow = 100
	}
	if p.VolReference == 0 {
		p.VolReference = 0.001
	}
	if p.MinSpreadFactor == 0 {
		p.MinSpreadFactor = 0.5
	}
	if p.MaxSpreadFactor == 0 {
		p.MaxSpreadFactor = 3.0
	}
	if p.MinOrderSize == 0 {
		p.MinOrderSize = 1e-5
	}
}

func ApplyArbitrageDefaults(p *ArbitrageParams) {
	if p.MinDeltaPercentage == 0 {
		p.MinDeltaPercentage = 0.001
	}
	if p.MaxInventoryImbalance == 0 {
		p.MaxInventoryImbalance = 0.03
	}
	if p.RefreshTime == 0 {
		p.RefreshTime = time.Second
	}
}

func Validate(cfg *Config) error {
	if cfg.Strategy.Name != "" {
		if err := ValidateStrategy(&cfg.Strategy); err != nil {
			return err
		}
		if cfg.Strategy.Venue != "" {
			if _, ok := cfg.Venues[cfg.Strategy.Venue]; !ok {
				return fmt.Errorf("strategy.venue %q not present in venues", cfg.Strategy.Venue)
			}
		}
	}
	if cfg.Arb.Symbol != "" {
		if err := ValidateArbitrage(&cfg.Arb); err != nil {
			return err
		}
	}
	return nil
}

func ValidateStrategy(p *StrategyParams) error {
	if p.Symbol == "" {
		return errors.New("strategy.symbol is required")
	}
	if p.BidSpread <= 0 || p.AskSpread <= 0 {
		return errors.New("strategy spreads must be > 0")
	}
	if p.OrderAmount <= 0 {
		return errors.New("strategy.order_amount must be > 0")
	}
	if p.RefreshTime <= 0 {
		return errors.New("strategy.refresh_time must be > 0")
	}
	if p.Leverage < 1 {
		return errors.New("strategy.leverage must be >= 1")
	}
	if p.MinSpreadFactor > p.MaxSpreadFactor {
		return errors.New("strategy.min_spread_factor exceeds max_spread_factor")
	}
	return nil
}

func ValidateArbitrage(p *ArbitrageParams) error {
	if p.Symbol == "" {
		return errors.New("arbitrage.symbol is required")
	}
	if p.VenueA == "" || p.VenueB == "" {
		return errors.New("arbitrage venues are required")
	}
	if p.VenueA == p.VenueB {
		return errors.New("arbitrage venues must differ")
	}
	if p.MinDeltaPercentage <= 0 {
		return errors.New("arbitrage.min_delta_percentage must be > 0")
	}
	if p.MaxOrderSize <= 0 {
		return errors.New("arbitrage.max_order_size must be > 0")
	}
	if p.RefreshTime <= 0 {
		return errors.New("arbitrage.refresh_time must be > 0")
	}
	return nil
}
