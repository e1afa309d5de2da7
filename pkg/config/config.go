package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the gateway.
type Config struct {
	Port     string `env:"PORT" envDefault:"5555"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// HashKey
	AccessKey  string `env:"HASHKEY_ACCESS_KEY,required"`
	SecretKey  string `env:"HASHKEY_SECRET_KEY,required"`
	BaseURL    string `env:"HASHKEY_BASE_URL" envDefault:"https://api-glb.hashkey.com"`
	AccountID  string `env:"HASHKEY_ACCOUNT_ID"`
	RecvWindow int64  `env:"HASHKEY_RECV_WINDOW" envDefault:"5000"` // ms
	// TimeOffset shifts request timestamps; deployments with a skewed host clock set e.g. 9h.
	TimeOffset     time.Duration `env:"HASHKEY_TIME_OFFSET" envDefault:"0s"`
	TimeSync       bool          `env:"HASHKEY_TIME_SYNC" envDefault:"false"`
	HTTPTimeout    time.Duration `env:"HASHKEY_HTTP_TIMEOUT" envDefault:"10s"`
	RateLimitRPS   float64       `env:"HASHKEY_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int           `env:"HASHKEY_RATE_LIMIT_BURST" envDefault:"20"`

	// HTTP façade
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Logging
	TradeLogPath string `env:"TRADE_LOG_PATH" envDefault:"trade.log"`

	// Scenario defaults; a YAML profile at ScenarioConfigPath overrides them.
	ScenarioConfigPath string `env:"SCENARIO_CONFIG"`
	Scenario           Scenario
}

// Scenario configures the camp2 scenario and the convenience order endpoints.
type Scenario struct {
	Symbol          string          `env:"SCENARIO_SYMBOL" envDefault:"BTCUSDT" yaml:"symbol"`
	BaseAsset       string          `env:"SCENARIO_BASE_ASSET" envDefault:"BTC" yaml:"base_asset"`
	QuoteAsset      string          `env:"SCENARIO_QUOTE_ASSET" envDefault:"USDT" yaml:"quote_asset"`
	Markup          decimal.Decimal `env:"SCENARIO_MARKUP" envDefault:"1000" yaml:"-"`
	Depth           int             `env:"SCENARIO_DEPTH" envDefault:"5" yaml:"depth"`
	Jitter          time.Duration   `env:"SCENARIO_JITTER" envDefault:"2s" yaml:"jitter"`
	Settle          time.Duration   `env:"SCENARIO_SETTLE" envDefault:"500ms" yaml:"settle"`
	MarketBuyAmount decimal.Decimal `env:"SCENARIO_MARKET_BUY_AMOUNT" envDefault:"5000" yaml:"-"`
}

// scenarioFile is the YAML profile layout. Decimals are strings to keep precision.
type scenarioFile struct {
	Scenario struct {
		Scenario        `yaml:",inline"`
		Markup          string `yaml:"markup"`
		MarketBuyAmount string `yaml:"market_buy_amount"`
	} `yaml:"scenario"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses the current process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("HASHKEY_ACCESS_KEY and HASHKEY_SECRET_KEY must be non-empty")
	}
	if cfg.ScenarioConfigPath != "" {
		if err := cfg.Scenario.mergeFile(cfg.ScenarioConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Scenario.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile overrides fields present in the YAML profile at path.
func (s *Scenario) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario config: %w", err)
	}
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse scenario config %s: %w", path, err)
	}
	in := file.Scenario
	if in.Symbol != "" {
		s.Symbol = in.Symbol
	}
	if in.BaseAsset != "" {
		s.BaseAsset = in.BaseAsset
	}
	if in.QuoteAsset != "" {
		s.QuoteAsset = in.QuoteAsset
	}
	if in.Depth > 0 {
		s.Depth = in.Depth
	}
	if in.Jitter > 0 {
		s.Jitter = in.Jitter
	}
	if in.Settle > 0 {
		s.Settle = in.Settle
	}
	if in.Markup != "" {
		v, err := decimal.NewFromString(in.Markup)
		if err != nil {
			return fmt.Errorf("scenario markup %q: %w", in.Markup, err)
		}
		s.Markup = v
	}
	if in.MarketBuyAmount != "" {
		v, err := decimal.NewFromString(in.MarketBuyAmount)
		if err != nil {
			return fmt.Errorf("scenario market_buy_amount %q: %w", in.MarketBuyAmount, err)
		}
		s.MarketBuyAmount = v
	}
	return nil
}

func (s *Scenario) validate() error {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.BaseAsset = strings.ToUpper(strings.TrimSpace(s.BaseAsset))
	s.QuoteAsset = strings.ToUpper(strings.TrimSpace(s.QuoteAsset))
	switch {
	case s.Symbol == "" || s.BaseAsset == "" || s.QuoteAsset == "":
		return errors.New("scenario symbol and assets are required")
	case s.Markup.IsNegative():
		return errors.New("scenario markup must be >= 0")
	case s.Depth <= 0:
		return errors.New("scenario depth must be > 0")
	case s.Jitter < 0 || s.Settle < 0:
		return errors.New("scenario jitter and settle must be >= 0")
	}
	return nil
}
