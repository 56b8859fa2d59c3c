package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	HTTP    HTTPConfig    `yaml:"http"`
	Venues  VenuesConfig  `yaml:"venues"`
	Trading TradingConfig `yaml:"trading"`
	News    NewsConfig    `yaml:"news"`
	Journal JournalConfig `yaml:"journal"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"outputFile"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type VenuesConfig struct {
	Bybit VenueConfig `yaml:"bybit"`
	Gate  VenueConfig `yaml:"gate"`
}

// VenueConfig 单个交易所的接入参数。
type VenueConfig struct {
	APIKey       string  `yaml:"apiKey"`
	APISecret    string  `yaml:"apiSecret"`
	BaseURL      string  `yaml:"baseURL"`
	WSURL        string  `yaml:"wsURL"`
	UseWebsocket bool    `yaml:"useWebsocket"`
	RestRate     float64 `yaml:"restRate"`
	RestBurst    int     `yaml:"restBurst"`
}

// TradingConfig 套利循环的业务参数。
type TradingConfig struct {
	Symbols            []string      `yaml:"symbols"`
	SpreadMinBps       float64       `yaml:"spreadMinBps"`
	TakerFeeBps        float64       `yaml:"takerFeeBps"`
	SlippageBps        float64       `yaml:"slippageBps"`
	MinNotional        float64       `yaml:"minNotional"`
	MaxOrderUSD        float64       `yaml:"maxOrderUsd"`
	DailyLimitUSD      float64       `yaml:"dailyLimitUsd"`
	DailyResetInterval time.Duration `yaml:"dailyResetInterval"`
	AntifloodSeconds   int           `yaml:"antifloodSeconds"`
	TickInterval       time.Duration `yaml:"tickInterval"`
	HedgeTimeout       time.Duration `yaml:"hedgeTimeout"`
	DryRun             bool          `yaml:"dryRun"`
	DemoMode           bool          `yaml:"demoMode"`
	StopTrading        bool          `yaml:"stopTrading"`
}

type NewsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	SourceURL string        `yaml:"sourceURL"`
	PollEvery time.Duration `yaml:"pollEvery"`
	OrderUSD  float64       `yaml:"orderUsd"`
	Whitelist []string      `yaml:"whitelist"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	cfg.Trading.Symbols = NormalizeSymbols(cfg.Trading.Symbols)
	cfg.News.Whitelist = normalizeTickers(cfg.News.Whitelist)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from env vars
// if present. A .env file next to the process is honoured first.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("ARB_BYBIT_API_KEY"); v != "" {
		cfg.Venues.Bybit.APIKey = v
	}
	if v := os.Getenv("ARB_BYBIT_API_SECRET"); v != "" {
		cfg.Venues.Bybit.APISecret = v
	}
	if v := os.Getenv("ARB_GATE_API_KEY"); v != "" {
		cfg.Venues.Gate.APIKey = v
	}
	if v := os.Getenv("ARB_GATE_API_SECRET"); v != "" {
		cfg.Venues.Gate.APISecret = v
	}
	if v := os.Getenv("ARB_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = NormalizeSymbols(strings.Split(v, ","))
	}
	if v := os.Getenv("ARB_DRY_RUN"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return cfg, fmt.Errorf("parse ARB_DRY_RUN: %w", perr)
		}
		cfg.Trading.DryRun = b
	}
	if v := os.Getenv("ARB_STOP_TRADING"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return cfg, fmt.Errorf("parse ARB_STOP_TRADING: %w", perr)
		}
		cfg.Trading.StopTrading = b
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.Venues.Bybit.BaseURL == "" {
		cfg.Venues.Bybit.BaseURL = "https://api.bybit.com"
	}
	if cfg.Venues.Bybit.WSURL == "" {
		cfg.Venues.Bybit.WSURL = "wss://stream.bybit.com/v5/public/spot"
	}
	if cfg.Venues.Gate.BaseURL == "" {
		cfg.Venues.Gate.BaseURL = "https://api.gateio.ws"
	}
	if cfg.Trading.SpreadMinBps == 0 {
		cfg.Trading.SpreadMinBps = 30
	}
	if cfg.Trading.TakerFeeBps == 0 {
		cfg.Trading.TakerFeeBps = 10
	}
	if cfg.Trading.SlippageBps == 0 {
		cfg.Trading.SlippageBps = 10
	}
	if cfg.Trading.MinNotional == 0 {
		cfg.Trading.MinNotional = 50
	}
	if cfg.Trading.MaxOrderUSD == 0 {
		cfg.Trading.MaxOrderUSD = 100
	}
	if cfg.Trading.DailyLimitUSD == 0 {
		cfg.Trading.DailyLimitUSD = 500
	}
	if cfg.Trading.AntifloodSeconds == 0 {
		cfg.Trading.AntifloodSeconds = 30
	}
	if cfg.Trading.TickInterval == 0 {
		cfg.Trading.TickInterval = time.Second
	}
	if cfg.Trading.HedgeTimeout == 0 {
		cfg.Trading.HedgeTimeout = 5 * time.Second
	}
	if cfg.News.PollEvery == 0 {
		cfg.News.PollEvery = 3 * time.Second
	}
	if cfg.News.OrderUSD == 0 {
		cfg.News.OrderUSD = 50
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "trades.csv"
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if len(cfg.Trading.Symbols) == 0 {
		return errors.New("trading.symbols is required")
	}
	if cfg.Trading.SpreadMinBps <= 0 {
		return errors.New("trading.spreadMinBps must be > 0")
	}
	if cfg.Trading.TakerFeeBps < 0 || cfg.Trading.SlippageBps < 0 {
		return errors.New("trading fee/slippage bps must be >= 0")
	}
	if cfg.Trading.MaxOrderUSD <= 0 {
		return errors.New("trading.maxOrderUsd must be > 0")
	}
	if cfg.Trading.DailyLimitUSD <= 0 {
		return errors.New("trading.dailyLimitUsd must be > 0")
	}
	if cfg.Trading.TickInterval <= 0 {
		return errors.New("trading.tickInterval must be > 0")
	}
	if cfg.Trading.HedgeTimeout <= 0 {
		return errors.New("trading.hedgeTimeout must be > 0")
	}
	if !cfg.Trading.DryRun {
		if cfg.Venues.Bybit.APIKey == "" || cfg.Venues.Bybit.APISecret == "" {
			return errors.New("venues.bybit apiKey/apiSecret is required in live mode (or env overrides)")
		}
		if cfg.Venues.Gate.APIKey == "" || cfg.Venues.Gate.APISecret == "" {
			return errors.New("venues.gate apiKey/apiSecret is required in live mode (or env overrides)")
		}
	}
	if cfg.Trading.DemoMode && !cfg.Trading.DryRun {
		return errors.New("trading.demoMode requires trading.dryRun")
	}
	if cfg.News.Enabled && cfg.News.SourceURL == "" {
		return errors.New("news.sourceURL is required when news.enabled")
	}
	return nil
}

// NormalizeSymbols 把 "BTCUSDT,ethusdt" 这类输入统一成 "BTC/USDT" 形式，
// 丢弃空项。已带斜杠的保持原样（仅大写）。
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		n := normalizeSymbol(s)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "/") {
		return s
	}
	for _, quote := range []string{"USDT", "USDC"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s
}

func normalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
