package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// Sink backends.
const (
	SinkMemory   = "memory"
	SinkPebble   = "pebble"
	SinkPostgres = "postgres"
)

// Instrument is a listed ticker and its opening price in cents.
type Instrument struct {
	Symbol       string
	OpeningPrice int64
}

// Config holds all runtime configuration for the exchange.
type Config struct {
	Port      int
	GRPCPort  int
	LogLevel  string
	LogFormat string

	Instruments []Instrument
	PnLWindow   time.Duration
	VWAPWindow  time.Duration
	EventBuffer int

	SinkBackend  string
	SinkRequired bool
	PebbleDir    string
	PostgresDSN  string

	KafkaBrokers []string
	KafkaTopic   string

	WebhookTimeout  time.Duration
	FeedInterval    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the given .env files (".env" when none are named) without
// overriding variables already set, then builds the configuration from the
// environment. Missing .env files are not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables, applies
// defaults, and validates values.
func FromEnv() (*Config, error) {
	var (
		cfg Config
		err error
	)

	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if cfg.GRPCPort, err = getInt("GRPC_PORT", 9090); err != nil {
		return nil, fmt.Errorf("invalid GRPC_PORT: %w", err)
	}

	cfg.LogLevel = getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	cfg.LogFormat = getStr("LOG_FORMAT", "json")
	switch cfg.LogFormat {
	case "json", "text", "pretty":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q, must be one of: json, text, pretty", cfg.LogFormat)
	}

	if cfg.Instruments, err = ParseInstruments(getStr("INSTRUMENTS", "AAPL:150.00,JPK:100.00")); err != nil {
		return nil, fmt.Errorf("invalid INSTRUMENTS: %w", err)
	}
	if cfg.EventBuffer, err = getInt("EVENT_BUFFER", 1024); err != nil {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: %w", err)
	}
	if cfg.EventBuffer < 1 {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: %d, must be >= 1", cfg.EventBuffer)
	}

	cfg.SinkBackend = getStr("SINK_BACKEND", SinkMemory)
	switch cfg.SinkBackend {
	case SinkMemory, SinkPebble, SinkPostgres:
	default:
		return nil, fmt.Errorf("invalid SINK_BACKEND: %q, must be one of: memory, pebble, postgres", cfg.SinkBackend)
	}
	if cfg.SinkRequired, err = getBool("SINK_REQUIRED", false); err != nil {
		return nil, fmt.Errorf("invalid SINK_REQUIRED: %w", err)
	}
	cfg.PebbleDir = getStr("PEBBLE_DIR", "data/journal")
	cfg.PostgresDSN = getStr("POSTGRES_DSN", "")
	if cfg.SinkBackend == SinkPostgres && cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is required when SINK_BACKEND=postgres")
	}

	if brokers := getStr("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.KafkaTopic = getStr("KAFKA_TOPIC", "exchange.events")

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"PNL_WINDOW", &cfg.PnLWindow, 24 * time.Hour},
		{"VWAP_WINDOW", &cfg.VWAPWindow, 5 * time.Minute},
		{"WEBHOOK_TIMEOUT", &cfg.WebhookTimeout, 5 * time.Second},
		{"FEED_INTERVAL", &cfg.FeedInterval, 250 * time.Millisecond},
		{"READ_TIMEOUT", &cfg.ReadTimeout, 5 * time.Second},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout, 10 * time.Second},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout, 60 * time.Second},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if *d.dst <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
	}

	return &cfg, nil
}

// ParseInstruments parses "TICKER:PRICE" pairs separated by commas, e.g.
// "AAPL:150.00,JPK:100". Tickers are upper-cased.
func ParseInstruments(s string) ([]Instrument, error) {
	var out []Instrument
	seen := make(map[string]bool)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		symbol, price, ok := strings.Cut(pair, ":")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if !ok || symbol == "" {
			return nil, fmt.Errorf("%q: want TICKER:PRICE", pair)
		}
		if seen[symbol] {
			return nil, fmt.Errorf("duplicate ticker %s", symbol)
		}
		cents, err := domain.ParseDollars(strings.TrimSpace(price))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		if cents <= 0 {
			return nil, fmt.Errorf("%s: opening price must be positive", symbol)
		}
		seen[symbol] = true
		out = append(out, Instrument{Symbol: symbol, OpeningPrice: cents})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one instrument is required")
	}
	return out, nil
}

// Registry lists every configured instrument.
func (c *Config) Registry() *domain.InstrumentRegistry {
	reg := domain.NewInstrumentRegistry()
	for _, in := range c.Instruments {
		reg.List(in.Symbol, in.OpeningPrice)
	}
	return reg
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
