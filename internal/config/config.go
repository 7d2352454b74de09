package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Composite configuration.
	RegistryPath  string
	Baseline      float64
	Horizon       int
	CycleSchedule domain.CycleSchedule

	// Geocoding for registry entries without coordinates.
	MapboxEnabled bool
	MapboxBaseURL string
	MapboxToken   string
	MapboxTimeout time.Duration

	// Background refresh at each cycle boundary.
	AutoRefresh     bool
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration

	// Forecast provider.
	ForecastBaseURL     string
	ForecastTimeout     time.Duration
	ForecastConcurrency int
	ForecastCacheTTL    time.Duration

	// Forecast cache backend.
	CacheBackend  string
	CacheSize     int
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Archive backend.
	ArchiveBackend string
	ArchivePath    string

	// Climate indices.
	IndexBaseURL string
	IndexTimeout time.Duration

	// Snapshot publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Market context.
	StorageBcf         float64
	StorageFiveYearBcf float64
	COTURL             string
	COTMarket          string
	COTTimeout         time.Duration
	PriceEnabled       bool
	PriceURL           string
	PriceSymbol        string
	PriceTimeout       time.Duration
	ManagedMoneyLong   int64
	ManagedMoneyShort  int64
	RetailLong         int64
	RetailShort        int64
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(sharedcfg.EnvOrDefault("DOTENV_PATH", ".env"))

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RegistryPath: os.Getenv("REGISTRY_PATH"),
		Baseline:     p.parseFloat("HDD_BASELINE", domain.DefaultBaseline),
		Horizon:      p.parseInt("FORECAST_HORIZON", domain.Horizon),
		CycleSchedule: domain.CycleSchedule{
			Morning: p.parseClock("CYCLE_MORNING_BOUNDARY", "07:00"),
			Evening: p.parseClock("CYCLE_EVENING_BOUNDARY", "19:00"),
		},
		MapboxEnabled: os.Getenv("MAPBOX_ENABLED") == "true",
		MapboxBaseURL: sharedcfg.EnvOrDefault("MAPBOX_BASE_URL", "https://api.mapbox.com/geocoding/v5/mapbox.places"),
		MapboxToken:   os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout: p.parseDuration("MAPBOX_TIMEOUT", "5s"),

		AutoRefresh:     os.Getenv("AUTO_REFRESH") == "true",
		RetryMinBackoff: p.parseDuration("REFRESH_RETRY_MIN", "30s"),
		RetryMaxBackoff: p.parseDuration("REFRESH_RETRY_MAX", "10m"),

		ForecastBaseURL:     sharedcfg.EnvOrDefault("FORECAST_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		ForecastTimeout:     p.parseDuration("FORECAST_TIMEOUT", "10s"),
		ForecastConcurrency: p.parseInt("FORECAST_CONCURRENCY", 4),
		ForecastCacheTTL:    p.parseDuration("FORECAST_CACHE_TTL", "30m"),

		CacheBackend:  sharedcfg.EnvOrDefault("CACHE_BACKEND", "memory"),
		CacheSize:     p.parseInt("CACHE_SIZE", 256),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.parseInt("REDIS_DB", 0),

		ArchiveBackend: sharedcfg.EnvOrDefault("ARCHIVE_BACKEND", "file"),
		ArchivePath:    sharedcfg.EnvOrDefault("ARCHIVE_PATH", "data/archive.json"),

		IndexBaseURL: sharedcfg.EnvOrDefault("INDEX_BASE_URL", "https://ftp.cpc.ncep.noaa.gov/cwlinks"),
		IndexTimeout: p.parseDuration("INDEX_TIMEOUT", "10s"),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hdd-snapshots"),

		StorageBcf:         p.parseFloat("STORAGE_BCF", 3375),
		StorageFiveYearBcf: p.parseFloat("STORAGE_FIVE_YEAR_BCF", 3317),
		COTURL:             os.Getenv("COT_URL"),
		COTMarket:          sharedcfg.EnvOrDefault("COT_MARKET", "NAT GAS NYME"),
		COTTimeout:         p.parseDuration("COT_TIMEOUT", "10s"),
		PriceEnabled:       os.Getenv("PRICE_ENABLED") != "false",
		PriceURL:           sharedcfg.EnvOrDefault("PRICE_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
		PriceSymbol:        sharedcfg.EnvOrDefault("PRICE_SYMBOL", "NG=F"),
		PriceTimeout:       p.parseDuration("PRICE_TIMEOUT", "10s"),
		ManagedMoneyLong:   p.parseInt64("MM_LONG", 288456),
		ManagedMoneyShort:  p.parseInt64("MM_SHORT", 424123),
		RetailLong:         p.parseInt64("RETAIL_LONG", 54120),
		RetailShort:        p.parseInt64("RETAIL_SHORT", 32100),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Horizon != domain.Horizon {
		return fmt.Errorf("FORECAST_HORIZON must be %d", domain.Horizon)
	}
	if math.IsNaN(c.Baseline) || math.IsInf(c.Baseline, 0) {
		return errors.New("HDD_BASELINE must be a finite number")
	}
	if err := c.CycleSchedule.Validate(); err != nil {
		return fmt.Errorf("invalid CYCLE_MORNING_BOUNDARY/CYCLE_EVENING_BOUNDARY: %w", err)
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_TOKEN is required when MAPBOX_ENABLED is true")
	}
	if c.RetryMaxBackoff < c.RetryMinBackoff {
		return errors.New("REFRESH_RETRY_MAX must not be less than REFRESH_RETRY_MIN")
	}
	if c.ForecastConcurrency < 1 {
		return errors.New("FORECAST_CONCURRENCY must be at least 1")
	}

	switch c.CacheBackend {
	case "memory":
		if c.CacheSize < 1 {
			return errors.New("CACHE_SIZE must be at least 1")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when CACHE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want memory or redis)", c.CacheBackend)
	}

	switch c.ArchiveBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q (want file or sqlite)", c.ArchiveBackend)
	}
	if c.ArchivePath == "" {
		return errors.New("ARCHIVE_PATH is required")
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required")
		}
	}
	return nil
}

// parser collects the first parse error so Load can read every key in one
// struct literal.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) parseDuration(key, def string) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	if d <= 0 {
		p.fail(key, errors.New("must be positive"))
		return 0
	}
	return d
}

func (p *parser) parseInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, err)
		return 0
	}
	return n
}

func (p *parser) parseInt64(key string, def int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail(key, err)
		return 0
	}
	return n
}

func (p *parser) parseFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, err)
		return 0
	}
	return f
}

func (p *parser) parseClock(key, def string) time.Duration {
	d, err := domain.ParseClockOffset(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	return d
}
