// Package app wires configuration into a ready-to-run refresh engine. Both
// the service and the CLI build through it so they share one component graph.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/hdd-momentum-service/internal/adapter/kafka"
	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/mapbox"
	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/noaa"
	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/hdd-momentum-service/internal/archive"
	"github.com/couchcryptid/hdd-momentum-service/internal/cache"
	"github.com/couchcryptid/hdd-momentum-service/internal/config"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/market"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

// DefaultIndicators are the climate indices fetched on every refresh.
var DefaultIndicators = []domain.Indicator{domain.IndicatorAO, domain.IndicatorNAO, domain.IndicatorPNA}

// App holds the wired engine and everything that must be closed with it.
type App struct {
	Engine     *pipeline.Engine
	Registry   *domain.Registry
	Classifier *domain.Classifier
	Archive    archive.Archive
	Clock      clockwork.Clock

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Options toggles optional collaborators.
type Options struct {
	// Publish enables the Kafka publisher when KAFKA_ENABLED is also set.
	Publish bool
	// Clock overrides the wall clock.
	Clock clockwork.Clock
}

// New builds the component graph described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	reg, tables, err := config.LoadRegistry(ctx, cfg.RegistryPath, NewGeocoder(cfg, logger), logger)
	if err != nil {
		return nil, err
	}
	classifier, err := domain.NewClassifier(tables)
	if err != nil {
		return nil, fmt.Errorf("threshold tables: %w", err)
	}
	logger.Info("location registry loaded",
		"version", reg.Version(),
		"locations", reg.Len(),
		"indicators", classifier.Indicators(),
	)

	a := &App{Registry: reg, Classifier: classifier, Clock: clock}

	forecasts, err := a.forecastProvider(ctx, cfg, clock, logger, metrics)
	if err != nil {
		a.Close(logger)
		return nil, err
	}

	a.Archive = newArchive(ctx, cfg, clock, logger)
	a.closers = append(a.closers, namedCloser{"archive", a.Archive})

	engineOpts := pipeline.Options{
		Registry:     reg,
		Classifier:   classifier,
		Forecasts:    forecasts,
		Archive:      a.Archive,
		Indices:      noaa.NewClient(cfg.IndexBaseURL, cfg.IndexTimeout, clock, metrics, logger),
		Indicators:   DefaultIndicators,
		Market:       newMarket(cfg, clock, logger),
		Schedule:     cfg.CycleSchedule,
		Baseline:     cfg.Baseline,
		Concurrency:  cfg.ForecastConcurrency,
		FetchTimeout: cfg.ForecastTimeout,
		Clock:        clock,
	}

	if opts.Publish && cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		a.closers = append(a.closers, namedCloser{"kafka writer", writer})
		engineOpts.Publisher = writer
		logger.Info("snapshot publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	a.Engine, err = pipeline.New(engineOpts, logger, metrics)
	if err != nil {
		a.Close(logger)
		return nil, err
	}
	return a, nil
}

// Close releases every closable collaborator, logging failures.
func (a *App) Close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			logger.Error("close failed", "component", nc.name, "error", err)
		}
	}
	a.closers = nil
}

// NewGeocoder returns the Mapbox geocoder when MAPBOX_ENABLED is set, nil
// otherwise.
func NewGeocoder(cfg *config.Config, logger *slog.Logger) domain.Geocoder {
	if !cfg.MapboxEnabled {
		return nil
	}
	return mapbox.NewClient(cfg.MapboxBaseURL, cfg.MapboxToken, cfg.MapboxTimeout, logger)
}

func (a *App) forecastProvider(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (domain.ForecastProvider, error) {
	client := openmeteo.NewClient(cfg.ForecastBaseURL, cfg.ForecastTimeout, metrics, logger)

	var c cache.Cache
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "hdd",
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"redis cache", rc})
		c = rc
	default:
		c = cache.NewMemoryCache(cfg.CacheSize, clock)
	}
	logger.Info("forecast cache ready", "backend", cfg.CacheBackend, "ttl", cfg.ForecastCacheTTL)

	return cache.NewForecastProvider(client, c, cfg.ForecastCacheTTL, cfg.CycleSchedule, clock, metrics, logger), nil
}

func newArchive(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) archive.Archive {
	var a archive.Archive
	if cfg.ArchiveBackend == "sqlite" {
		a = archive.NewSQLiteArchive(ctx, cfg.ArchivePath, clock, logger)
	} else {
		a = archive.NewFileArchive(cfg.ArchivePath, clock, logger)
	}
	st := a.Status()
	logger.Info("archive opened",
		"backend", st.Backend,
		"path", cfg.ArchivePath,
		"records", st.Records,
		"corrupt", st.Corrupt,
	)
	return a
}

func newMarket(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *market.Service {
	var positioning market.PositioningSource = market.NewManualSource(market.Positioning{
		ManagedMoneyLong:  cfg.ManagedMoneyLong,
		ManagedMoneyShort: cfg.ManagedMoneyShort,
		RetailLong:        cfg.RetailLong,
		RetailShort:       cfg.RetailShort,
	})
	if cfg.COTURL != "" {
		cot := market.NewCOTSource(cfg.COTURL, cfg.COTMarket, cfg.COTTimeout, clock)
		positioning = market.NewFallbackSource(cot, positioning, logger)
	}
	var price market.PriceSource
	if cfg.PriceEnabled {
		price = market.NewChartSource(cfg.PriceURL, cfg.PriceSymbol, cfg.PriceTimeout, clock)
	}
	return market.NewService(
		market.NewStorageContext(cfg.StorageBcf, cfg.StorageFiveYearBcf),
		positioning,
		price,
		clock,
		logger,
	)
}
