package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/config"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/broadcaster"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/feeder"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	"github.com/tdex-network/tdex-pricestream/internal/infrastructure/catalog"
	catalogstore "github.com/tdex-network/tdex-pricestream/internal/infrastructure/catalog/store/badger"
	krakensource "github.com/tdex-network/tdex-pricestream/internal/infrastructure/price-source/kraken"
	simulatedsource "github.com/tdex-network/tdex-pricestream/internal/infrastructure/price-source/simulated"
	httpinterface "github.com/tdex-network/tdex-pricestream/internal/interfaces/http"
	wsinterface "github.com/tdex-network/tdex-pricestream/internal/interfaces/websocket"
	"github.com/tdex-network/tdex-pricestream/internal/metrics"
	"github.com/tdex-network/tdex-pricestream/pkg/stats"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	datadir := config.GetDatadir()
	store, err := catalogstore.NewInstrumentStore(
		datadir, log.WithField("module", "catalog-db"),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to open catalog store")
	}

	upstream, err := newPriceSource()
	if err != nil {
		store.Close()
		log.WithError(err).Fatal("failed to init price source")
	}
	source := catalog.NewService(upstream, store)

	reg := registry.New(config.GetInt(config.RegistryShardsKey))
	publisher := broadcaster.New(reg, broadcaster.WithMetrics(m))
	feeds := feeder.NewManager(source, publisher, feeder.WithMetrics(m))
	reg.SetListener(feeds)

	wsHandler := wsinterface.NewHandler(reg, wsinterface.Config{
		SendBufferSize: config.GetInt(config.SendBufferSizeKey),
		WriteTimeout:   config.GetDuration(config.WriteTimeoutKey, time.Millisecond),
		PongTimeout:    config.GetDuration(config.PongTimeoutKey, time.Millisecond),
		MaxMessageSize: int64(config.GetInt(config.MaxMessageSizeKey)),
		AllowedOrigins: config.GetStringSlice(config.AllowedOriginsKey),
	}, wsinterface.WithMetrics(m))

	httpSvc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Port:             config.GetInt(config.ListeningPortKey),
		PriceSource:      source,
		Registry:         reg,
		Feeds:            feeds,
		WebSocketHandler: wsHandler,
		Gatherer:         promRegistry,
	})
	if err != nil {
		store.Close()
		log.WithError(err).Fatal("failed to init http interface")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	if config.GetBool(config.EnableProfilerKey) {
		statsDir := ""
		if datadir != "" {
			statsDir = filepath.Join(datadir, "stats")
			if err := os.MkdirAll(statsDir, os.ModeDir|0755); err != nil {
				log.WithError(err).Warn("failed to create stats dir")
				statsDir = ""
			}
		}
		interval := config.GetDuration(config.StatsIntervalKey, time.Second)
		stats.EnableMemoryStatistics(ctx, interval, promRegistry, statsDir)
	}

	log.WithFields(log.Fields{
		"price_source": config.GetString(config.PriceSourceKey),
		"datadir":      datadir,
	}).Info("starting daemon")

	if err := httpSvc.Start(); err != nil {
		store.Close()
		log.WithError(err).Fatal("failed to start http interface")
	}

	<-ctx.Done()
	log.Info("shutting down daemon")

	httpSvc.Stop()
	if err := shutdown(feeds, store); err != nil {
		log.WithError(err).Warn("daemon did not shut down cleanly")
	}

	log.Info("exiting")
}

func newPriceSource() (ports.PriceSource, error) {
	switch source := config.GetString(config.PriceSourceKey); source {
	case config.PriceSourceSimulated:
		return simulatedsource.NewService(simulatedsource.Config{
			Instruments: config.GetStringSlice(config.SimulatedInstrumentsKey),
			Interval: config.GetDuration(
				config.SimulatedIntervalKey, time.Millisecond,
			),
		}), nil
	case config.PriceSourceKraken:
		return krakensource.NewService(krakensource.Config{
			RestURL:      config.GetString(config.KrakenRestURLKey),
			WebSocketURL: config.GetString(config.KrakenWebSocketURLKey),
			RequestTimeout: config.GetDuration(
				config.KrakenRequestTimeoutKey, time.Millisecond,
			),
			RateLimit: config.GetInt(config.KrakenRateLimitKey),
		}), nil
	default:
		return nil, fmt.Errorf("unknown price source %s", source)
	}
}

// shutdown stops every upstream feed and closes the catalog store.
func shutdown(feeds *feeder.Manager, store catalog.InstrumentStore) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	eg := &errgroup.Group{}
	eg.Go(func() error {
		if err := feeds.Close(ctx); err != nil {
			return fmt.Errorf("closing feeds: %w", err)
		}
		log.Debug("stopped all upstream feeds")
		return nil
	})
	eg.Go(func() error {
		store.Close()
		log.Debug("closed catalog store")
		return nil
	})
	return eg.Wait()
}
