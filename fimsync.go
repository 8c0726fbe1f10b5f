package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/fimsync/admin"
	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/cfg"
	"github.com/maxpert/fimsync/fimdb"
	"github.com/maxpert/fimsync/logging"
	"github.com/maxpert/fimsync/notify"
	"github.com/maxpert/fimsync/publisher"
	_ "github.com/maxpert/fimsync/publisher/sink"
	_ "github.com/maxpert/fimsync/publisher/transformer"
	"github.com/maxpert/fimsync/telemetry"

	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logCloser, err := logging.Setup(cfg.Config.Logging, cfg.Config.AgentID)
	if err != nil {
		panic(err)
	}
	defer logCloser.Close()

	log.Info().Msg("fimsync - file integrity sync agent")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	// Sync events fan out to the durable spool and to live subscribers
	log.Info().Msg("Initializing publisher registry")
	registry, err := publisher.NewRegistry(publisher.RegistryConfig{
		DataDir:     cfg.Config.DataDir,
		AgentID:     cfg.Config.AgentID,
		Spool:       cfg.Config.Spool,
		SinkConfigs: cfg.Config.Sinks,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize publisher registry")
		return
	}
	defer registry.Stop()

	hub := notify.NewHub()
	defer hub.Close()

	notifiers := callback.Notifiers{
		Sync: callback.Tee(telemetry.InstrumentSync(registry.Notifier()), hub),
		Log:  telemetry.InstrumentLog(logging.NewGlobalNotifier(fimdb.Component)),
	}

	log.Info().Str("path", cfg.GetFIMDBPath()).Msg("Opening FIM database")
	fim, err := fimdb.Open(fimdb.Config{
		Path:      cfg.GetFIMDBPath(),
		FileLimit: cfg.Config.FIM.FileLimit,
		CacheSize: cfg.Config.FIM.CacheSize,
		Notifiers: notifiers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open FIM database")
		return
	}
	defer fim.Close()

	if err := registry.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sink workers")
		return
	}

	scheduler := fimdb.NewIntegrityScheduler(fim, time.Duration(cfg.Config.FIM.SyncIntervalSeconds)*time.Second)
	scheduler.Start()
	defer scheduler.Stop()

	collector := telemetry.NewMetricsCollector(fim, registry.Spool(), 15*time.Second)
	collector.Start()
	defer collector.Stop()

	servers := startHTTPServers(fim, registry.Spool(), hub)

	log.Info().
		Uint64("agent_id", cfg.Config.AgentID).
		Str("data_dir", cfg.Config.DataDir).
		Int("sinks", len(cfg.Config.Sinks)).
		Msg("Agent is operational")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("HTTP server shutdown failed")
		}
	}
}

// startHTTPServers serves the admin API and Prometheus metrics. Metrics share
// the admin listener when it is enabled.
func startHTTPServers(fim *fimdb.DB, spool *publisher.Spool, hub *notify.Hub) []*http.Server {
	var servers []*http.Server
	metrics := telemetry.GetMetricsHandler()

	if cfg.Config.Admin.Enabled {
		mux := http.NewServeMux()
		admin.RegisterRoutes(mux, admin.NewAdminHandlers(cfg.Config.AgentID, fim, spool, hub))
		if metrics != nil {
			mux.Handle("/metrics", metrics)
			metrics = nil
		}
		addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
		servers = append(servers, serve(addr, mux))
	}

	if metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		addr := fmt.Sprintf("%s:%d", cfg.Config.Prometheus.Address, cfg.Config.Prometheus.Port)
		servers = append(servers, serve(addr, mux))
	}

	return servers
}

func serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("HTTP server failed")
		}
	}()
	return srv
}
