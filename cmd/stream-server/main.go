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

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pitaeeg/sensor-server/internal/acquisition"
	"github.com/pitaeeg/sensor-server/internal/api"
	"github.com/pitaeeg/sensor-server/internal/config"
	"github.com/pitaeeg/sensor-server/internal/publisher"
	"github.com/pitaeeg/sensor-server/internal/storage"
	"github.com/pitaeeg/sensor-server/pkg/haru"
	"github.com/pitaeeg/sensor-server/pkg/haru/native"
)

func main() {
	var configPath = flag.String("config", "config/stream-server.yml", "path to configuration file")
	var validateOnly = flag.Bool("validate", false, "validate configuration and exit")
	var showConfig = flag.Bool("show-config", false, "print configuration summary and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	if *validateOnly {
		cfg.PrintConfigSummary()
		fmt.Println("configuration OK")
		return
	}

	log.Info().Str("config_path", *configPath).Msg("Stream server starting")

	// Sensor session
	transport, err := native.Load(cfg.Sensor.LibraryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load sensor library")
	}

	session, err := haru.Open(transport, cfg.Sensor.Port, haru.WithTiming(haru.TimesetParam{
		ComTimeout:  int32(cfg.Sensor.ComTimeout.Milliseconds()),
		ScanTimeout: int32(cfg.Sensor.ScanTimeout.Milliseconds()),
	}))
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Sensor.Port).Msg("Failed to open sensor session")
	}
	defer session.Close()

	// Database (optional)
	var store storage.Store
	if cfg.Recording.StoreMetadata {
		pgStore, err := storage.NewPostgresStore(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pgStore.Close()

		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pgStore.InitSchema(initCtx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("Failed to initialize database schema")
		}
		cancel()
		store = pgStore
	}

	// NATS
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.ReconnectWait(cfg.NATS.ReconnectInterval),
		nats.MaxReconnects(cfg.NATS.MaxReconnects))
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	pub := publisher.New(nc, cfg.NATS.SubjectPrefix)
	svc := acquisition.New(session, cfg, pub, store)

	if err := svc.Connect(); err != nil {
		log.Fatal().Err(err).Str("device", cfg.Sensor.Device).Msg("Failed to connect to device")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional MQTT forwarder
	if cfg.MQTT.Enabled {
		forwarder := publisher.NewForwarderService(nc, cfg.NATS.SubjectPrefix, &cfg.MQTT)
		go func() {
			if err := forwarder.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("MQTT forwarder failed")
				cancel()
			}
		}()
	}

	// REST API
	server := api.NewRESTServer(cfg, store, session, svc)
	apiAddr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	go func() {
		if err := server.ListenAndServe(apiAddr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("REST API server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("REST API shutdown failed")
	}

	log.Info().Msg("Stream server stopped")
}
