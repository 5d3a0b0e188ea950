/*
DESCRIPTION
  Chat Watch is the control plane of the live chat collection system:
  it hosts the feed scanner, the broadcast-state monitor and the
  dispatcher in one binary.

LICENSE
  Copyright (C) 2025 the YouTube Live Chat DB System authors.

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Chat Watch is the control plane service for collecting YouTube live
// chat. The feed scanner and state monitor run on cron schedules; the
// dispatcher consumes the task bus continuously.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/taskbus"
	"github.com/ando1912/YoutubeLiveChatDBSystem/worker"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

const version = "v0.1.0"

func main() {
	defaultPort := 8080
	if v := os.Getenv("PORT"); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			defaultPort = i
		}
	}

	var (
		debug      bool
		standalone bool
		host       string
		port       int
	)
	flag.BoolVar(&debug, "debug", false, "Run in debug mode.")
	flag.BoolVar(&standalone, "standalone", false, "Run standalone: in-memory store and in-process bus.")
	flag.StringVar(&host, "host", "localhost", "Host we run on in standalone mode")
	flag.IntVar(&port, "port", defaultPort, "Port we listen on")
	flag.Parse()

	logger := newLogger(debug)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}
	if standalone {
		cfg.Store.Backend = "mem"
		cfg.Bus.Backend = "channel"
		cfg.Worker.Runtime = "exec"
		logger.Info().Msg("running in standalone mode")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	model.RegisterEntities()
	store, err := datastore.NewStore(ctx, cfg.Store.Backend, cfg.ProjectID, cfg.Store.Credentials, cfg.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up datastore")
	}

	bus, cleanupBus, err := newBus(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up task bus")
	}
	defer cleanupBus()

	runtime, err := newRuntime(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up worker runtime")
	}

	limiter, err := youtube.GetTokenBucketLimiter(ctx, store, cfg.Environment,
		cfg.YouTube.QuotaMaxTokens, cfg.YouTube.QuotaRefillRate, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up quota limiter")
	}

	apiKey, err := youtube.APIKey(ctx, cfg.YouTube.APIKeyParam)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not resolve API key")
	}
	videos, err := youtube.NewVideoClient(ctx, apiKey, limiter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up video client")
	}

	scanner := NewScanner(store, youtube.NewFeedClient(), videos, logger)
	monitor := NewMonitor(store, videos, bus, runtime, logger)
	dispatcher := NewDispatcher(store, bus, runtime, cfg.Environment, logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.ScannerSchedule, func() {
		err := scanner.Scan(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scan cycle failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("could not schedule scanner")
	}
	_, err = c.AddFunc(cfg.MonitorSchedule, func() {
		err := monitor.Tick(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("monitor cycle failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("could not schedule monitor")
	}
	c.Start()
	defer c.Stop()

	go func() {
		err := dispatcher.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("dispatcher stopped")
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "chatwatch %s\n", version)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", host, port), Handler: mux}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
}

// newLogger returns the service logger: console output in debug mode,
// JSON otherwise.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "chatwatch").Logger()
	if debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

// newBus constructs the configured task bus, returning a cleanup
// function that also stops the embedded broker when one was started.
func newBus(cfg *Config, logger zerolog.Logger) (taskbus.Bus, func(), error) {
	switch cfg.Bus.Backend {
	case "channel":
		bus := taskbus.NewChannelBus(logger)
		return bus, func() { bus.Close() }, nil
	case "nats":
		url := cfg.Bus.URL
		var embedded *taskbus.EmbeddedServer
		if cfg.Bus.Embedded {
			var err error
			embedded, err = taskbus.NewEmbeddedServer(taskbus.EmbeddedServerConfig{
				Host:     "127.0.0.1",
				Port:     -1,
				StoreDir: cfg.Bus.StoreDir,
			})
			if err != nil {
				return nil, nil, err
			}
			url = embedded.ClientURL()
			logger.Info().Str("url", url).Msg("embedded NATS server started")
		}
		bus, err := taskbus.NewNATSBus(taskbus.DefaultNATSConfig(url, cfg.Bus.Topic), logger)
		if err != nil {
			if embedded != nil {
				embedded.Shutdown()
			}
			return nil, nil, err
		}
		cleanup := func() {
			bus.Close()
			if embedded != nil {
				embedded.Shutdown()
			}
		}
		return bus, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown bus backend: %s", cfg.Bus.Backend)
	}
}

// newRuntime constructs the configured worker runtime.
func newRuntime(cfg *Config, logger zerolog.Logger) (worker.Runtime, error) {
	switch cfg.Worker.Runtime {
	case "exec":
		return worker.NewExecRuntime(cfg.Worker.Binary, cfg.Worker.MaxTasks, logger), nil
	case "mem":
		return worker.NewMemoryRuntime(cfg.Worker.MaxTasks), nil
	default:
		return nil, fmt.Errorf("unknown worker runtime: %s", cfg.Worker.Runtime)
	}
}
