/*
DESCRIPTION
  Chat API is the REST facade over the collected data: channel
  registration, broadcast listing, message retrieval and worker task
  visibility.

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

// Chat API serves the collected live chat data over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

func main() {
	defaultPort := 8080
	v := os.Getenv("PORT")
	if v != "" {
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
	flag.BoolVar(&standalone, "standalone", false, "Run with an in-memory store.")
	flag.StringVar(&host, "host", "", "Host we listen on")
	flag.IntVar(&port, "port", defaultPort, "Port we listen on")
	flag.Parse()

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "chatapi").Logger()
	if debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}

	ctx := context.Background()
	model.RegisterEntities()

	var store datastore.Store
	if standalone {
		logger.Info().Msg("running in standalone mode")
		store = datastore.NewMemStore(cfg.Environment)
	} else {
		store, err = datastore.NewStore(ctx, cfg.Store.Backend, cfg.ProjectID, cfg.Store.Credentials, cfg.Environment)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not set up datastore")
		}
	}

	svc := &service{store: store, logger: logger}

	// Channel metadata hydration is optional: without an API key,
	// registration still works but carries no platform statistics.
	apiKey, err := youtube.APIKey(ctx, cfg.YouTube.APIKeyParam)
	if err != nil {
		logger.Warn().Err(err).Msg("no API key, channel statistics disabled")
	} else {
		channels, err := youtube.NewChannelClient(ctx, apiKey, youtube.UnlimitedLimiter{}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not set up channel client")
		}
		svc.channels = channels
	}

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: "*"}))
	app.Use(func(c *fiber.Ctx) error {
		logger.Debug().Str("method", c.Method()).Str("path", c.Path()).Msg("request")
		return c.Next()
	})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	svc.registerRoutes(app)

	listenOn := fmt.Sprintf("%s:%d", host, port)
	logger.Info().Str("addr", listenOn).Msg("starting web server")
	err = app.Listen(listenOn)
	if err != nil {
		logger.Fatal().Err(err).Msg("web server failed")
	}
}
