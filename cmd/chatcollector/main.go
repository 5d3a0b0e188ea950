/*
DESCRIPTION
  Chat Collector is the per-broadcast worker process: it connects to
  one broadcast's live chat and persists its messages until the
  broadcast ends.

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

// Chat Collector collects the live chat of the broadcast named by the
// VIDEO_ID environment variable. It exits zero when the broadcast
// ends and non-zero on a fatal collection failure.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

func main() {
	var debug bool
	flag.BoolVar(&debug, "debug", false, "Run in debug mode.")
	flag.Parse()

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "chatcollector").Logger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}
	logger = logger.With().Str("video", cfg.VideoID).Logger()

	// SIGINT/SIGTERM from the runtime flushes and exits cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	model.RegisterEntities()
	store, err := datastore.NewStore(ctx, cfg.Store.Backend, cfg.ProjectID, cfg.Store.Credentials, cfg.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up datastore")
	}

	apiKey, err := youtube.APIKey(ctx, cfg.YouTube.APIKeyParam)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not resolve API key")
	}
	chat, err := youtube.NewChatClient(ctx, apiKey, youtube.UnlimitedLimiter{}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up chat client")
	}

	collector := NewCollector(store, chat, cfg.VideoID, cfg.ChannelID, logger)
	err = collector.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("collection failed")
		os.Exit(1)
	}
}
