/*
DESCRIPTION
  scanner.go implements the feed scanner, discovering new broadcasts
  from channel video feeds.

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

package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

// detectionWindow is how far back a feed entry may have been published
// and still be considered new. Entries published exactly at the cutoff
// are rejected.
const detectionWindow = 24 * time.Hour

// scanConcurrency bounds the number of channels scanned in parallel.
const scanConcurrency = 4

// feedFetcher fetches a channel's recent video feed entries.
type feedFetcher interface {
	Fetch(ctx context.Context, channelID string) ([]youtube.FeedEntry, error)
}

// videoStater queries the platform state of videos.
type videoStater interface {
	States(ctx context.Context, videoIDs []string) (map[string]youtube.VideoState, error)
}

// Scanner discovers new broadcasts by scanning the video feeds of
// active channels. It only ever inserts; status transitions and task
// commands belong to the monitor.
type Scanner struct {
	store  datastore.Store
	feeds  feedFetcher
	videos videoStater
	logger zerolog.Logger
	now    func() time.Time
}

// NewScanner returns a Scanner over the given store and clients.
func NewScanner(store datastore.Store, feeds feedFetcher, videos videoStater, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:  store,
		feeds:  feeds,
		videos: videos,
		logger: logger,
		now:    time.Now,
	}
}

// Scan runs one scan cycle over all active channels. Per-channel
// failures are logged and skipped; they never abort the cycle.
func (s *Scanner) Scan(ctx context.Context) error {
	channels, err := model.ActiveChannels(ctx, s.store)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, c := range channels {
		g.Go(func() error {
			err := s.scanChannel(ctx, c.ID)
			if err != nil {
				scanErrors.Inc()
				s.logger.Error().Err(err).Str("channel", c.ID).Msg("channel scan failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// scanChannel scans one channel's feed and records its new broadcasts.
func (s *Scanner) scanChannel(ctx context.Context, channelID string) error {
	entries, err := s.feeds.Fetch(ctx, channelID)
	if err != nil {
		return err
	}

	cutoff := s.now().Add(-detectionWindow)
	var candidates []youtube.FeedEntry
	for _, e := range entries {
		if !e.Published.After(cutoff) {
			continue
		}
		_, err := model.GetBroadcast(ctx, s.store, e.VideoID)
		if err == nil {
			continue // Already recorded.
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	for i, e := range candidates {
		ids[i] = e.VideoID
	}
	states, err := s.videos.States(ctx, ids)
	if errors.Is(err, youtube.ErrQuotaExhausted) {
		// Skip verification this cycle; the entries stay within the
		// window and are retried on a later tick.
		s.logger.Warn().Str("channel", channelID).Msg("quota exhausted, deferring feed verification")
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range candidates {
		state, ok := states[e.VideoID]
		if !ok || !state.IsLiveBroadcast() {
			continue // An ordinary upload, or gone.
		}
		b := &model.Broadcast{
			VideoID:     e.VideoID,
			ChannelID:   channelID,
			Title:       e.Title,
			PublishedAt: e.Published,
			Status:      model.StatusDetected,
		}
		err = model.CreateBroadcast(ctx, s.store, b)
		switch {
		case errors.Is(err, datastore.ErrEntityExists):
			// Raced with another discovery of the same video.
		case err != nil:
			return err
		default:
			broadcastsDetected.Inc()
			s.logger.Info().Str("video", e.VideoID).Str("channel", channelID).Str("title", e.Title).Msg("broadcast detected")
		}
	}
	return nil
}
