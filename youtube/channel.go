/*
DESCRIPTION
  channel.go queries the Data API for channel metadata, used to
  hydrate a channel record at registration.

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

package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrChannelNotFound is returned when the platform does not list the
// requested channel.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelInfo is the platform metadata of one channel.
type ChannelInfo struct {
	ID              string
	Name            string
	Description     string
	SubscriberCount uint64
	VideoCount      uint64
	ViewCount       uint64
	ThumbnailURL    string
	RetrievedAt     time.Time
}

// ChannelClient queries channel metadata from the Data API.
type ChannelClient struct {
	service *yt.Service
	limiter RateLimiter
	breaker *gobreaker.CircuitBreaker[*yt.ChannelListResponse]
}

// NewChannelClient returns a ChannelClient authenticated with the
// given API key.
func NewChannelClient(ctx context.Context, apiKey string, limiter RateLimiter, logger zerolog.Logger) (*ChannelClient, error) {
	service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("cannot create YouTube service: %w", err)
	}
	return &ChannelClient{
		service: service,
		limiter: limiter,
		breaker: newAPIBreaker[*yt.ChannelListResponse]("channels.list", logger),
	}, nil
}

// Info returns the platform metadata of the given channel.
func (c *ChannelClient) Info(ctx context.Context, channelID string) (*ChannelInfo, error) {
	if !c.limiter.RequestOK() {
		return nil, ErrQuotaExhausted
	}
	resp, err := c.breaker.Execute(func() (*yt.ChannelListResponse, error) {
		return c.service.Channels.List([]string{"snippet", "statistics"}).Id(channelID).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("channels.list failed: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrChannelNotFound
	}

	item := resp.Items[0]
	info := &ChannelInfo{ID: item.Id, RetrievedAt: time.Now().UTC()}
	if item.Snippet != nil {
		info.Name = item.Snippet.Title
		info.Description = item.Snippet.Description
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
			info.ThumbnailURL = item.Snippet.Thumbnails.Default.Url
		}
	}
	if item.Statistics != nil {
		info.SubscriberCount = item.Statistics.SubscriberCount
		info.VideoCount = item.Statistics.VideoCount
		info.ViewCount = item.Statistics.ViewCount
	}
	return info, nil
}
