/*
DESCRIPTION
  video.go queries the Data API for video state, classifying each
  video into a broadcast lifecycle status.

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

// maxVideosPerList is the Data API limit on IDs per videos.list call.
const maxVideosPerList = 50

// ErrQuotaExhausted is returned when the quota limiter denies an API
// call. The caller skips the cycle and retries on the next one.
var ErrQuotaExhausted = errors.New("API quota exhausted")

// ErrVideoNotFound is returned when the platform no longer lists a
// video, e.g., it was deleted or made private.
var ErrVideoNotFound = errors.New("video not found")

// VideoState is the platform state of one video, as needed to drive
// the broadcast lifecycle.
type VideoState struct {
	VideoID            string
	Title              string
	Description        string
	ChannelID          string
	Status             string // One of live, upcoming, ended, not_live, unknown.
	PrivacyStatus      string // Platform privacy status: public, unlisted or private.
	ConcurrentViewers  uint64
	ScheduledStartTime time.Time
	ActualStartTime    time.Time
	ActualEndTime      time.Time
	ActiveLiveChatID   string
	HasLiveDetails     bool
}

// Video lifecycle statuses as classified from the platform response.
// These mirror the broadcast statuses of the model package; the
// monitor maps them one to one.
const (
	VideoLive     = "live"
	VideoUpcoming = "upcoming"
	VideoEnded    = "ended"
	VideoNotLive  = "not_live"
	VideoUnknown  = "unknown"
)

// VideoClient queries video state from the Data API. API calls are
// gated by a quota limiter and protected by a circuit breaker, so a
// platform outage trips fast instead of burning quota on failures.
type VideoClient struct {
	service *yt.Service
	limiter RateLimiter
	breaker *gobreaker.CircuitBreaker[*yt.VideoListResponse]
	logger  zerolog.Logger
}

// NewVideoClient returns a VideoClient authenticated with the given
// API key.
func NewVideoClient(ctx context.Context, apiKey string, limiter RateLimiter, logger zerolog.Logger) (*VideoClient, error) {
	service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("cannot create YouTube service: %w", err)
	}
	return &VideoClient{
		service: service,
		limiter: limiter,
		breaker: newAPIBreaker[*yt.VideoListResponse]("videos.list", logger),
		logger:  logger,
	}, nil
}

// newAPIBreaker returns a circuit breaker for one Data API method,
// opening after five consecutive failures and probing again after a
// minute.
func newAPIBreaker[T any](name string, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:    name,
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}

// States returns the platform state of the given videos, keyed by
// video ID. Videos absent from the response (deleted or private) are
// absent from the result. IDs are batched at the API limit per call.
func (c *VideoClient) States(ctx context.Context, videoIDs []string) (map[string]VideoState, error) {
	states := make(map[string]VideoState)
	for len(videoIDs) > 0 {
		n := len(videoIDs)
		if n > maxVideosPerList {
			n = maxVideosPerList
		}
		err := c.listInto(ctx, videoIDs[:n], states)
		if err != nil {
			return nil, err
		}
		videoIDs = videoIDs[n:]
	}
	return states, nil
}

// State returns the platform state of a single video, or
// ErrVideoNotFound if the platform no longer lists it.
func (c *VideoClient) State(ctx context.Context, videoID string) (*VideoState, error) {
	states, err := c.States(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	s, ok := states[videoID]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return &s, nil
}

func (c *VideoClient) listInto(ctx context.Context, ids []string, states map[string]VideoState) error {
	if !c.limiter.RequestOK() {
		return ErrQuotaExhausted
	}
	resp, err := c.breaker.Execute(func() (*yt.VideoListResponse, error) {
		return c.service.Videos.List([]string{"snippet", "liveStreamingDetails", "status"}).Id(ids...).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("videos.list failed: %w", err)
	}
	for _, item := range resp.Items {
		states[item.Id] = classify(item)
	}
	return nil
}

// classify maps one video resource into a VideoState.
func classify(item *yt.Video) VideoState {
	s := VideoState{VideoID: item.Id}
	if item.Snippet != nil {
		s.Title = item.Snippet.Title
		s.Description = item.Snippet.Description
		s.ChannelID = item.Snippet.ChannelId
	}
	if item.Status != nil {
		s.PrivacyStatus = item.Status.PrivacyStatus
	}

	var details *yt.VideoLiveStreamingDetails
	if item.LiveStreamingDetails != nil {
		details = item.LiveStreamingDetails
		s.HasLiveDetails = true
		s.ConcurrentViewers = details.ConcurrentViewers
		s.ScheduledStartTime = parseTime(details.ScheduledStartTime)
		s.ActualStartTime = parseTime(details.ActualStartTime)
		s.ActualEndTime = parseTime(details.ActualEndTime)
		s.ActiveLiveChatID = details.ActiveLiveChatId
	}

	content := ""
	if item.Snippet != nil {
		content = item.Snippet.LiveBroadcastContent
	}
	switch content {
	case "live":
		s.Status = VideoLive
	case "upcoming":
		s.Status = VideoUpcoming
	case "none":
		// A finished broadcast reports none with an actual end time;
		// an ordinary upload reports none with no live details at all.
		if details != nil && details.ActualEndTime != "" {
			s.Status = VideoEnded
		} else {
			s.Status = VideoNotLive
		}
	default:
		s.Status = VideoUnknown
	}
	return s
}

// parseTime parses an RFC 3339 platform timestamp, returning the zero
// time for empty or malformed values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsLiveBroadcast reports whether the state describes a video that
// is, will be, or was a live broadcast: the platform lists it as live
// or upcoming, or it carries live streaming details.
func (s *VideoState) IsLiveBroadcast() bool {
	return s.Status == VideoLive || s.Status == VideoUpcoming || s.HasLiveDetails
}
