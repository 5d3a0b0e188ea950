/*
DESCRIPTION
  youtube package tests.

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
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yt "google.golang.org/api/youtube/v3"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
)

const feedXMLHeader = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <yt:channelId>UCtest</yt:channelId>
  <title>Test Channel</title>`

func feedXML(n int) string {
	s := feedXMLHeader
	for i := 0; i < n; i++ {
		s += fmt.Sprintf(`
  <entry>
    <yt:videoId>vid%03d</yt:videoId>
    <yt:channelId>UCtest</yt:channelId>
    <title>Stream %d</title>
    <published>2025-06-01T12:%02d:00+00:00</published>
  </entry>`, i, i, i%60)
	}
	return s + "\n</feed>"
}

func TestParseFeed(t *testing.T) {
	entries, err := parseFeed([]byte(feedXML(3)), "UCtest")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "vid000", entries[0].VideoID)
	assert.Equal(t, "UCtest", entries[0].ChannelID)
	assert.Equal(t, "Stream 0", entries[0].Title)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), entries[0].Published.UTC())
}

func TestParseFeedWindow(t *testing.T) {
	// Only the first FeedWindow entries of a long feed are returned.
	entries, err := parseFeed([]byte(feedXML(15)), "UCtest")
	require.NoError(t, err)
	assert.Len(t, entries, FeedWindow)
	assert.Equal(t, "vid000", entries[0].VideoID)
	assert.Equal(t, "vid004", entries[4].VideoID)
}

func TestParseFeedEmpty(t *testing.T) {
	entries, err := parseFeed([]byte(feedXMLHeader+"\n</feed>"), "UCtest")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFeedMalformed(t *testing.T) {
	_, err := parseFeed([]byte("not xml at all <"), "UCtest")
	assert.Error(t, err)
}

func TestFeedClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML(2))
	}))
	defer srv.Close()

	c := NewFeedClient()
	// Point the request at the test server by fetching directly.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		item *yt.Video
		want string
	}{
		{
			"live",
			&yt.Video{Id: "v1", Snippet: &yt.VideoSnippet{LiveBroadcastContent: "live"},
				LiveStreamingDetails: &yt.VideoLiveStreamingDetails{ActualStartTime: "2025-06-01T12:00:00Z", ActiveLiveChatId: "chat1"}},
			VideoLive,
		},
		{
			"upcoming",
			&yt.Video{Id: "v2", Snippet: &yt.VideoSnippet{LiveBroadcastContent: "upcoming"},
				LiveStreamingDetails: &yt.VideoLiveStreamingDetails{ScheduledStartTime: "2025-06-02T12:00:00Z"}},
			VideoUpcoming,
		},
		{
			"ended broadcast",
			&yt.Video{Id: "v3", Snippet: &yt.VideoSnippet{LiveBroadcastContent: "none"},
				LiveStreamingDetails: &yt.VideoLiveStreamingDetails{ActualStartTime: "2025-06-01T12:00:00Z", ActualEndTime: "2025-06-01T14:00:00Z"}},
			VideoEnded,
		},
		{
			"ordinary upload",
			&yt.Video{Id: "v4", Snippet: &yt.VideoSnippet{LiveBroadcastContent: "none"}},
			VideoNotLive,
		},
		{
			"unclassifiable",
			&yt.Video{Id: "v5", Snippet: &yt.VideoSnippet{LiveBroadcastContent: "something_new"}},
			VideoUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := classify(tt.item)
			assert.Equal(t, tt.want, s.Status)
		})
	}
}

func TestClassifyDetails(t *testing.T) {
	s := classify(&yt.Video{
		Id: "v1",
		Snippet: &yt.VideoSnippet{
			Title:                "Test Stream",
			ChannelId:            "UCtest",
			LiveBroadcastContent: "live",
		},
		LiveStreamingDetails: &yt.VideoLiveStreamingDetails{
			ActualStartTime:  "2025-06-01T12:00:00Z",
			ActiveLiveChatId: "chat1",
		},
		Status: &yt.VideoStatus{PrivacyStatus: "unlisted"},
	})
	assert.Equal(t, "Test Stream", s.Title)
	assert.Equal(t, "UCtest", s.ChannelID)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), s.ActualStartTime)
	assert.Equal(t, "chat1", s.ActiveLiveChatID)
	assert.Equal(t, "unlisted", s.PrivacyStatus)
	assert.True(t, s.IsLiveBroadcast())
}

func TestTokenBucketLimiter(t *testing.T) {
	ctx := context.Background()
	model.RegisterEntities()
	store := datastore.NewMemStore("test")

	l, err := GetTokenBucketLimiter(ctx, store, "testkey", 3, 0, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, l.RequestOK())
	assert.True(t, l.RequestOK())
	assert.True(t, l.RequestOK())
	// Bucket empty, no refill.
	assert.False(t, l.RequestOK())

	// State survives reload.
	l2, err := GetTokenBucketLimiter(ctx, store, "testkey", 3, 0, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, l2.RequestOK())
}

func TestTokenBucketLimiterRefill(t *testing.T) {
	ctx := context.Background()
	model.RegisterEntities()
	store := datastore.NewMemStore("test")

	l, err := GetTokenBucketLimiter(ctx, store, "refill", 10, 3600, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.True(t, l.RequestOK())
	}

	// At 3600 tokens per hour, one token refills per second.
	l.LastRefillTime = time.Now().Add(-2 * time.Second)
	assert.True(t, l.RequestOK())
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "env-key")
	key, err := APIKey(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestAPIKeyFromFile(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "")
	path := filepath.Join(t.TempDir(), "apikey")
	require.NoError(t, os.WriteFile(path, []byte("file-key\n"), 0600))
	key, err := APIKey(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)
}

func TestAPIKeyUnconfigured(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "")
	_, err := APIKey(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
