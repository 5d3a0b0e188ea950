/*
DESCRIPTION
  feed.go fetches and parses a channel's video feed, the quota-free
  source of newly published videos.

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

// Package youtube provides the YouTube platform clients of the live
// chat collection system: the quota-free channel video feed, the Data
// API clients for videos, channels and live chat, a persisted quota
// limiter and API key resolution.
package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FeedWindow is the number of most recent feed entries a scan
// considers. The feed lists videos newest first; entries beyond this
// window are old enough that the cutoff would reject them anyway.
const FeedWindow = 5

// feedURL is the quota-free per-channel video feed.
const feedURL = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// FeedEntry is one video entry of a channel feed.
type FeedEntry struct {
	VideoID   string
	ChannelID string
	Title     string
	Published time.Time
}

// feedDoc mirrors the Atom feed document.
type feedDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []feedEntry `xml:"entry"`
}

type feedEntry struct {
	VideoID   string `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
}

// FeedClient fetches channel video feeds.
type FeedClient struct {
	client *http.Client
}

// NewFeedClient returns a FeedClient with a 10 second request timeout.
func NewFeedClient() *FeedClient {
	return &FeedClient{client: &http.Client{Timeout: 10 * time.Second}}
}

// Fetch returns up to FeedWindow of the channel's most recent video
// entries, newest first. A feed fetch or parse failure affects only
// the channel it belongs to; callers continue with other channels.
func (c *FeedClient) Fetch(ctx context.Context, channelID string) ([]FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(feedURL, channelID), nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create feed request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch feed for %s: %w", channelID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch for %s returned status %d", channelID, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read feed for %s: %w", channelID, err)
	}
	return parseFeed(body, channelID)
}

// parseFeed decodes an Atom feed document and returns its first
// FeedWindow entries.
func parseFeed(data []byte, channelID string) ([]FeedEntry, error) {
	var doc feedDoc
	err := xml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("cannot parse feed for %s: %w", channelID, err)
	}

	entries := doc.Entries
	if len(entries) > FeedWindow {
		entries = entries[:FeedWindow]
	}

	var result []FeedEntry
	for _, e := range entries {
		if e.VideoID == "" {
			continue
		}
		published, err := time.Parse(time.RFC3339, e.Published)
		if err != nil {
			// An unparseable timestamp skips the entry, not the feed.
			continue
		}
		cid := e.ChannelID
		if cid == "" {
			cid = channelID
		}
		result = append(result, FeedEntry{
			VideoID:   e.VideoID,
			ChannelID: cid,
			Title:     e.Title,
			Published: published,
		})
	}
	return result, nil
}
