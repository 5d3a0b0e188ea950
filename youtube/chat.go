/*
DESCRIPTION
  chat.go reads live chat messages from a broadcast via the Data API.

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

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrChatUnavailable is returned when a broadcast has no live chat to
// connect to, e.g., chat is disabled or the broadcast has not begun.
var ErrChatUnavailable = errors.New("live chat unavailable")

// ChatItem is one message read from a live chat.
type ChatItem struct {
	MessageID   string
	AuthorName  string
	AuthorID    string
	Text        string
	Datetime    string // Platform timestamp, kept verbatim.
	SuperChat   string // Formatted paid amount, empty for ordinary messages.
	IsOwner     bool
	IsModerator bool
	IsVerified  bool
}

// Source is a connected live chat. IsAlive reports whether the chat is
// still open; it turns false once the broadcast ends. Poll returns the
// messages published since the previous poll, possibly none. Terminate
// releases the source; no method may be called after it.
type Source interface {
	IsAlive() bool
	Poll(ctx context.Context) ([]ChatItem, error)
	Terminate()
}

// ChatClient connects Sources to broadcast live chats.
type ChatClient struct {
	service *yt.Service
	videos  *VideoClient
	limiter RateLimiter
	logger  zerolog.Logger
}

// NewChatClient returns a ChatClient authenticated with the given API
// key.
func NewChatClient(ctx context.Context, apiKey string, limiter RateLimiter, logger zerolog.Logger) (*ChatClient, error) {
	service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("cannot create YouTube service: %w", err)
	}
	videos, err := NewVideoClient(ctx, apiKey, limiter, logger)
	if err != nil {
		return nil, err
	}
	return &ChatClient{service: service, videos: videos, limiter: limiter, logger: logger}, nil
}

// Connect resolves the broadcast's active live chat and returns a
// Source reading from it. It returns ErrChatUnavailable when the
// broadcast has no open chat.
func (c *ChatClient) Connect(ctx context.Context, videoID string) (Source, error) {
	state, err := c.videos.State(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve live chat for %s: %w", videoID, err)
	}
	if state.ActiveLiveChatID == "" {
		return nil, ErrChatUnavailable
	}
	return &liveChatSource{
		client: c,
		chatID: state.ActiveLiveChatID,
		alive:  true,
	}, nil
}

// liveChatSource implements Source over liveChatMessages.list,
// following the page token chain the API returns. It is used from a
// single collector goroutine and is not safe for concurrent use.
type liveChatSource struct {
	client    *ChatClient
	chatID    string
	pageToken string
	alive     bool
}

// IsAlive reports whether the chat is still open.
func (s *liveChatSource) IsAlive() bool {
	return s.alive
}

// Poll returns the messages published since the previous poll. When
// the platform reports the chat ended, Poll returns the final batch
// (possibly empty) with no error and the source goes not-alive.
func (s *liveChatSource) Poll(ctx context.Context) ([]ChatItem, error) {
	if !s.alive {
		return nil, nil
	}
	if !s.client.limiter.RequestOK() {
		return nil, ErrQuotaExhausted
	}

	call := s.client.service.LiveChatMessages.List(s.chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if s.pageToken != "" {
		call = call.PageToken(s.pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		if chatEnded(err) {
			s.alive = false
			return nil, nil
		}
		return nil, fmt.Errorf("liveChatMessages.list failed: %w", err)
	}

	s.pageToken = resp.NextPageToken
	if resp.OfflineAt != "" {
		s.alive = false
	}

	var items []ChatItem
	for _, m := range resp.Items {
		item := ChatItem{MessageID: m.Id}
		if m.Snippet != nil {
			item.Text = m.Snippet.DisplayMessage
			item.Datetime = m.Snippet.PublishedAt
			if m.Snippet.SuperChatDetails != nil {
				item.SuperChat = m.Snippet.SuperChatDetails.AmountDisplayString
			}
		}
		if m.AuthorDetails != nil {
			item.AuthorName = m.AuthorDetails.DisplayName
			item.AuthorID = m.AuthorDetails.ChannelId
			item.IsOwner = m.AuthorDetails.IsChatOwner
			item.IsModerator = m.AuthorDetails.IsChatModerator
			item.IsVerified = m.AuthorDetails.IsVerified
		}
		items = append(items, item)
	}
	return items, nil
}

// Terminate releases the source.
func (s *liveChatSource) Terminate() {
	s.alive = false
}

// chatEnded reports whether an API error means the live chat has
// closed, as opposed to a transient failure.
func chatEnded(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "liveChatEnded", "liveChatDisabled", "liveChatNotFound":
			return true
		}
	}
	return false
}
