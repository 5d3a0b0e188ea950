/*
DESCRIPTION
  chatmessage.go defines the ChatMessage entity and its datastore
  accessors, including the batched write used by collector workers.

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

package model

import (
	"context"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
)

const typeChatMessage = "ChatMessage" // ChatMessage datastore type.

// ChatMessage is one chat message collected from a live broadcast.
// Messages are keyed by ChatMessageID(VideoID, MessageID), so a
// message redelivered by the platform, or re-collected after a worker
// restart, overwrites its earlier copy rather than duplicating it.
//
// Datetime is the platform's message timestamp, kept verbatim as the
// platform supplied it rather than parsed, so that collection never
// fails on a timestamp format change and the original value is
// preserved for consumers.
type ChatMessage struct {
	VideoID     string `json:"video_id"`
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id"` // Platform-assigned message ID.
	AuthorName  string `json:"author_name"`
	AuthorID    string `json:"author_id"`
	MessageText string `json:"message_text"`
	Datetime    string `json:"datetime"`
	SuperChat   string `json:"superchat,omitempty"` // Formatted paid amount, empty for ordinary messages.
	IsOwner     bool   `json:"is_owner,omitempty"`
	IsModerator bool   `json:"is_moderator,omitempty"`
	IsVerified  bool   `json:"is_verified,omitempty"`
}

// ChatMessageID returns the store key name for a message: the video ID
// and platform message ID joined by "#". Video IDs and platform
// message IDs do not contain "#", so the mapping is unambiguous.
func ChatMessageID(videoID, messageID string) string {
	return videoID + "#" + messageID
}

// Copy copies a ChatMessage to dst, or returns a copy of the
// ChatMessage when dst is nil.
func (m *ChatMessage) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var m2 *ChatMessage
	if dst == nil {
		m2 = new(ChatMessage)
	} else {
		var ok bool
		m2, ok = dst.(*ChatMessage)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*m2 = *m
	return m2, nil
}

// GetCache returns nil, indicating no caching.
func (m *ChatMessage) GetCache() datastore.Cache {
	return nil
}

// WriteChatMessages writes messages to the store in batches of at most
// datastore.MaxBatchPuts. The write is idempotent: rewriting a message
// that is already stored replaces it with identical content.
func WriteChatMessages(ctx context.Context, store datastore.Store, msgs []ChatMessage) error {
	for len(msgs) > 0 {
		n := len(msgs)
		if n > datastore.MaxBatchPuts {
			n = datastore.MaxBatchPuts
		}
		keys := make([]*datastore.Key, n)
		src := make([]datastore.Entity, n)
		for i := 0; i < n; i++ {
			m := msgs[i]
			keys[i] = store.NameKey(typeChatMessage, ChatMessageID(m.VideoID, m.MessageID))
			src[i] = &m
		}
		err := store.PutMulti(ctx, keys, src)
		if err != nil {
			return err
		}
		msgs = msgs[n:]
	}
	return nil
}

// MessagesByVideo returns up to limit messages of one broadcast,
// ordered by platform timestamp. A limit of zero or less returns all
// messages.
func MessagesByVideo(ctx context.Context, store datastore.Store, videoID string, limit int) ([]ChatMessage, error) {
	q := store.NewQuery(typeChatMessage, false)
	err := q.FilterField("VideoID", "=", videoID)
	if err != nil {
		return nil, err
	}
	q.Order("Datetime")
	if limit > 0 {
		q.Limit(limit)
	}
	var msgs []ChatMessage
	_, err = store.GetAll(ctx, q, &msgs)
	return msgs, err
}

// RecentMessagesByVideo returns up to limit messages of one broadcast,
// most recent first.
func RecentMessagesByVideo(ctx context.Context, store datastore.Store, videoID string, limit int) ([]ChatMessage, error) {
	q := store.NewQuery(typeChatMessage, false)
	err := q.FilterField("VideoID", "=", videoID)
	if err != nil {
		return nil, err
	}
	q.Order("-Datetime")
	if limit > 0 {
		q.Limit(limit)
	}
	var msgs []ChatMessage
	_, err = store.GetAll(ctx, q, &msgs)
	return msgs, err
}

// CountMessagesByVideo returns the number of stored messages for one
// broadcast, using a keys-only query.
func CountMessagesByVideo(ctx context.Context, store datastore.Store, videoID string) (int, error) {
	q := store.NewQuery(typeChatMessage, true)
	err := q.FilterField("VideoID", "=", videoID)
	if err != nil {
		return 0, err
	}
	keys, err := store.GetAll(ctx, q, nil)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
