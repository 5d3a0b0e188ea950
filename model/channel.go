/*
DESCRIPTION
  channel.go defines the Channel entity and its datastore accessors.

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
	"time"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
)

const typeChannel = "Channel" // Channel datastore type.

// Channel is an entity representing a YouTube channel under watch.
// Channels are registered by an operator and never hard-deleted;
// deactivation clears IsActive, which removes the channel from the
// scanner's and monitor's consideration while preserving its data.
type Channel struct {
	ID              string    `json:"channel_id"`        // Platform-assigned channel ID, e.g., "UCabc...".
	Name            string    `json:"channel_name"`      // Display name.
	Description     string    `json:"description"`       // Channel description.
	IsActive        bool      `json:"is_active"`         // Only active channels are scanned and monitored.
	SubscriberCount uint64    `json:"subscriber_count"`  // Cached platform statistic.
	VideoCount      uint64    `json:"video_count"`       // Cached platform statistic.
	ViewCount       uint64    `json:"view_count"`        // Cached platform statistic.
	ThumbnailURL    string    `json:"thumbnail_url"`     // Channel thumbnail.
	APIRetrievedAt  time.Time `json:"api_retrieved_at"`  // When cached statistics were last refreshed.
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Copy copies a Channel to dst, or returns a copy of the Channel when
// dst is nil.
func (c *Channel) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var c2 *Channel
	if dst == nil {
		c2 = new(Channel)
	} else {
		var ok bool
		c2, ok = dst.(*Channel)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*c2 = *c
	return c2, nil
}

// GetCache returns nil, indicating no caching.
func (c *Channel) GetCache() datastore.Cache {
	return nil
}

// CreateChannel creates a channel, returning datastore.ErrEntityExists
// if a channel with this ID is already registered.
func CreateChannel(ctx context.Context, store datastore.Store, c *Channel) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	key := store.NameKey(typeChannel, c.ID)
	return store.Create(ctx, key, c)
}

// PutChannel creates or updates a channel.
func PutChannel(ctx context.Context, store datastore.Store, c *Channel) error {
	c.UpdatedAt = time.Now().UTC()
	key := store.NameKey(typeChannel, c.ID)
	_, err := store.Put(ctx, key, c)
	return err
}

// GetChannel returns the channel with the given ID, or
// datastore.ErrNoSuchEntity if it is not registered.
func GetChannel(ctx context.Context, store datastore.Store, id string) (*Channel, error) {
	key := store.NameKey(typeChannel, id)
	c := new(Channel)
	err := store.Get(ctx, key, c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AllChannels returns every registered channel.
func AllChannels(ctx context.Context, store datastore.Store) ([]Channel, error) {
	q := store.NewQuery(typeChannel, false)
	var channels []Channel
	_, err := store.GetAll(ctx, q, &channels)
	return channels, err
}

// ActiveChannels returns the channels with IsActive set. Only these
// are considered by the feed scanner and the state monitor.
func ActiveChannels(ctx context.Context, store datastore.Store) ([]Channel, error) {
	q := store.NewQuery(typeChannel, false)
	err := q.FilterField("IsActive", "=", true)
	if err != nil {
		return nil, err
	}
	var channels []Channel
	_, err = store.GetAll(ctx, q, &channels)
	return channels, err
}

// DeactivateChannel clears the channel's IsActive flag. The channel
// and its collected data are preserved.
func DeactivateChannel(ctx context.Context, store datastore.Store, id string) error {
	key := store.NameKey(typeChannel, id)
	return store.Update(ctx, key, func(e datastore.Entity) {
		c := e.(*Channel)
		c.IsActive = false
		c.UpdatedAt = time.Now().UTC()
	}, new(Channel))
}
