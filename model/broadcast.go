/*
DESCRIPTION
  broadcast.go defines broadcast states, the Broadcast entity and its
  datastore accessors.

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

const typeBroadcast = "Broadcast" // Broadcast datastore type.

// BroadcastStatus is the observed lifecycle state of a broadcast.
type BroadcastStatus string

// Broadcast lifecycle states. A broadcast is recorded as
// StatusDetected when its video first appears in a channel feed, then
// follows the platform through upcoming and live to ended. StatusEnded
// is terminal. StatusNotLive marks ordinary uploads that were never
// broadcasts; StatusUnknown marks videos the platform reports in a
// state we cannot classify, which the monitor keeps probing.
const (
	StatusDetected BroadcastStatus = "detected"
	StatusUpcoming BroadcastStatus = "upcoming"
	StatusLive     BroadcastStatus = "live"
	StatusEnded    BroadcastStatus = "ended"
	StatusNotLive  BroadcastStatus = "not_live"
	StatusUnknown  BroadcastStatus = "unknown"
)

// CanTransition reports whether a broadcast may move from one status
// to another. Self-transitions are permitted so that repeated
// observations of an unchanged platform state remain idempotent
// writes. Nothing transitions out of ended.
func CanTransition(from, to BroadcastStatus) bool {
	if from == to {
		return from != StatusEnded
	}
	switch from {
	case StatusDetected:
		return to == StatusUpcoming || to == StatusLive || to == StatusEnded ||
			to == StatusNotLive || to == StatusUnknown
	case StatusUpcoming:
		return to == StatusLive || to == StatusEnded || to == StatusNotLive
	case StatusLive:
		return to == StatusEnded
	case StatusUnknown:
		return to == StatusUpcoming || to == StatusLive || to == StatusEnded ||
			to == StatusNotLive
	default:
		return false
	}
}

// Broadcast is an entity representing a video discovered on a watched
// channel, keyed by its platform video ID. The state monitor refreshes
// Status and the platform timing fields on every cycle.
type Broadcast struct {
	VideoID            string          `json:"video_id"`
	ChannelID          string          `json:"channel_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Status             BroadcastStatus `json:"status"`
	PrivacyStatus      string          `json:"privacy_status,omitempty"`
	ConcurrentViewers  uint64          `json:"concurrent_viewers,omitempty"`
	ScheduledStartTime time.Time       `json:"scheduled_start_time,omitempty"`
	ActualStartTime    time.Time       `json:"actual_start_time,omitempty"`
	ActualEndTime      time.Time       `json:"actual_end_time,omitempty"`
	PublishedAt        time.Time       `json:"published_at"`
	DetectedAt         time.Time       `json:"detected_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Copy copies a Broadcast to dst, or returns a copy of the Broadcast
// when dst is nil.
func (b *Broadcast) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var b2 *Broadcast
	if dst == nil {
		b2 = new(Broadcast)
	} else {
		var ok bool
		b2, ok = dst.(*Broadcast)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*b2 = *b
	return b2, nil
}

// GetCache returns nil, indicating no caching.
func (b *Broadcast) GetCache() datastore.Cache {
	return nil
}

// CreateBroadcast records a newly discovered broadcast, returning
// datastore.ErrEntityExists if the video is already recorded. Callers
// treat that as benign: rediscovery of a known video is expected on
// every scan.
func CreateBroadcast(ctx context.Context, store datastore.Store, b *Broadcast) error {
	now := time.Now().UTC()
	if b.DetectedAt.IsZero() {
		b.DetectedAt = now
	}
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = StatusDetected
	}
	key := store.NameKey(typeBroadcast, b.VideoID)
	return store.Create(ctx, key, b)
}

// GetBroadcast returns the broadcast with the given video ID.
func GetBroadcast(ctx context.Context, store datastore.Store, videoID string) (*Broadcast, error) {
	key := store.NameKey(typeBroadcast, videoID)
	b := new(Broadcast)
	err := store.Get(ctx, key, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBroadcast transactionally applies fn to the broadcast with the
// given video ID and returns the updated entity.
func UpdateBroadcast(ctx context.Context, store datastore.Store, videoID string, fn func(*Broadcast)) (*Broadcast, error) {
	key := store.NameKey(typeBroadcast, videoID)
	b := new(Broadcast)
	err := store.Update(ctx, key, func(e datastore.Entity) {
		fn(e.(*Broadcast))
		e.(*Broadcast).UpdatedAt = time.Now().UTC()
	}, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// BroadcastsByStatus returns all broadcasts in the given status.
func BroadcastsByStatus(ctx context.Context, store datastore.Store, status BroadcastStatus) ([]Broadcast, error) {
	q := store.NewQuery(typeBroadcast, false)
	err := q.FilterField("Status", "=", string(status))
	if err != nil {
		return nil, err
	}
	var broadcasts []Broadcast
	_, err = store.GetAll(ctx, q, &broadcasts)
	return broadcasts, err
}

// BroadcastsByChannel returns the broadcasts of one channel, most
// recently published first.
func BroadcastsByChannel(ctx context.Context, store datastore.Store, channelID string) ([]Broadcast, error) {
	q := store.NewQuery(typeBroadcast, false)
	err := q.FilterField("ChannelID", "=", channelID)
	if err != nil {
		return nil, err
	}
	q.Order("-PublishedAt")
	var broadcasts []Broadcast
	_, err = store.GetAll(ctx, q, &broadcasts)
	return broadcasts, err
}

// AllBroadcasts returns every recorded broadcast, most recently
// published first.
func AllBroadcasts(ctx context.Context, store datastore.Store) ([]Broadcast, error) {
	q := store.NewQuery(typeBroadcast, false)
	q.Order("-PublishedAt")
	var broadcasts []Broadcast
	_, err := store.GetAll(ctx, q, &broadcasts)
	return broadcasts, err
}
