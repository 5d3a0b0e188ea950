/*
DESCRIPTION
  collector.go implements the chat collection loop of one broadcast:
  connect, poll, buffer, flush, heartbeat, finalize.

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
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

// Collection parameters.
const (
	connectAttempts   = 3                // Connection attempts before giving up.
	connectBackoff    = 5 * time.Second  // Delay between connection attempts.
	flushThreshold    = 25               // Buffered messages that trigger a flush.
	heartbeatInterval = 30 * time.Second // WorkerTask heartbeat period.
	pollSleepMin      = time.Second      // Lower bound of the inter-poll sleep.
	pollSleepMax      = 2 * time.Second  // Upper bound (exclusive) of the inter-poll sleep.
)

// connector connects a chat source to a broadcast.
type connector interface {
	Connect(ctx context.Context, videoID string) (youtube.Source, error)
}

// Collector collects the live chat of one broadcast into the store.
type Collector struct {
	store     datastore.Store
	chat      connector
	videoID   string
	channelID string
	logger    zerolog.Logger

	// Overridable for tests.
	backoff   time.Duration
	heartbeat time.Duration
	sleep     func()

	buffer []model.ChatMessage
	count  int64
}

// NewCollector returns a Collector for the given broadcast.
func NewCollector(store datastore.Store, chat connector, videoID, channelID string, logger zerolog.Logger) *Collector {
	return &Collector{
		store:     store,
		chat:      chat,
		videoID:   videoID,
		channelID: channelID,
		logger:    logger,
		backoff:   connectBackoff,
		heartbeat: heartbeatInterval,
		sleep: func() {
			time.Sleep(pollSleepMin + time.Duration(rand.Int63n(int64(pollSleepMax-pollSleepMin))))
		},
	}
}

// Run collects until the chat closes or ctx is canceled. A nil return
// means the broadcast ended and the task was finalized; the caller
// exits zero. An error return means the collection failed after the
// task was marked failed; the caller exits non-zero.
//
// Cancellation (the runtime stopping this worker) flushes the buffer
// and leaves the task status to the dispatcher, which owns the
// stopped mark.
func (c *Collector) Run(ctx context.Context) error {
	source, err := c.connect(ctx)
	if err != nil {
		c.markFailed(ctx, err)
		return err
	}
	defer source.Terminate()

	err = c.markCollecting(ctx)
	if err != nil {
		c.markFailed(ctx, err)
		return err
	}

	lastHeartbeat := time.Now()
	for source.IsAlive() {
		select {
		case <-ctx.Done():
			err := c.flush(ctx)
			if err != nil {
				c.logger.Error().Err(err).Msg("final flush failed")
			}
			return nil
		default:
		}

		items, err := source.Poll(ctx)
		if err != nil {
			// A poll failure is retried on the next tick.
			c.logger.Warn().Err(err).Msg("poll failed")
		}
		for _, item := range items {
			c.buffer = append(c.buffer, model.ChatMessage{
				VideoID:     c.videoID,
				ChannelID:   c.channelID,
				MessageID:   item.MessageID,
				AuthorName:  item.AuthorName,
				AuthorID:    item.AuthorID,
				MessageText: item.Text,
				Datetime:    item.Datetime,
				SuperChat:   item.SuperChat,
				IsOwner:     item.IsOwner,
				IsModerator: item.IsModerator,
				IsVerified:  item.IsVerified,
			})
			if len(c.buffer) >= flushThreshold {
				err := c.flush(ctx)
				if err != nil {
					c.markFailed(ctx, err)
					return err
				}
			}
		}

		if time.Since(lastHeartbeat) >= c.heartbeat {
			c.heartbeatTask(ctx)
			lastHeartbeat = time.Now()
		}

		if source.IsAlive() {
			c.sleep()
		}
	}

	// Stream closed: flush the remainder and finalize.
	err = c.flush(ctx)
	if err != nil {
		c.markFailed(ctx, err)
		return err
	}
	_, err = model.MarkWorkerTask(ctx, c.store, c.videoID, model.TaskCompleted, func(t *model.WorkerTask) {
		t.MessageCount = c.count
		t.StopReason = "broadcast ended"
	})
	if err != nil {
		return fmt.Errorf("cannot finalize task: %w", err)
	}
	c.logger.Info().Int64("messages", c.count).Msg("collection completed")
	return nil
}

// connect makes up to connectAttempts attempts to connect to the
// broadcast's chat, with a fixed backoff between attempts.
func (c *Collector) connect(ctx context.Context) (youtube.Source, error) {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		var source youtube.Source
		source, err = c.chat.Connect(ctx, c.videoID)
		if err == nil {
			return source, nil
		}
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("chat connect failed")
		if attempt < connectAttempts {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("cannot connect to chat after %d attempts: %w", connectAttempts, err)
}

// markCollecting records that collection has begun, creating the task
// row when this worker was launched outside the dispatcher.
func (c *Collector) markCollecting(ctx context.Context) error {
	_, err := model.MarkWorkerTask(ctx, c.store, c.videoID, model.TaskCollecting, func(t *model.WorkerTask) {
		t.MessageCount = 0
	})
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		now := time.Now().UTC()
		return model.PutWorkerTask(ctx, c.store, &model.WorkerTask{
			VideoID:         c.videoID,
			ChannelID:       c.channelID,
			Status:          model.TaskCollecting,
			StartedAt:       now,
			CollectingSince: now,
		})
	}
	return err
}

// flush writes the buffered messages, retrying the batch once. A batch
// that fails twice is surfaced as an error; continuing past it would
// silently lose messages. The buffer is kept on failure.
func (c *Collector) flush(ctx context.Context) error {
	if len(c.buffer) == 0 {
		return nil
	}
	err := model.WriteChatMessages(ctx, c.store, c.buffer)
	if err != nil {
		c.logger.Warn().Err(err).Msg("flush failed, retrying")
		err = model.WriteChatMessages(ctx, c.store, c.buffer)
	}
	if err != nil {
		return fmt.Errorf("cannot write %d messages: %w", len(c.buffer), err)
	}
	c.count += int64(len(c.buffer))
	c.buffer = c.buffer[:0]
	return nil
}

// heartbeatTask refreshes the task's liveness and message count.
func (c *Collector) heartbeatTask(ctx context.Context) {
	_, err := model.UpdateWorkerTask(ctx, c.store, c.videoID, func(t *model.WorkerTask) {
		t.MessageCount = c.count
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("heartbeat failed")
	}
}

// markFailed records a fatal collection failure, flushing whatever is
// buffered on a best-effort basis.
func (c *Collector) markFailed(ctx context.Context, cause error) {
	ferr := c.flush(ctx)
	if ferr != nil {
		c.logger.Error().Err(ferr).Int("dropped", len(c.buffer)).Msg("could not flush before failing")
	}
	_, err := model.MarkWorkerTask(ctx, c.store, c.videoID, model.TaskFailed, func(t *model.WorkerTask) {
		t.MessageCount = c.count
		t.StopReason = cause.Error()
	})
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		err = model.PutWorkerTask(ctx, c.store, &model.WorkerTask{
			VideoID:    c.videoID,
			ChannelID:  c.channelID,
			Status:     model.TaskFailed,
			StopReason: cause.Error(),
			FinishedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("cannot mark task failed")
	}
}
