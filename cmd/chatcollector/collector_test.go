/*
DESCRIPTION
  collector_test.go tests the chat collection loop against an
  in-memory store and a scripted chat source.

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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

// fakeSource replays scripted batches of chat items, going not-alive
// once they are exhausted (or never, with stayAlive).
type fakeSource struct {
	batches    [][]youtube.ChatItem
	poll       int
	stayAlive  bool
	terminated bool
	onPoll     func(n int)
}

func (s *fakeSource) IsAlive() bool {
	return s.stayAlive || s.poll < len(s.batches)
}

func (s *fakeSource) Poll(ctx context.Context) ([]youtube.ChatItem, error) {
	if s.onPoll != nil {
		s.onPoll(s.poll)
	}
	if s.poll >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.poll]
	s.poll++
	return b, nil
}

func (s *fakeSource) Terminate() { s.terminated = true }

// fakeConnector hands out a source after a configurable number of
// failed attempts.
type fakeConnector struct {
	source   youtube.Source
	failures int
	attempts int
}

func (c *fakeConnector) Connect(ctx context.Context, videoID string) (youtube.Source, error) {
	c.attempts++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("connect refused")
	}
	return c.source, nil
}

// recordingStore wraps a Store, recording PutMulti batch sizes and
// optionally failing the first few batch writes.
type recordingStore struct {
	datastore.Store
	batches  []int
	failPuts int
}

func (s *recordingStore) PutMulti(ctx context.Context, keys []*datastore.Key, src []datastore.Entity) error {
	if s.failPuts > 0 {
		s.failPuts--
		return errors.New("transient put failure")
	}
	s.batches = append(s.batches, len(keys))
	return s.Store.PutMulti(ctx, keys, src)
}

func chatItems(start, n int) []youtube.ChatItem {
	items := make([]youtube.ChatItem, n)
	for i := range items {
		items[i] = youtube.ChatItem{
			MessageID:  fmt.Sprintf("msg%04d", start+i),
			AuthorName: "viewer",
			AuthorID:   "author1",
			Text:       "hello",
			Datetime:   fmt.Sprintf("2026-01-01T00:00:%02d.%04dZ", (start+i)/100, start+i),
		}
	}
	return items
}

func testCollector(t *testing.T, store datastore.Store, conn connector) *Collector {
	t.Helper()
	c := NewCollector(store, conn, "video1", "chan1", zerolog.Nop())
	c.backoff = 0
	c.heartbeat = 0
	c.sleep = func() {}
	return c
}

func newTestStore(t *testing.T) datastore.Store {
	t.Helper()
	model.RegisterEntities()
	return datastore.NewMemStore("test")
}

func TestCollectorCollectsToCompletion(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Store: newTestStore(t)}
	source := &fakeSource{batches: [][]youtube.ChatItem{
		chatItems(0, 20),
		chatItems(20, 30),
		chatItems(50, 10),
	}}
	c := testCollector(t, store, &fakeConnector{source: source})

	require.NoError(t, c.Run(ctx))

	n, err := model.CountMessagesByVideo(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	task, err := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, int64(60), task.MessageCount)
	assert.Equal(t, "broadcast ended", task.StopReason)
	assert.False(t, task.FinishedAt.IsZero())
	assert.True(t, source.terminated)

	// The buffer flushes as soon as it holds 25 messages, so 60
	// messages arrive as two full batches and a remainder.
	assert.Equal(t, []int{25, 25, 10}, store.batches)
}

func TestCollectorEmptyStream(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{}
	c := testCollector(t, store, &fakeConnector{source: source})

	require.NoError(t, c.Run(ctx))

	task, err := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, int64(0), task.MessageCount)
	assert.False(t, task.CollectingSince.IsZero())

	n, err := model.CountMessagesByVideo(ctx, store, "video1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollectorMarksCollectingOnExistingTask(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, model.PutWorkerTask(ctx, store, &model.WorkerTask{
		VideoID:   "video1",
		ChannelID: "chan1",
		RuntimeID: "w-1",
		Status:    model.TaskRunning,
	}))

	source := &fakeSource{batches: [][]youtube.ChatItem{chatItems(0, 3)}}
	c := testCollector(t, store, &fakeConnector{source: source})
	require.NoError(t, c.Run(ctx))

	task, err := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, "w-1", task.RuntimeID, "dispatcher's runtime ID survives")
	assert.Equal(t, int64(3), task.MessageCount)
}

func TestCollectorConnectFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conn := &fakeConnector{failures: 99}
	c := testCollector(t, store, conn)

	err := c.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, connectAttempts, conn.attempts)

	task, gerr := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, gerr)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Contains(t, task.StopReason, "cannot connect")
}

func TestCollectorConnectRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{batches: [][]youtube.ChatItem{chatItems(0, 2)}}
	conn := &fakeConnector{source: source, failures: 2}
	c := testCollector(t, store, conn)

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, 3, conn.attempts)

	task, err := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
}

func TestCollectorFlushRetriesOnce(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Store: newTestStore(t), failPuts: 1}
	source := &fakeSource{batches: [][]youtube.ChatItem{chatItems(0, 30)}}
	c := testCollector(t, store, &fakeConnector{source: source})

	require.NoError(t, c.Run(ctx))

	// The first write of the 25-message batch fails, the retry and the
	// remainder succeed, so nothing is lost.
	n, err := model.CountMessagesByVideo(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	task, err := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), task.MessageCount)
}

func TestCollectorPersistentFlushFailure(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Store: newTestStore(t), failPuts: 99}
	source := &fakeSource{batches: [][]youtube.ChatItem{chatItems(0, 30)}}
	c := testCollector(t, store, &fakeConnector{source: source})

	// A batch that fails its write and its retry is fatal: the task
	// must not end up completed with the messages silently lost.
	err := c.Run(ctx)
	require.Error(t, err)

	task, gerr := model.GetWorkerTask(ctx, store, "video1")
	require.NoError(t, gerr)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Zero(t, task.MessageCount)
	assert.Contains(t, task.StopReason, "cannot write")
	assert.True(t, source.terminated)
}

func TestCollectorCancellationLeavesStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	source := &fakeSource{
		batches:   [][]youtube.ChatItem{chatItems(0, 5)},
		stayAlive: true,
	}
	source.onPoll = func(n int) {
		if n >= 1 {
			cancel()
		}
	}
	c := testCollector(t, store, &fakeConnector{source: source})

	require.NoError(t, c.Run(ctx))

	// The launcher owns the final status of a stopped worker, so
	// cancellation leaves the task in collecting.
	task, err := model.GetWorkerTask(context.Background(), store, "video1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCollecting, task.Status)

	// The buffered messages were flushed on the way out.
	n, err := model.CountMessagesByVideo(context.Background(), store, "video1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
