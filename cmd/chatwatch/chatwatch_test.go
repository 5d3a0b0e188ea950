/*
DESCRIPTION
  chatwatch control-plane tests: scanner, monitor and dispatcher
  exercised against in-memory fakes.

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
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/taskbus"
	"github.com/ando1912/YoutubeLiveChatDBSystem/worker"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

const (
	testChannel = "UCabc"
	testVideo   = "v1"
)

// fakeFeed serves canned feed entries per channel.
type fakeFeed struct {
	entries map[string][]youtube.FeedEntry
	err     error
}

func (f *fakeFeed) Fetch(ctx context.Context, channelID string) ([]youtube.FeedEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[channelID], nil
}

// fakeVideos serves canned video states and records queried IDs.
type fakeVideos struct {
	mu      sync.Mutex
	states  map[string]youtube.VideoState
	queried [][]string
	err     error
}

func (f *fakeVideos) States(ctx context.Context, videoIDs []string) (map[string]youtube.VideoState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, append([]string(nil), videoIDs...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]youtube.VideoState)
	for _, id := range videoIDs {
		if s, ok := f.states[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// fakeBus records sent commands.
type fakeBus struct {
	mu   sync.Mutex
	sent []taskbus.TaskMessage
}

func (b *fakeBus) Send(ctx context.Context, msg *taskbus.TaskMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, *msg)
	return nil
}

func (b *fakeBus) Receive(ctx context.Context) (<-chan taskbus.Delivery, error) {
	ch := make(chan taskbus.Delivery)
	close(ch)
	return ch, nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) messages() []taskbus.TaskMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]taskbus.TaskMessage(nil), b.sent...)
}

type fixture struct {
	store   datastore.Store
	feeds   *fakeFeed
	videos  *fakeVideos
	bus     *fakeBus
	runtime *worker.MemoryRuntime

	scanner    *Scanner
	monitor    *Monitor
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	model.RegisterEntities()
	f := &fixture{
		store:   datastore.NewMemStore("test"),
		feeds:   &fakeFeed{entries: make(map[string][]youtube.FeedEntry)},
		videos:  &fakeVideos{states: make(map[string]youtube.VideoState)},
		bus:     &fakeBus{},
		runtime: worker.NewMemoryRuntime(0),
	}
	logger := zerolog.Nop()
	f.scanner = NewScanner(f.store, f.feeds, f.videos, logger)
	f.monitor = NewMonitor(f.store, f.videos, f.bus, f.runtime, logger)
	f.dispatcher = NewDispatcher(f.store, f.bus, f.runtime, "test", logger)
	return f
}

func (f *fixture) addChannel(t *testing.T, id string, active bool) {
	t.Helper()
	require.NoError(t, model.CreateChannel(context.Background(), f.store, &model.Channel{ID: id, Name: id, IsActive: active}))
}

func TestColdDetection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)

	f.feeds.entries[testChannel] = []youtube.FeedEntry{
		{VideoID: testVideo, ChannelID: testChannel, Title: "Stream", Published: time.Now().Add(-5 * time.Minute)},
	}
	f.videos.states[testVideo] = youtube.VideoState{
		VideoID: testVideo, ChannelID: testChannel, Status: youtube.VideoUpcoming, HasLiveDetails: true,
	}

	require.NoError(t, f.scanner.Scan(ctx))

	b, err := model.GetBroadcast(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDetected, b.Status)
	assert.Empty(t, f.bus.messages(), "scanner must not publish")

	require.NoError(t, f.monitor.Tick(ctx))

	b, err = model.GetBroadcast(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUpcoming, b.Status)
	assert.Empty(t, f.bus.messages(), "upcoming must not start collection")
}

func TestScannerCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)

	now := time.Now()
	f.scanner.now = func() time.Time { return now }
	f.feeds.entries[testChannel] = []youtube.FeedEntry{
		{VideoID: "old", ChannelID: testChannel, Published: now.Add(-24 * time.Hour)}, // Exactly 24h: rejected.
		{VideoID: "new", ChannelID: testChannel, Published: now.Add(-24*time.Hour + time.Minute)},
	}
	f.videos.states["old"] = youtube.VideoState{VideoID: "old", Status: youtube.VideoLive}
	f.videos.states["new"] = youtube.VideoState{VideoID: "new", Status: youtube.VideoLive}

	require.NoError(t, f.scanner.Scan(ctx))

	_, err := model.GetBroadcast(ctx, f.store, "old")
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
	_, err = model.GetBroadcast(ctx, f.store, "new")
	assert.NoError(t, err)
}

func TestScannerIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)

	f.feeds.entries[testChannel] = []youtube.FeedEntry{
		{VideoID: testVideo, ChannelID: testChannel, Published: time.Now().Add(-time.Hour)},
	}
	f.videos.states[testVideo] = youtube.VideoState{VideoID: testVideo, Status: youtube.VideoLive}

	require.NoError(t, f.scanner.Scan(ctx))
	require.NoError(t, f.scanner.Scan(ctx))

	all, err := model.AllBroadcasts(ctx, f.store)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// The second scan found the video recorded and did not re-verify.
	f.videos.mu.Lock()
	queries := len(f.videos.queried)
	f.videos.mu.Unlock()
	assert.Equal(t, 1, queries)
}

func TestScannerSkipsOrdinaryUploads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)

	f.feeds.entries[testChannel] = []youtube.FeedEntry{
		{VideoID: "upload", ChannelID: testChannel, Published: time.Now().Add(-time.Hour)},
	}
	f.videos.states["upload"] = youtube.VideoState{VideoID: "upload", Status: youtube.VideoNotLive}

	require.NoError(t, f.scanner.Scan(ctx))

	_, err := model.GetBroadcast(ctx, f.store, "upload")
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
}

func TestScannerInactiveChannelSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, false)

	f.feeds.entries[testChannel] = []youtube.FeedEntry{
		{VideoID: testVideo, ChannelID: testChannel, Published: time.Now().Add(-time.Hour)},
	}
	f.videos.states[testVideo] = youtube.VideoState{VideoID: testVideo, Status: youtube.VideoLive}

	require.NoError(t, f.scanner.Scan(ctx))

	_, err := model.GetBroadcast(ctx, f.store, testVideo)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
}

func TestScannerQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)

	f.feeds.entries[testChannel] = []youtube.FeedEntry{
		{VideoID: testVideo, ChannelID: testChannel, Published: time.Now().Add(-time.Hour)},
	}
	f.videos.err = youtube.ErrQuotaExhausted

	// Verification is deferred, not failed.
	require.NoError(t, f.scanner.Scan(ctx))
	_, err := model.GetBroadcast(ctx, f.store, testVideo)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
}

func TestGoLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)
	require.NoError(t, model.CreateBroadcast(ctx, f.store, &model.Broadcast{
		VideoID: testVideo, ChannelID: testChannel, Status: model.StatusUpcoming,
	}))

	f.videos.states[testVideo] = youtube.VideoState{
		VideoID: testVideo, ChannelID: testChannel, Status: youtube.VideoLive,
		PrivacyStatus: "public", ActualStartTime: time.Now().UTC(), HasLiveDetails: true,
	}

	require.NoError(t, f.monitor.Tick(ctx))

	b, err := model.GetBroadcast(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLive, b.Status)
	assert.Equal(t, "public", b.PrivacyStatus)
	assert.False(t, b.ActualStartTime.IsZero())

	msgs := f.bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, taskbus.ActionStart, msgs[0].Action)
	assert.Equal(t, testVideo, msgs[0].VideoID)
	assert.Equal(t, testChannel, msgs[0].ChannelID)

	require.NoError(t, f.dispatcher.Handle(ctx, &msgs[0]))

	task, err := model.GetWorkerTask(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.TaskRunning, task.Status)
	workers, err := f.runtime.List(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 1)

	// The next tick sees a healthy worker and does not re-start.
	require.NoError(t, f.monitor.Tick(ctx))
	assert.Len(t, f.bus.messages(), 1)
}

func TestEndOfBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)
	require.NoError(t, model.CreateBroadcast(ctx, f.store, &model.Broadcast{
		VideoID: testVideo, ChannelID: testChannel, Status: model.StatusLive,
	}))
	w, err := f.runtime.Launch(ctx, worker.Params{VideoID: testVideo, ChannelID: testChannel, Environment: "test"})
	require.NoError(t, err)
	require.NoError(t, model.PutWorkerTask(ctx, f.store, &model.WorkerTask{
		VideoID: testVideo, ChannelID: testChannel, RuntimeID: w.ID, Status: model.TaskCollecting,
	}))

	ended := time.Now().UTC()
	f.videos.states[testVideo] = youtube.VideoState{
		VideoID: testVideo, ChannelID: testChannel, Status: youtube.VideoEnded,
		ActualEndTime: ended, HasLiveDetails: true,
	}

	require.NoError(t, f.monitor.Tick(ctx))

	b, err := model.GetBroadcast(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, b.Status)
	assert.Equal(t, ended, b.ActualEndTime)

	msgs := f.bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, taskbus.ActionStop, msgs[0].Action)

	require.NoError(t, f.dispatcher.Handle(ctx, &msgs[0]))

	task, err := model.GetWorkerTask(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStopped, task.Status)
	assert.Equal(t, "broadcast ended", task.StopReason)
	workers, err := f.runtime.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)

	// An ended broadcast is excluded from further polling.
	f.videos.mu.Lock()
	f.videos.queried = nil
	f.videos.mu.Unlock()
	require.NoError(t, f.monitor.Tick(ctx))
	f.videos.mu.Lock()
	queries := len(f.videos.queried)
	f.videos.mu.Unlock()
	assert.Zero(t, queries)
}

func TestDuplicateStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg := &taskbus.TaskMessage{Action: taskbus.ActionStart, VideoID: "v2", ChannelID: testChannel}
	require.NoError(t, f.dispatcher.Handle(ctx, msg))
	require.NoError(t, f.dispatcher.Handle(ctx, msg))

	workers, err := f.runtime.List(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 1)
	assert.Len(t, f.runtime.Launched(), 1)
}

func TestStartAdoptsRunningWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A worker for this video is already running (launched before a
	// dispatcher restart), but no task row references it.
	w, err := f.runtime.Launch(ctx, worker.Params{VideoID: testVideo, ChannelID: testChannel, Environment: "test"})
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.Handle(ctx, &taskbus.TaskMessage{
		Action: taskbus.ActionStart, VideoID: testVideo, ChannelID: testChannel,
	}))

	task, err := model.GetWorkerTask(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCollecting, task.Status)
	assert.Equal(t, w.ID, task.RuntimeID)
	assert.Len(t, f.runtime.Launched(), 1, "no second launch")
}

func TestStopAlreadyStoppedNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// No task at all.
	require.NoError(t, f.dispatcher.Handle(ctx, &taskbus.TaskMessage{
		Action: taskbus.ActionStop, VideoID: testVideo, ChannelID: testChannel,
	}))

	// Task present but finished.
	require.NoError(t, model.PutWorkerTask(ctx, f.store, &model.WorkerTask{
		VideoID: testVideo, ChannelID: testChannel, Status: model.TaskCompleted,
	}))
	require.NoError(t, f.dispatcher.Handle(ctx, &taskbus.TaskMessage{
		Action: taskbus.ActionStop, VideoID: testVideo, ChannelID: testChannel,
	}))

	task, err := model.GetWorkerTask(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Empty(t, f.runtime.Stopped())
}

func TestZombieWorkerReconciliation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)
	require.NoError(t, model.CreateBroadcast(ctx, f.store, &model.Broadcast{
		VideoID: testVideo, ChannelID: testChannel, Status: model.StatusLive,
	}))
	// Task claims a worker the runtime does not host.
	require.NoError(t, model.PutWorkerTask(ctx, f.store, &model.WorkerTask{
		VideoID: testVideo, ChannelID: testChannel, RuntimeID: "gone", Status: model.TaskRunning,
	}))

	f.videos.states[testVideo] = youtube.VideoState{
		VideoID: testVideo, ChannelID: testChannel, Status: youtube.VideoLive, HasLiveDetails: true,
	}

	require.NoError(t, f.monitor.Tick(ctx))

	task, err := model.GetWorkerTask(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStopped, task.Status)

	msgs := f.bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, taskbus.ActionStart, msgs[0].Action)
}

func TestMonitorUnchangedStateIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel(t, testChannel, true)

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, model.CreateBroadcast(ctx, f.store, &model.Broadcast{
		VideoID: testVideo, ChannelID: testChannel, Title: "Stream",
		Status: model.StatusLive, ActualStartTime: started,
	}))
	w, err := f.runtime.Launch(ctx, worker.Params{VideoID: testVideo})
	require.NoError(t, err)
	require.NoError(t, model.PutWorkerTask(ctx, f.store, &model.WorkerTask{
		VideoID: testVideo, ChannelID: testChannel, RuntimeID: w.ID, Status: model.TaskCollecting,
	}))

	// State unchanged, and without timing fields this time: the stored
	// start time must not be overwritten with empty.
	f.videos.states[testVideo] = youtube.VideoState{
		VideoID: testVideo, ChannelID: testChannel, Title: "Stream",
		Status: youtube.VideoLive, HasLiveDetails: true,
	}

	require.NoError(t, f.monitor.Tick(ctx))
	require.NoError(t, f.monitor.Tick(ctx))

	b, err := model.GetBroadcast(ctx, f.store, testVideo)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLive, b.Status)
	assert.Equal(t, "Stream", b.Title)
	assert.Equal(t, started, b.ActualStartTime)
	assert.Empty(t, f.bus.messages())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "@every 5m", cfg.ScannerSchedule)
	assert.Equal(t, "@every 1m", cfg.MonitorSchedule)
	assert.Equal(t, "cloud", cfg.Store.Backend)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("STORE_BACKEND", "mem")
	t.Setenv("TASK_CONTROL_QUEUE_URL", "nats://broker:4222")
	t.Setenv("MAX_CONCURRENT_TASKS", "7")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "mem", cfg.Store.Backend)
	assert.Equal(t, "nats://broker:4222", cfg.Bus.URL)
	assert.Equal(t, 7, cfg.Worker.MaxTasks)
}
