/*
DESCRIPTION
  monitor.go implements the broadcast-state monitor, the authoritative
  owner of broadcast status, which emits task commands on transitions.

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

	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/taskbus"
	"github.com/ando1912/YoutubeLiveChatDBSystem/worker"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

// Monitor tracks the platform state of recorded broadcasts, owns
// their status transitions, and emits start/stop commands on the task
// bus. Broadcasts in terminal or non-live states are excluded from
// polling to conserve API quota.
type Monitor struct {
	store   datastore.Store
	videos  videoStater
	bus     taskbus.Bus
	runtime worker.Runtime
	logger  zerolog.Logger
}

// NewMonitor returns a Monitor over the given collaborators.
func NewMonitor(store datastore.Store, videos videoStater, bus taskbus.Bus, runtime worker.Runtime, logger zerolog.Logger) *Monitor {
	return &Monitor{store: store, videos: videos, bus: bus, runtime: runtime, logger: logger}
}

// Tick runs one monitoring cycle. Per-broadcast failures are logged
// and skipped so one broadcast never blocks the others.
func (m *Monitor) Tick(ctx context.Context) error {
	broadcasts, err := m.selectBroadcasts(ctx)
	if err != nil {
		return err
	}
	if len(broadcasts) == 0 {
		return nil
	}

	ids := make([]string, len(broadcasts))
	for i, b := range broadcasts {
		ids[i] = b.VideoID
	}
	states, err := m.videos.States(ctx, ids)
	if errors.Is(err, youtube.ErrQuotaExhausted) {
		m.logger.Warn().Msg("quota exhausted, skipping monitor cycle")
		return nil
	}
	if err != nil {
		return err
	}

	for _, b := range broadcasts {
		state, ok := states[b.VideoID]
		if !ok {
			// Deleted or private; stop polling it.
			m.transition(ctx, &b, youtube.VideoState{VideoID: b.VideoID, Status: youtube.VideoUnknown})
			continue
		}
		err := m.step(ctx, &b, state)
		if err != nil {
			m.logger.Error().Err(err).Str("video", b.VideoID).Msg("monitor step failed")
		}
	}
	return nil
}

// selectBroadcasts returns the broadcasts to poll: those in the
// detected, upcoming or live status whose channel is still active.
func (m *Monitor) selectBroadcasts(ctx context.Context) ([]model.Broadcast, error) {
	channels, err := model.ActiveChannels(ctx, m.store)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(channels))
	for _, c := range channels {
		active[c.ID] = true
	}

	var selected []model.Broadcast
	for _, status := range []model.BroadcastStatus{model.StatusDetected, model.StatusUpcoming, model.StatusLive} {
		broadcasts, err := model.BroadcastsByStatus(ctx, m.store, status)
		if err != nil {
			return nil, err
		}
		for _, b := range broadcasts {
			if active[b.ChannelID] {
				selected = append(selected, b)
			}
		}
	}
	return selected, nil
}

// step applies one broadcast's observed platform state: update the
// row, then emit task commands implied by the transition.
func (m *Monitor) step(ctx context.Context, b *model.Broadcast, state youtube.VideoState) error {
	prev := b.Status
	next := m.transition(ctx, b, state)
	if next == "" {
		return nil // Transition rejected or update failed.
	}

	if next == model.StatusLive {
		healthy, err := m.healthyWorker(ctx, b.VideoID)
		if err != nil {
			return err
		}
		if !healthy {
			return m.emit(ctx, taskbus.ActionStart, b)
		}
		return nil
	}

	if prev == model.StatusLive && next == model.StatusEnded {
		return m.emit(ctx, taskbus.ActionStop, b)
	}
	return nil
}

// transition maps the platform state to a status and rewrites the
// broadcast row. The row is always rewritten with the authoritative
// observation, even when the status is unchanged; timing fields are
// never overwritten with empty values. It returns the new status, or
// "" when the state machine rejects the transition or the update
// fails.
func (m *Monitor) transition(ctx context.Context, b *model.Broadcast, state youtube.VideoState) model.BroadcastStatus {
	next := model.BroadcastStatus(state.Status)
	if !model.CanTransition(b.Status, next) {
		m.logger.Warn().Str("video", b.VideoID).Str("from", string(b.Status)).Str("to", string(next)).Msg("transition rejected")
		return ""
	}

	_, err := model.UpdateBroadcast(ctx, m.store, b.VideoID, func(stored *model.Broadcast) {
		stored.Status = next
		if state.Title != "" {
			stored.Title = state.Title
		}
		if state.Description != "" {
			stored.Description = state.Description
		}
		if state.PrivacyStatus != "" {
			stored.PrivacyStatus = state.PrivacyStatus
		}
		stored.ConcurrentViewers = state.ConcurrentViewers
		if !state.ScheduledStartTime.IsZero() {
			stored.ScheduledStartTime = state.ScheduledStartTime
		}
		if !state.ActualStartTime.IsZero() {
			stored.ActualStartTime = state.ActualStartTime
		}
		if !state.ActualEndTime.IsZero() {
			stored.ActualEndTime = state.ActualEndTime
		}
	})
	if err != nil {
		m.logger.Error().Err(err).Str("video", b.VideoID).Msg("broadcast update failed")
		return ""
	}

	if next != b.Status {
		statusTransitions.WithLabelValues(string(next)).Inc()
		m.logger.Info().Str("video", b.VideoID).Str("from", string(b.Status)).Str("to", string(next)).Msg("broadcast transition")
	}
	return next
}

// healthyWorker reports whether a live worker exists for the
// broadcast, reconciling stored task state against the runtime: a
// task marked running or collecting whose worker the runtime no
// longer reports is marked stopped and treated as absent.
func (m *Monitor) healthyWorker(ctx context.Context, videoID string) (bool, error) {
	task, err := model.GetWorkerTask(ctx, m.store, videoID)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !task.Active() {
		return false, nil
	}

	running, err := m.runtime.IsRunning(ctx, task.RuntimeID)
	if err != nil {
		return false, err
	}
	if running {
		return true, nil
	}

	_, err = model.MarkWorkerTask(ctx, m.store, videoID, model.TaskStopped, func(t *model.WorkerTask) {
		t.StopReason = "worker not running"
	})
	if err != nil {
		return false, err
	}
	m.logger.Warn().Str("video", videoID).Str("worker", task.RuntimeID).Msg("reconciled vanished worker")
	return false, nil
}

// emit publishes a task command for the broadcast.
func (m *Monitor) emit(ctx context.Context, action taskbus.Action, b *model.Broadcast) error {
	m.logger.Info().Str("video", b.VideoID).Str("action", string(action)).Msg("emitting task command")
	return m.bus.Send(ctx, &taskbus.TaskMessage{
		Action:    action,
		VideoID:   b.VideoID,
		ChannelID: b.ChannelID,
	})
}
