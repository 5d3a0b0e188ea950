/*
DESCRIPTION
  dispatcher.go consumes task commands from the bus and drives the
  worker runtime.

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
)

// Dispatcher consumes task commands and starts or stops collector
// workers. Handling is idempotent, so the at-least-once delivery of
// the bus is safe; a failed command is nacked for redelivery.
type Dispatcher struct {
	store       datastore.Store
	bus         taskbus.Bus
	runtime     worker.Runtime
	environment string
	logger      zerolog.Logger
}

// NewDispatcher returns a Dispatcher over the given collaborators.
func NewDispatcher(store datastore.Store, bus taskbus.Bus, runtime worker.Runtime, environment string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, bus: bus, runtime: runtime, environment: environment, logger: logger}
}

// Run consumes commands until ctx is canceled or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch, err := d.bus.Receive(ctx)
	if err != nil {
		return err
	}
	for delivery := range ch {
		err := d.Handle(ctx, delivery.Msg)
		if err != nil {
			dispatchErrors.Inc()
			d.logger.Error().Err(err).Str("video", delivery.Msg.VideoID).Str("action", string(delivery.Msg.Action)).Msg("command failed, returning for redelivery")
			delivery.Nack()
			continue
		}
		delivery.Ack()
	}
	return nil
}

// Handle processes one task command.
func (d *Dispatcher) Handle(ctx context.Context, msg *taskbus.TaskMessage) error {
	switch msg.Action {
	case taskbus.ActionStart:
		return d.start(ctx, msg)
	case taskbus.ActionStop:
		return d.stop(ctx, msg)
	default:
		// Validated on receive; nothing sensible to retry.
		return nil
	}
}

// start launches a collector for the broadcast unless one is already
// live. A worker already running in the runtime for this video (e.g.,
// launched before a dispatcher restart) is adopted rather than
// duplicated.
func (d *Dispatcher) start(ctx context.Context, msg *taskbus.TaskMessage) error {
	task, err := model.GetWorkerTask(ctx, d.store, msg.VideoID)
	if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	if task != nil && task.Active() {
		running, err := d.runtime.IsRunning(ctx, task.RuntimeID)
		if err != nil {
			return err
		}
		if running {
			return nil // Redelivered start; the worker is live.
		}
	}

	// Adopt a worker the runtime already hosts for this video.
	workers, err := d.runtime.List(ctx)
	if err != nil {
		return err
	}
	for _, w := range workers {
		if w.VideoID == msg.VideoID {
			err := model.PutWorkerTask(ctx, d.store, &model.WorkerTask{
				VideoID:         msg.VideoID,
				ChannelID:       msg.ChannelID,
				RuntimeID:       w.ID,
				Status:          model.TaskCollecting,
				StartedAt:       w.StartedAt,
				CollectingSince: w.StartedAt,
			})
			if err != nil {
				return err
			}
			d.logger.Info().Str("video", msg.VideoID).Str("worker", w.ID).Msg("adopted running collector")
			return nil
		}
	}

	w, err := d.runtime.Launch(ctx, worker.Params{
		VideoID:     msg.VideoID,
		ChannelID:   msg.ChannelID,
		Environment: d.environment,
	})
	if err != nil {
		return err
	}
	err = model.PutWorkerTask(ctx, d.store, &model.WorkerTask{
		VideoID:   msg.VideoID,
		ChannelID: msg.ChannelID,
		RuntimeID: w.ID,
		Status:    model.TaskRunning,
		StartedAt: w.StartedAt,
	})
	if err != nil {
		return err
	}
	tasksStarted.Inc()
	d.logger.Info().Str("video", msg.VideoID).Str("worker", w.ID).Msg("launched collector")
	return nil
}

// stop terminates the broadcast's collector, if one is live.
func (d *Dispatcher) stop(ctx context.Context, msg *taskbus.TaskMessage) error {
	task, err := model.GetWorkerTask(ctx, d.store, msg.VideoID)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil // Never started; nothing to stop.
	}
	if err != nil {
		return err
	}
	if !task.Active() {
		return nil // Redelivered stop, or the worker already finished.
	}

	err = d.runtime.Stop(ctx, task.RuntimeID)
	if err != nil && !errors.Is(err, worker.ErrWorkerNotFound) {
		return err
	}

	_, err = model.MarkWorkerTask(ctx, d.store, msg.VideoID, model.TaskStopped, func(t *model.WorkerTask) {
		t.StopReason = "broadcast ended"
	})
	if err != nil {
		return err
	}
	tasksStopped.Inc()
	d.logger.Info().Str("video", msg.VideoID).Str("worker", task.RuntimeID).Msg("stopped collector")
	return nil
}
