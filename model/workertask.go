/*
DESCRIPTION
  workertask.go defines the WorkerTask entity tracking per-broadcast
  collector workers, and its datastore accessors.

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

const typeWorkerTask = "WorkerTask" // WorkerTask datastore type.

// Collector worker task statuses. A task is running once its worker
// has been launched, collecting once the worker has connected to the
// live chat, stopped when terminated on request, completed when its
// broadcast ended normally, and failed when the worker could not
// connect or aborted.
const (
	TaskRunning    = "running"
	TaskCollecting = "collecting"
	TaskStopped    = "stopped"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// WorkerTask is an entity tracking the collector worker of one
// broadcast, keyed by video ID. RuntimeID identifies the worker within
// its runtime (a process ID, container task ARN or similar) and is
// what the dispatcher uses to reconcile datastore state against the
// runtime's view.
type WorkerTask struct {
	VideoID         string    `json:"video_id"`
	ChannelID       string    `json:"channel_id"`
	RuntimeID       string    `json:"runtime_id"`
	Status          string    `json:"status"`
	StopReason      string    `json:"stop_reason,omitempty"`
	MessageCount    int64     `json:"message_count"`
	StartedAt       time.Time `json:"started_at"`
	CollectingSince time.Time `json:"collecting_since,omitempty"`
	StoppedAt       time.Time `json:"stopped_at,omitempty"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Active reports whether the task represents a worker that should
// still be running, i.e., one whose status is running or collecting.
func (t *WorkerTask) Active() bool {
	return t.Status == TaskRunning || t.Status == TaskCollecting
}

// Copy copies a WorkerTask to dst, or returns a copy of the WorkerTask
// when dst is nil.
func (t *WorkerTask) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var t2 *WorkerTask
	if dst == nil {
		t2 = new(WorkerTask)
	} else {
		var ok bool
		t2, ok = dst.(*WorkerTask)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*t2 = *t
	return t2, nil
}

// GetCache returns nil, indicating no caching.
func (t *WorkerTask) GetCache() datastore.Cache {
	return nil
}

// PutWorkerTask creates or updates a worker task.
func PutWorkerTask(ctx context.Context, store datastore.Store, t *WorkerTask) error {
	t.UpdatedAt = time.Now().UTC()
	key := store.NameKey(typeWorkerTask, t.VideoID)
	_, err := store.Put(ctx, key, t)
	return err
}

// GetWorkerTask returns the worker task for the given video ID, or
// datastore.ErrNoSuchEntity if no worker was ever launched for it.
func GetWorkerTask(ctx context.Context, store datastore.Store, videoID string) (*WorkerTask, error) {
	key := store.NameKey(typeWorkerTask, videoID)
	t := new(WorkerTask)
	err := store.Get(ctx, key, t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MarkWorkerTask transactionally moves the task for videoID to the
// given status, stamping the timestamp that status implies: StartedAt
// for running, CollectingSince for collecting, StoppedAt for stopped
// and FinishedAt for completed or failed. The optional fn, if non-nil,
// is applied within the same transaction for extra field updates.
func MarkWorkerTask(ctx context.Context, store datastore.Store, videoID, status string, fn func(*WorkerTask)) (*WorkerTask, error) {
	key := store.NameKey(typeWorkerTask, videoID)
	t := new(WorkerTask)
	err := store.Update(ctx, key, func(e datastore.Entity) {
		t := e.(*WorkerTask)
		now := time.Now().UTC()
		t.Status = status
		switch status {
		case TaskRunning:
			t.StartedAt = now
		case TaskCollecting:
			t.CollectingSince = now
		case TaskStopped:
			t.StoppedAt = now
		case TaskCompleted, TaskFailed:
			t.FinishedAt = now
		}
		t.UpdatedAt = now
		if fn != nil {
			fn(t)
		}
	}, t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateWorkerTask transactionally applies fn to the task for videoID,
// stamping UpdatedAt, and returns the updated entity. Unlike
// MarkWorkerTask it leaves the status timestamps alone, which suits
// heartbeats.
func UpdateWorkerTask(ctx context.Context, store datastore.Store, videoID string, fn func(*WorkerTask)) (*WorkerTask, error) {
	key := store.NameKey(typeWorkerTask, videoID)
	t := new(WorkerTask)
	err := store.Update(ctx, key, func(e datastore.Entity) {
		fn(e.(*WorkerTask))
		e.(*WorkerTask).UpdatedAt = time.Now().UTC()
	}, t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// WorkerTasksByStatus returns all worker tasks in the given status.
func WorkerTasksByStatus(ctx context.Context, store datastore.Store, status string) ([]WorkerTask, error) {
	q := store.NewQuery(typeWorkerTask, false)
	err := q.FilterField("Status", "=", status)
	if err != nil {
		return nil, err
	}
	var tasks []WorkerTask
	_, err = store.GetAll(ctx, q, &tasks)
	return tasks, err
}

// ActiveWorkerTasks returns the tasks whose workers should still be
// running, i.e., those in the running or collecting status.
func ActiveWorkerTasks(ctx context.Context, store datastore.Store) ([]WorkerTask, error) {
	running, err := WorkerTasksByStatus(ctx, store, TaskRunning)
	if err != nil {
		return nil, err
	}
	collecting, err := WorkerTasksByStatus(ctx, store, TaskCollecting)
	if err != nil {
		return nil, err
	}
	return append(running, collecting...), nil
}
