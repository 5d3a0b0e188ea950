/*
DESCRIPTION
  runtime.go defines the worker runtime interface used by the
  dispatcher to launch and stop per-broadcast collector workers.

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

// Package worker abstracts the runtime that hosts collector workers.
// ExecRuntime runs each worker as a child process of the dispatcher;
// MemoryRuntime records launches without running anything, for
// testing. Workers learn their assignment from the environment
// variables the runtime sets, so a runtime can equally be backed by a
// container platform that passes the same variables.
package worker

import (
	"context"
	"errors"
	"time"
)

// Worker runtime errors.
var (
	ErrWorkerNotFound = errors.New("no such worker")
	ErrNoCapacity     = errors.New("no worker capacity")
)

// Params carries the assignment of one collector worker. The runtime
// passes these to the worker as the VIDEO_ID, CHANNEL_ID and
// ENVIRONMENT variables.
type Params struct {
	VideoID     string
	ChannelID   string
	Environment string
}

// Worker describes one worker known to the runtime.
type Worker struct {
	ID        string    // Runtime-assigned identifier.
	VideoID   string    // The broadcast the worker collects.
	StartedAt time.Time // When the worker was launched.
}

// Runtime hosts collector workers.
//
// Launch starts a worker for the given assignment, returning
// ErrNoCapacity when the runtime cannot host another worker; the
// dispatcher responds by nacking the command for redelivery. Stop
// requests termination of a worker by ID. List returns the workers
// currently running, which the dispatcher uses to reconcile stored
// task state against reality.
type Runtime interface {
	Launch(ctx context.Context, p Params) (*Worker, error)
	Stop(ctx context.Context, id string) error
	List(ctx context.Context) ([]Worker, error)
	IsRunning(ctx context.Context, id string) (bool, error)
}
