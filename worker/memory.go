/*
DESCRIPTION
  memory.go implements a worker runtime that records launches without
  running anything, for testing the dispatcher.

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

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRuntime implements Runtime as a table of nominal workers. It
// is safe for concurrent use.
type MemoryRuntime struct {
	maxTasks int

	mu       sync.Mutex
	workers  map[string]Worker
	launched []Params // Every launch, in order, for test inspection.
	stopped  []string // Every stop, in order, for test inspection.
	nextID   int
}

// NewMemoryRuntime returns a MemoryRuntime hosting at most maxTasks
// concurrent workers, or unlimited when maxTasks is 0.
func NewMemoryRuntime(maxTasks int) *MemoryRuntime {
	return &MemoryRuntime{maxTasks: maxTasks, workers: make(map[string]Worker)}
}

// Launch records a nominal worker for the given assignment.
func (r *MemoryRuntime) Launch(ctx context.Context, p Params) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxTasks > 0 && len(r.workers) >= r.maxTasks {
		return nil, ErrNoCapacity
	}
	r.nextID++
	w := Worker{
		ID:        fmt.Sprintf("mem-%d", r.nextID),
		VideoID:   p.VideoID,
		StartedAt: time.Now().UTC(),
	}
	r.workers[w.ID] = w
	r.launched = append(r.launched, p)
	return &w, nil
}

// Stop removes a nominal worker.
func (r *MemoryRuntime) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[id]; !ok {
		return ErrWorkerNotFound
	}
	delete(r.workers, id)
	r.stopped = append(r.stopped, id)
	return nil
}

// List returns the nominal workers currently running.
func (r *MemoryRuntime) List(ctx context.Context) ([]Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	workers := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	return workers, nil
}

// IsRunning reports whether the worker with the given ID is running.
func (r *MemoryRuntime) IsRunning(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[id]
	return ok, nil
}

// Launched returns a copy of every launch in order.
func (r *MemoryRuntime) Launched() []Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Params(nil), r.launched...)
}

// Stopped returns a copy of every stopped worker ID in order.
func (r *MemoryRuntime) Stopped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stopped...)
}

// Exit removes a worker as though its process exited on its own,
// without recording a stop.
func (r *MemoryRuntime) Exit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}
