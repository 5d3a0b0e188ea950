/*
DESCRIPTION
  exec.go implements the worker runtime as child processes of the
  dispatcher.

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
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExecRuntime implements Runtime by spawning one collector process per
// worker. The collector binary inherits the dispatcher's environment
// plus its assignment variables. ExecRuntime is safe for concurrent
// use.
type ExecRuntime struct {
	binary   string // Path to the collector binary.
	maxTasks int    // Maximum concurrent workers; 0 for unlimited.
	logger   zerolog.Logger

	mu      sync.Mutex
	workers map[string]*execWorker
}

type execWorker struct {
	Worker
	cmd  *exec.Cmd
	done chan struct{}
}

// NewExecRuntime returns an ExecRuntime that runs the given collector
// binary, hosting at most maxTasks concurrent workers.
func NewExecRuntime(binary string, maxTasks int, logger zerolog.Logger) *ExecRuntime {
	return &ExecRuntime{
		binary:   binary,
		maxTasks: maxTasks,
		logger:   logger,
		workers:  make(map[string]*execWorker),
	}
}

// Launch starts a collector process for the given assignment.
func (r *ExecRuntime) Launch(ctx context.Context, p Params) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxTasks > 0 && len(r.workers) >= r.maxTasks {
		return nil, ErrNoCapacity
	}

	id := uuid.New().String()
	cmd := exec.Command(r.binary)
	cmd.Env = append(os.Environ(),
		"VIDEO_ID="+p.VideoID,
		"CHANNEL_ID="+p.ChannelID,
		"ENVIRONMENT="+p.Environment,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("cannot start collector for %s: %w", p.VideoID, err)
	}

	w := &execWorker{
		Worker: Worker{ID: id, VideoID: p.VideoID, StartedAt: time.Now().UTC()},
		cmd:    cmd,
		done:   make(chan struct{}),
	}
	r.workers[id] = w

	go r.reap(w)

	r.logger.Info().Str("worker", id).Str("video", p.VideoID).Int("pid", cmd.Process.Pid).Msg("launched collector")
	return &w.Worker, nil
}

// reap waits for the worker process to exit and removes it from the
// worker table.
func (r *ExecRuntime) reap(w *execWorker) {
	err := w.cmd.Wait()
	close(w.done)

	r.mu.Lock()
	delete(r.workers, w.ID)
	r.mu.Unlock()

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Warn().Err(err)
	}
	ev.Str("worker", w.ID).Str("video", w.VideoID).Msg("collector exited")
}

// Stop terminates a worker. The worker is first sent an interrupt,
// giving it the chance to flush buffered messages and finalize its
// task record; if it has not exited after ten seconds it is killed.
func (r *ExecRuntime) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	w, ok := r.workers[id]
	r.mu.Unlock()
	if !ok {
		return ErrWorkerNotFound
	}

	err := w.cmd.Process.Signal(os.Interrupt)
	if err != nil {
		return fmt.Errorf("cannot signal worker %s: %w", id, err)
	}

	select {
	case <-w.done:
		return nil
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	err = w.cmd.Process.Kill()
	if err != nil {
		return fmt.Errorf("cannot kill worker %s: %w", id, err)
	}
	<-w.done
	return nil
}

// List returns the workers currently running.
func (r *ExecRuntime) List(ctx context.Context) ([]Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	workers := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w.Worker)
	}
	return workers, nil
}

// IsRunning reports whether the worker with the given ID is running.
func (r *ExecRuntime) IsRunning(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[id]
	return ok, nil
}
