/*
DESCRIPTION
  metrics.go defines the Prometheus counters of the control plane.

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	broadcastsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwatch_broadcasts_detected_total",
		Help: "Broadcasts newly discovered by the feed scanner.",
	})
	scanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwatch_scan_errors_total",
		Help: "Per-channel feed scan failures.",
	})
	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwatch_status_transitions_total",
		Help: "Broadcast status transitions applied by the monitor.",
	}, []string{"to"})
	tasksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwatch_tasks_started_total",
		Help: "Collector workers launched by the dispatcher.",
	})
	tasksStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwatch_tasks_stopped_total",
		Help: "Collector workers stopped by the dispatcher.",
	})
	dispatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwatch_dispatch_errors_total",
		Help: "Task commands that failed and were returned for redelivery.",
	})
)
