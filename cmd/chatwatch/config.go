/*
DESCRIPTION
  config.go loads chatwatch configuration from defaults overlaid with
  environment variables.

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
	"fmt"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the chatwatch service configuration: defaults overridden
// by environment variables.
type Config struct {
	Environment string `koanf:"environment"` // Deployment environment, prefixes store kinds.
	ProjectID   string `koanf:"project_id"`  // Cloud project, for the cloud store backend.

	Store struct {
		Backend     string `koanf:"backend"`     // "cloud" or "mem".
		Credentials string `koanf:"credentials"` // Credentials file or gs:// URL; empty for default.
	} `koanf:"store"`

	Bus struct {
		Backend  string `koanf:"backend"`   // "nats" or "channel".
		URL      string `koanf:"url"`       // NATS server URL, ignored for channel.
		Topic    string `koanf:"topic"`     // Task control topic.
		Embedded bool   `koanf:"embedded"`  // Run an embedded NATS server.
		StoreDir string `koanf:"store_dir"` // Embedded server storage directory.
	} `koanf:"bus"`

	Worker struct {
		Runtime  string `koanf:"runtime"`   // "exec" or "mem".
		Binary   string `koanf:"binary"`    // Collector binary path for the exec runtime.
		MaxTasks int    `koanf:"max_tasks"` // Concurrent worker limit; 0 for unlimited.

		// Opaque placement spec, passed through to container-backed
		// runtimes. The exec runtime ignores it.
		Cluster        string `koanf:"cluster"`
		TaskDefinition string `koanf:"task_definition"`
		Subnets        string `koanf:"subnets"`
		SecurityGroups string `koanf:"security_groups"`
	} `koanf:"worker"`

	YouTube struct {
		APIKeyParam     string  `koanf:"api_key_param"`     // API key file or gs:// URL.
		QuotaMaxTokens  float64 `koanf:"quota_max_tokens"`  // Token bucket capacity.
		QuotaRefillRate float64 `koanf:"quota_refill_rate"` // Tokens per hour.
	} `koanf:"youtube"`

	ScannerSchedule string `koanf:"scanner_schedule"` // Cron spec for the feed scanner.
	MonitorSchedule string `koanf:"monitor_schedule"` // Cron spec for the state monitor.
}

// envKeys maps environment variable names to config paths.
var envKeys = map[string]string{
	"ENVIRONMENT":            "environment",
	"PROJECT_ID":             "project_id",
	"STORE_BACKEND":          "store.backend",
	"STORE_CREDENTIALS":      "store.credentials",
	"BUS_BACKEND":            "bus.backend",
	"TASK_CONTROL_QUEUE_URL": "bus.url",
	"TASK_CONTROL_TOPIC":     "bus.topic",
	"NATS_EMBEDDED":          "bus.embedded",
	"NATS_STORE_DIR":         "bus.store_dir",
	"WORKER_RUNTIME":         "worker.runtime",
	"COLLECTOR_BINARY":       "worker.binary",
	"MAX_CONCURRENT_TASKS":   "worker.max_tasks",
	"WORKER_CLUSTER":         "worker.cluster",
	"WORKER_TASK_DEFINITION": "worker.task_definition",
	"WORKER_SUBNETS":         "worker.subnets",
	"WORKER_SECURITY_GROUPS": "worker.security_groups",
	"YOUTUBE_API_KEY_PARAM":  "youtube.api_key_param",
	"QUOTA_MAX_TOKENS":       "youtube.quota_max_tokens",
	"QUOTA_REFILL_RATE":      "youtube.quota_refill_rate",
	"SCANNER_SCHEDULE":       "scanner_schedule",
	"MONITOR_SCHEDULE":       "monitor_schedule",
}

// defaultConfig returns the configuration defaults: a development
// environment against the cloud store and an in-process bus.
func defaultConfig() *Config {
	cfg := &Config{
		Environment:     "dev",
		ScannerSchedule: "@every 5m",
		MonitorSchedule: "@every 1m",
	}
	cfg.Store.Backend = "cloud"
	cfg.Bus.Backend = "nats"
	cfg.Bus.URL = "nats://127.0.0.1:4222"
	cfg.Bus.Topic = "tasks.control"
	cfg.Worker.Runtime = "exec"
	cfg.Worker.Binary = "chatcollector"
	cfg.YouTube.QuotaMaxTokens = 10000
	cfg.YouTube.QuotaRefillRate = 10000.0 / 24.0
	return cfg
}

// loadConfig loads the configuration: struct defaults overlaid by
// environment variables.
func loadConfig() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err != nil {
		return nil, fmt.Errorf("cannot load config defaults: %w", err)
	}

	err = k.Load(env.Provider("", ".", func(key string) string {
		return envKeys[key]
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("cannot load config from environment: %w", err)
	}

	cfg := &Config{}
	err = k.Unmarshal("", cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}
	return cfg, nil
}
