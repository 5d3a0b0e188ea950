/*
DESCRIPTION
  config.go loads the chat API configuration from the environment.

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

// Config is the chat API configuration.
type Config struct {
	Environment string `koanf:"environment"`
	ProjectID   string `koanf:"project_id"`

	Store struct {
		Backend     string `koanf:"backend"`
		Credentials string `koanf:"credentials"`
	} `koanf:"store"`

	YouTube struct {
		APIKeyParam string `koanf:"api_key_param"`
	} `koanf:"youtube"`
}

var envKeys = map[string]string{
	"ENVIRONMENT":           "environment",
	"PROJECT_ID":            "project_id",
	"STORE_BACKEND":         "store.backend",
	"STORE_CREDENTIALS":     "store.credentials",
	"YOUTUBE_API_KEY_PARAM": "youtube.api_key_param",
}

// loadConfig loads the configuration: struct defaults overlaid by
// environment variables.
func loadConfig() (*Config, error) {
	defaults := &Config{Environment: "dev"}
	defaults.Store.Backend = "cloud"

	k := koanf.New(".")
	err := k.Load(structs.Provider(defaults, "koanf"), nil)
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
