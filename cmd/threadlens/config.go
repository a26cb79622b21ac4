// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the engine's YAML configuration.
type Config struct {
	// Listen is the control-plane bind address.
	Listen string `yaml:"listen" validate:"required"`

	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Oracle OracleConfig `yaml:"oracle"`
	Feed   FeedConfig   `yaml:"feed"`

	// CacheCapacity bounds the shared classification cache.
	CacheCapacity int `yaml:"cacheCapacity" validate:"gte=0"`

	// SettleDelayMS is the wait before the first hide of a content
	// version, in milliseconds. Negative disables it.
	SettleDelayMS int `yaml:"settleDelayMs"`

	// Debug turns on verbose logging of per-item failures.
	Debug bool `yaml:"debug"`
}

type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir"`

	// JSON forces JSON output even on a terminal.
	JSON bool `yaml:"json"`
}

type StoreConfig struct {
	// Backend is "file", "badger", or "none".
	Backend string `yaml:"backend" validate:"omitempty,oneof=file badger none"`

	// Path is the settings file (file backend) or database directory
	// (badger backend).
	Path string `yaml:"path"`
}

type OracleConfig struct {
	// Backend is "lingua" (embedded detector) or "openai".
	Backend string `yaml:"backend" validate:"omitempty,oneof=lingua openai"`

	// Model overrides the OpenAI model name.
	Model string `yaml:"model"`
}

type FeedConfig struct {
	// URL is the host feed websocket endpoint. Empty runs the engine
	// without a feed; threads then only come from the API.
	URL string `yaml:"url" validate:"omitempty,url"`
}

var configValidator = validator.New()

// DefaultConfig returns a runnable local configuration.
func DefaultConfig() Config {
	return Config{
		Listen:        ":8451",
		Log:           LogConfig{Level: "info"},
		Store:         StoreConfig{Backend: "file", Path: "threadlens-settings.json"},
		Oracle:        OracleConfig{Backend: "lingua"},
		CacheCapacity: 512,
		SettleDelayMS: 300,
	}
}

// LoadConfig reads path and overlays it on the defaults. A missing
// file is not an error; the defaults stand.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := configValidator.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SettleDelay converts the configured milliseconds to the controller
// option convention.
func (c Config) SettleDelay() time.Duration {
	if c.SettleDelayMS < 0 {
		return -1
	}
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}
