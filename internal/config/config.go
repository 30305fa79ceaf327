// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package config loads the aipp tool configuration from a TOML file and
// AIPP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/blocklypy/aipp/internal/logging"
	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/host"
	"github.com/blocklypy/aipp/pkg/tunnel"
)

// Config is the complete tool configuration
type Config struct {
	Link      Link
	Serial    Serial
	WebSocket WebSocket
	Log       Log
}

// Link holds framing and wait-loop parameters shared by both ends
type Link struct {
	MTU           int
	PollInterval  time.Duration
	ResendEvery   int
	Timeout       int
	ChunkDelay    time.Duration
	LegacyMarkers bool
	PadChunks     bool
}

// Serial selects a serial port connection
type Serial struct {
	Port string
	Baud int
}

// WebSocket selects a WebSocket bridge connection
type WebSocket struct {
	URL           string
	Username      string
	SkipSSLVerify bool
}

// Log configures the logger
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Link: Link{
			MTU:          aipp.DefaultMTU,
			PollInterval: tunnel.DefaultPollInterval,
			ResendEvery:  tunnel.DefaultResendEvery,
			Timeout:      tunnel.DefaultTimeout,
			ChunkDelay:   host.DefaultChunkDelay,
		},
		Serial: Serial{Baud: 115200},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

type fileConfig struct {
	Link struct {
		MTU           int    `toml:"mtu"`
		PollInterval  string `toml:"poll_interval"`
		ResendEvery   int    `toml:"resend_every"`
		Timeout       int    `toml:"timeout"`
		ChunkDelay    string `toml:"chunk_delay"`
		LegacyMarkers bool   `toml:"legacy_markers"`
		PadChunks     bool   `toml:"pad_chunks"`
	} `toml:"link"`
	Serial struct {
		Port string `toml:"port"`
		Baud int    `toml:"baud"`
	} `toml:"serial"`
	WebSocket struct {
		URL         string `toml:"url"`
		Username    string `toml:"username"`
		NoSSLVerify bool   `toml:"no_ssl_verify"`
	} `toml:"websocket"`
	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
	} `toml:"log"`
}

// Load reads path over the defaults. An empty path skips the file. Keys
// missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("link", "mtu") {
		cfg.Link.MTU = raw.Link.MTU
	}
	if meta.IsDefined("link", "poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Link.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse link.poll_interval: %w", err)
		}
		cfg.Link.PollInterval = d
	}
	if meta.IsDefined("link", "resend_every") {
		cfg.Link.ResendEvery = raw.Link.ResendEvery
	}
	if meta.IsDefined("link", "timeout") {
		cfg.Link.Timeout = raw.Link.Timeout
	}
	if meta.IsDefined("link", "chunk_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Link.ChunkDelay))
		if err != nil {
			return Config{}, fmt.Errorf("parse link.chunk_delay: %w", err)
		}
		cfg.Link.ChunkDelay = d
	}
	if meta.IsDefined("link", "legacy_markers") {
		cfg.Link.LegacyMarkers = raw.Link.LegacyMarkers
	}
	if meta.IsDefined("link", "pad_chunks") {
		cfg.Link.PadChunks = raw.Link.PadChunks
	}

	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.Baud = raw.Serial.Baud
	}

	if meta.IsDefined("websocket", "url") {
		cfg.WebSocket.URL = strings.TrimSpace(raw.WebSocket.URL)
	}
	if meta.IsDefined("websocket", "username") {
		cfg.WebSocket.Username = strings.TrimSpace(raw.WebSocket.Username)
	}
	if meta.IsDefined("websocket", "no_ssl_verify") {
		cfg.WebSocket.SkipSSLVerify = raw.WebSocket.NoSSLVerify
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}

	return cfg, nil
}

// Environment variables read by ApplyEnv
const (
	EnvPort          = "AIPP_PORT"
	EnvBaud          = "AIPP_BAUD"
	EnvURL           = "AIPP_URL"
	EnvUsername      = "AIPP_USERNAME"
	EnvPassword      = "AIPP_PASSWORD"
	EnvMTU           = "AIPP_MTU"
	EnvLegacyMarkers = "AIPP_LEGACY_MARKERS"
	EnvLogFile       = "AIPP_LOG_FILE"
)

// ApplyEnv overrides values from AIPP_* variables. AIPP_LOG_LEVEL is
// handled by the logging package.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvPort); ok {
		c.Serial.Port = v
	}
	if v, ok := lookup(EnvBaud); ok {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvBaud, err)
		}
		c.Serial.Baud = baud
	}
	if v, ok := lookup(EnvURL); ok {
		c.WebSocket.URL = v
	}
	if v, ok := lookup(EnvUsername); ok {
		c.WebSocket.Username = v
	}
	if v, ok := lookup(EnvMTU); ok {
		mtu, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMTU, err)
		}
		c.Link.MTU = mtu
	}
	if v, ok := lookup(EnvLegacyMarkers); ok {
		legacy, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLegacyMarkers, err)
		}
		c.Link.LegacyMarkers = legacy
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Log.File = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Validate checks every section
func (c Config) Validate() error {
	var errs []error
	if err := c.Tunnel().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("link: %w", err))
	}
	if c.Link.Timeout < 0 {
		errs = append(errs, fmt.Errorf("link: timeout must not be negative, got %d", c.Link.Timeout))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial: baud must be positive, got %d", c.Serial.Baud))
	}
	if c.WebSocket.URL != "" && !strings.HasPrefix(c.WebSocket.URL, "ws://") && !strings.HasPrefix(c.WebSocket.URL, "wss://") {
		errs = append(errs, fmt.Errorf("websocket: url must use ws:// or wss://, got %q", c.WebSocket.URL))
	}
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		errs = append(errs, errors.New("log: rotation limits must not be negative"))
	}
	return errors.Join(errs...)
}

// Tunnel returns the device-side link config
func (c Config) Tunnel() tunnel.Config {
	return tunnel.Config{
		MTU:           c.Link.MTU,
		PollInterval:  c.Link.PollInterval,
		ResendEvery:   c.Link.ResendEvery,
		Timeout:       c.Link.Timeout,
		ChunkDelay:    c.Link.ChunkDelay,
		LegacyMarkers: c.Link.LegacyMarkers,
		PadChunks:     c.Link.PadChunks,
	}
}

// Host returns the host debugger config
func (c Config) Host() host.Config {
	cfg := host.DefaultConfig()
	cfg.MTU = c.Link.MTU
	cfg.ChunkDelay = c.Link.ChunkDelay
	cfg.LegacyMarkers = c.Link.LegacyMarkers
	cfg.PadChunks = c.Link.PadChunks
	return cfg
}

// Logging returns the logger options
func (c Config) Logging() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// Framer builds a framer for the link settings
func (c Config) Framer() (*aipp.Framer, error) {
	var opts []aipp.FramerOption
	if c.Link.LegacyMarkers {
		opts = append(opts, aipp.WithLegacyMarkers())
	}
	if c.Link.PadChunks {
		opts = append(opts, aipp.WithPadding())
	}
	return aipp.NewFramer(c.Link.MTU, opts...)
}
