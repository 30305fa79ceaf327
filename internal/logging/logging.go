// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package logging builds the process logger: a console writer on stderr
// and an optional rotating log file.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel   = "AIPP_LOG_LEVEL"
	EnvLogNoColor = "AIPP_LOG_NOCOLOR"
)

// Options selects the sinks and level
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	NoColor    bool
}

// Setup returns a logger for app. The returned closer releases the log
// file and is safe to call when no file is configured.
func Setup(app string, opts Options, stderr io.Writer) (zerolog.Logger, io.Closer) {
	applyEnvOverrides(&opts)

	level, ok := parseLevel(opts.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        stderr,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		out = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	return logger, closer
}

func applyEnvOverrides(opts *Options) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		opts.Level = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

// ValidLevel reports whether raw names a log level
func ValidLevel(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	_, ok := parseLevel(raw)
	return ok
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
