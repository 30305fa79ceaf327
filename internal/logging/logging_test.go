// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw   string
		level zerolog.Level
		ok    bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" Debug ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		level, ok := parseLevel(tt.raw)
		assert.Equal(t, tt.level, level, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}

func TestSetup_ConsoleLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	var buf bytes.Buffer
	logger, closer := Setup("aipp", Options{Level: "warn", NoColor: true}, &buf)
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_EnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer
	logger, closer := Setup("aipp", Options{Level: "debug", NoColor: true}, &buf)
	defer closer.Close()

	logger.Warn().Msg("hidden")
	assert.Zero(t, buf.Len(), "env level applied")
}

func TestSetup_File(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "aipp.log")
	var buf bytes.Buffer
	logger, closer := Setup("aipp", Options{File: path, MaxSizeMB: 1, NoColor: true}, &buf)

	logger.Info().Str("port", "/dev/ttyACM0").Msg("connected")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"connected"`)
	assert.Contains(t, buf.String(), "connected")
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel(""))
	assert.True(t, ValidLevel("trace"))
	assert.False(t, ValidLevel("verbose"))
}
