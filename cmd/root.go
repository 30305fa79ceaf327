// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"io"
	"os"

	"github.com/blocklypy/aipp/internal/config"
	"github.com/blocklypy/aipp/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Link flags
	linkMTU       int
	legacyMarkers bool

	// Logging flags
	logLevel string
	logFile  string
)

var (
	cfg       config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "aipp",
	Short: "Hub debug tunnel tools",
	Long: `aipp - Debug and plot tunnel tools for programmable hubs.

Speaks the chunked debug tunnel carried over a single shared value slot:
monitor traffic, debug a trapped program, replay recorded traces, and run a
simulated hub program for testing.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config (TOML), then AIPP_* environment variables,
then flags. For WebSocket authentication, the password is read from the
AIPP_PASSWORD environment variable, or prompted interactively if not set.`,
	Version:            "0.3.0",
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLog,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Link flags
	rootCmd.PersistentFlags().IntVar(&linkMTU, "mtu", 19, "Slot size in bytes including marker and terminator")
	rootCmd.PersistentFlags().BoolVar(&legacyMarkers, "legacy-markers", false, "Use 0xFF as the start marker")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
}

// loadConfig layers the config file, environment and changed flags
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := loaded.ApplyEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Serial.Port = portName
	}
	if flags.Changed("baud") {
		loaded.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		loaded.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		loaded.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.WebSocket.SkipSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("mtu") {
		loaded.Link.MTU = linkMTU
	}
	if flags.Changed("legacy-markers") {
		loaded.Link.LegacyMarkers = legacyMarkers
	}
	if flags.Changed("log-level") {
		loaded.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		loaded.Log.File = logFile
	}

	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	logger, logCloser = logging.Setup(cmd.Root().Name(), cfg.Logging(), os.Stderr)
	logger = logger.With().Str("cmd", cmd.Name()).Logger()
	return nil
}

func closeLog(cmd *cobra.Command, args []string) error {
	if logCloser == nil {
		return nil
	}
	return logCloser.Close()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
