// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/blocklypy/aipp/internal/config"
	"github.com/blocklypy/aipp/pkg/channel"
	"golang.org/x/term"
)

const (
	connectAttempts = 5
	connectDelay    = time.Second
)

// errNoConnection is returned when neither --port nor --url is set
var errNoConnection = errors.New("either --port or --url must be specified")

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(config.EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket slot from the loaded
// config. Hubs reboot when a program starts, so failed opens are retried.
func OpenConnection(ctx context.Context) (channel.Slot, string, error) {
	switch {
	case cfg.WebSocket.URL != "":
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		opts := channel.DialOptions{
			URL:           cfg.WebSocket.URL,
			Username:      cfg.WebSocket.Username,
			Password:      password,
			SkipSSLVerify: cfg.WebSocket.SkipSSLVerify,
		}
		slot, err := connect(ctx, "websocket", func() (channel.Slot, error) {
			return channel.DialWebSocket(ctx, opts, logger)
		})
		if err != nil {
			return nil, "", err
		}
		return slot, fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL), nil

	case cfg.Serial.Port != "":
		slot, err := connect(ctx, "serial", func() (channel.Slot, error) {
			return channel.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, logger)
		})
		if err != nil {
			return nil, "", err
		}
		return slot, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", errNoConnection
}

func connect(ctx context.Context, kind string, open func() (channel.Slot, error)) (channel.Slot, error) {
	return retry.NewWithData[channel.Slot](
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Str("link", kind).Uint("attempt", n+1).Msg("connect failed, retrying")
		}),
	).Do(open)
}
