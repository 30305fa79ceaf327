// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package channel

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketSlot carries one slot value per binary WebSocket message
type WebSocketSlot struct {
	conn    *websocket.Conn
	inbound latch
	writeMu sync.Mutex
	logger  zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closing   chan struct{}
}

// DialOptions configures a WebSocket connection
type DialOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	Timeout       time.Duration
}

// NewWebSocketSlot starts reading binary messages from conn
func NewWebSocketSlot(conn *websocket.Conn, logger zerolog.Logger) *WebSocketSlot {
	w := &WebSocketSlot{
		conn:    conn,
		logger:  logger,
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

// DialWebSocket opens a WebSocket connection with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, opts DialOptions, logger zerolog.Logger) (*WebSocketSlot, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocketSlot(conn, logger.With().Str("url", opts.URL).Logger()), nil
}

func (w *WebSocketSlot) readLoop() {
	defer close(w.done)
	defer w.inbound.close()

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.closing:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					w.logger.Warn().Err(err).Msg("websocket read failed")
				}
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.inbound.store(data)
	}
}

// Write sends one slot value as a binary message
func (w *WebSocketSlot) Write(p []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Read returns the newest binary message received
func (w *WebSocketSlot) Read() ([]byte, error) {
	return w.inbound.load()
}

// Done is closed once the reader has stopped
func (w *WebSocketSlot) Done() <-chan struct{} {
	return w.done
}

// Close closes the connection and waits for the reader to stop
func (w *WebSocketSlot) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closing)
		w.writeMu.Lock()
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
		<-w.done
	})
	return err
}
