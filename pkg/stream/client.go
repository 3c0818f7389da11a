/*
 * Copyright 2025 ThreatLens Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package stream manages the persistent WebSocket push channel to the
// backend: connect, auto-reconnect with backoff, and observer fan-out of
// typed messages and status changes.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
)

// Status is the connection state visible to observers.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultMaxReconnects  = 5
	writeTimeout          = 10 * time.Second
)

// ErrNotConnected is returned by Send when the channel is not open. Callers
// treating send as fire-and-forget may ignore it; the client has already
// logged a warning.
var ErrNotConnected = errors.New("websocket not connected")

var errURLRequired = errors.New("stream url is required")

// MessageHandler observes inbound push-channel messages.
type MessageHandler func(msg models.WireMessage)

// StatusHandler observes connection status transitions.
type StatusHandler func(status Status)

// Config configures the stream client.
type Config struct {
	URL string `json:"url"`

	// ReconnectDelay is the base backoff delay; it doubles per attempt.
	ReconnectDelay time.Duration `json:"-"`

	// MaxReconnectAttempts caps automatic reconnects. Exceeding the cap
	// leaves the client disconnected until Connect is called again.
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`
}

// Validate fills config defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errURLRequired
	}

	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}

	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}

	return nil
}

// Client owns a single persistent push channel. A process should construct
// exactly one and inject it into whatever owns the reconciliation state.
type Client struct {
	config Config
	logger logger.Logger
	dialer *websocket.Dialer

	mu                sync.Mutex
	conn              *websocket.Conn
	status            Status
	manualClose       bool
	reconnectAttempts int
	reconnectTimer    *time.Timer

	handlerID       int
	messageHandlers map[int]MessageHandler
	statusHandlers  map[int]StatusHandler

	// statusCh serializes observer notification so transitions are
	// delivered in the order they occurred.
	statusCh chan Status
}

// NewClient creates a stream client. Connect must be called to open the
// channel.
func NewClient(config Config, log logger.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:          config,
		logger:          log,
		dialer:          websocket.DefaultDialer,
		status:          StatusDisconnected,
		messageHandlers: make(map[int]MessageHandler),
		statusHandlers:  make(map[int]StatusHandler),
		statusCh:        make(chan Status, 64),
	}

	go c.notifyLoop()

	return c, nil
}

// notifyLoop fans status transitions out to observers, one at a time, in
// arrival order.
func (c *Client) notifyLoop() {
	for status := range c.statusCh {
		c.mu.Lock()
		handlers := make([]StatusHandler, 0, len(c.statusHandlers))

		for _, h := range c.statusHandlers {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(status)
		}
	}
}

// Connect establishes the push channel. It is idempotent while connected
// and returns immediately; the dial runs in the background. A failed dial
// schedules an automatic retry with exponential backoff. Calling Connect
// while a retry is pending cancels the retry and dials now.
func (c *Client) Connect() {
	c.mu.Lock()

	if c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		c.logger.Debug().Msg("WebSocket already connected")

		return
	}

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	c.manualClose = false
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	go c.dial()
}

// Disconnect closes the channel and suppresses auto-reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()

	c.manualClose = true

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	conn := c.conn
	c.conn = nil
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Send transmits a structured payload. It warns and returns ErrNotConnected
// when the channel is not open.
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.status != StatusConnected {
		c.logger.Warn().Interface("payload", v).Msg("WebSocket not connected, dropping outbound message")
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}

	return nil
}

// SendHandshake announces the current scenario epoch to the backend.
func (c *Client) SendHandshake(epoch int64) error {
	return c.Send(models.NewHandshake(epoch))
}

// RequestState asks the backend to resend the full initial state.
func (c *Client) RequestState() error {
	return c.Send(models.NewRequestState())
}

// OnMessage registers a message observer and returns its unsubscribe func.
func (c *Client) OnMessage(handler MessageHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlerID++
	id := c.handlerID
	c.messageHandlers[id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.messageHandlers, id)
	}
}

// OnStatus registers a status observer and returns its unsubscribe func.
func (c *Client) OnStatus(handler StatusHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlerID++
	id := c.handlerID
	c.statusHandlers[id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.statusHandlers, id)
	}
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

func (c *Client) dial() {
	c.logger.Info().Str("url", c.config.URL).Msg("Connecting to WebSocket")

	conn, resp, err := c.dialer.Dial(c.config.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		c.logger.Error().Err(err).Str("url", c.config.URL).Msg("WebSocket connection error")

		c.mu.Lock()
		c.setStatusLocked(StatusError)
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		return
	}

	c.mu.Lock()

	if c.manualClose {
		// Disconnect raced the dial; drop the fresh connection.
		c.mu.Unlock()
		_ = conn.Close()

		return
	}

	if prev := c.conn; prev != nil {
		// A stale dial is landing after a newer one; only one channel
		// may be live.
		_ = prev.Close()
	}

	c.conn = conn
	c.reconnectAttempts = 0
	c.setStatusLocked(StatusConnected)
	c.mu.Unlock()

	c.logger.Info().Msg("WebSocket connected successfully")

	go c.readLoop(conn)
}

// readLoop consumes inbound frames until the connection closes. Malformed
// payloads are logged per message without closing the connection;
// heartbeats are filtered before dispatch.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		var msg models.WireMessage

		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error().Err(err).Msg("Error parsing WebSocket message")
			continue
		}

		if msg.Type == models.MessageHeartbeat {
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg models.WireMessage) {
	c.mu.Lock()
	handlers := make([]MessageHandler, 0, len(c.messageHandlers))

	for _, h := range c.messageHandlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()

	if c.conn != conn {
		// A newer connection replaced this one; nothing to do.
		c.mu.Unlock()
		return
	}

	c.conn = nil
	manual := c.manualClose

	if manual {
		c.mu.Unlock()
		return
	}

	c.logger.Info().Err(err).Msg("WebSocket closed")
	c.setStatusLocked(StatusDisconnected)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// scheduleReconnectLocked arms the backoff timer. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.manualClose {
		return
	}

	if c.reconnectAttempts >= c.config.MaxReconnectAttempts {
		c.logger.Error().
			Int("attempts", c.reconnectAttempts).
			Msg("Max reconnection attempts reached, giving up")

		// Manual reconnect (or a system reset) is required from here.
		c.setStatusLocked(StatusDisconnected)

		return
	}

	c.reconnectAttempts++
	delay := c.config.ReconnectDelay * time.Duration(1<<(c.reconnectAttempts-1))

	c.logger.Info().
		Int("attempt", c.reconnectAttempts).
		Int("max_attempts", c.config.MaxReconnectAttempts).
		Dur("delay", delay).
		Msg("Scheduling WebSocket reconnect")

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()

		// A manual Connect may have raced the timer; it owns the dial.
		if c.manualClose || c.status == StatusConnecting || c.status == StatusConnected {
			c.mu.Unlock()
			return
		}

		c.setStatusLocked(StatusConnecting)
		c.mu.Unlock()

		c.dial()
	})
}

// setStatusLocked updates status and queues observer notification. Caller
// holds c.mu; delivery happens on the notify loop so handlers may call back
// into the client without deadlocking.
func (c *Client) setStatusLocked(status Status) {
	if c.status == status {
		return
	}

	c.status = status

	select {
	case c.statusCh <- status:
	default:
		c.logger.Warn().Str("status", string(status)).Msg("Status observer queue full, dropping notification")
	}
}
