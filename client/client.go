// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client speaks the webcli event protocol over a WebSocket.
//
// Dial authenticates during the handshake; a rejected credential
// surfaces as ErrRejected carrying the server's message. After that,
// outbound events go through the typed helpers (Connect, Command,
// ChangeDirectory, ...) and every inbound frame arrives on Events in
// server order. Events is closed when the connection ends; Err reports
// why.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/webcli/dispatch"
	"github.com/bureau-foundation/webcli/lib/netutil"
	"github.com/bureau-foundation/webcli/protocol"
)

// ErrRejected is returned by Dial when the server refuses the
// handshake.
var ErrRejected = errors.New("connection rejected")

const writeWait = 10 * time.Second

// Client is one authenticated connection. Send methods are safe for
// concurrent use.
type Client struct {
	socket  *websocket.Conn
	events  chan protocol.Frame
	done    chan struct{}
	closing chan struct{}

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Dial connects to serverURL with credential. serverURL may be the
// WebSocket endpoint itself (ws://host/ws) or the server's HTTP base
// (http://host:3001), in which case /ws is appended.
func Dial(ctx context.Context, serverURL, credential string) (*Client, error) {
	endpoint, err := Endpoint(serverURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}
	socket, response, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if response != nil {
			defer response.Body.Close()
			if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: %s", ErrRejected, netutil.ErrorBody(response.Body))
			}
		}
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	client := &Client{
		socket:  socket,
		events:  make(chan protocol.Frame, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go client.readLoop()
	return client, nil
}

// Endpoint normalizes serverURL to the WebSocket endpoint URL.
func Endpoint(serverURL string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server URL: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("server URL %q: scheme must be http, https, ws, or wss", serverURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("server URL %q has no host", serverURL)
	}
	if strings.TrimSuffix(parsed.Path, "/") == "" {
		parsed.Path = "/ws"
	}
	return parsed.String(), nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)
	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.setErr(err)
			}
			return
		}
		frame, err := protocol.Decode(message)
		if err != nil {
			c.setErr(err)
			return
		}
		select {
		case c.events <- frame:
		case <-c.closing:
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Events delivers inbound frames. Closed when the connection ends.
func (c *Client) Events() <-chan protocol.Frame {
	return c.events
}

// Err returns the error that ended the connection, or nil for a clean
// close. Meaningful once Events is closed.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send writes one event frame.
func (c *Client) Send(event string, data any) error {
	message, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.socket.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:realclock socket deadline
	if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}

// Connect attaches to sessionID, creating it if needed. Empty
// arguments take the server defaults.
func (c *Client) Connect(sessionID, workingDirectory string) error {
	return c.Send(protocol.EventConnect, protocol.ConnectRequest{
		SessionID:        sessionID,
		WorkingDirectory: workingDirectory,
	})
}

// Command runs text on the attached session. The response carries id
// as its commandId.
func (c *Client) Command(id, text string) error {
	return c.Send(protocol.EventCommand, protocol.CommandRequest{
		ID:        id,
		Text:      text,
		Timestamp: dispatch.FormatTimestamp(time.Now()), //nolint:realclock wall-clock request stamp
	})
}

// ChangeDirectory changes the attached session's working directory.
func (c *Client) ChangeDirectory(path string) error {
	return c.Send(protocol.EventChangeDirectory, protocol.ChangeDirectoryRequest{Path: path})
}

// Interrupt cancels the command in flight on this connection.
func (c *Client) Interrupt() error {
	return c.Send(protocol.EventInterrupt, protocol.InterruptRequest{})
}

// GetSessions requests the caller's session list.
func (c *Client) GetSessions() error {
	return c.Send(protocol.EventGetSessions, nil)
}

// Disconnect removes sessionID from the server; empty means the
// attached session.
func (c *Client) Disconnect(sessionID string) error {
	return c.Send(protocol.EventDisconnect, protocol.DisconnectRequest{SessionID: sessionID})
}

// Close sends a close frame, closes the socket, and waits for the
// reader to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.writeMu.Lock()
		c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait)) //nolint:realclock socket deadline
		c.writeMu.Unlock()

		// Give the server a moment to echo the close, then force it.
		select {
		case <-c.done:
		case <-time.After(time.Second): //nolint:realclock close handshake bound
		}
		err = c.socket.Close()
		<-c.done
	})
	if err != nil && !netutil.IsExpectedCloseError(err) {
		return err
	}
	return nil
}
