// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/webcli/dispatch"
	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/netutil"
	"github.com/bureau-foundation/webcli/protocol"
	"github.com/bureau-foundation/webcli/session"
)

const (
	// wsWriteWait bounds a single frame write.
	wsWriteWait = 10 * time.Second

	// wsPongWait is how long the reader waits for any frame (pongs
	// included) before declaring the peer dead.
	wsPongWait = 60 * time.Second

	// wsPingPeriod must be shorter than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// outboundBuffer and inboundBuffer size the per-connection queues.
	// A full inbound queue stops the reader, which backpressures the
	// peer through TCP.
	outboundBuffer = 64
	inboundBuffer  = 32
)

// User-visible error texts.
const (
	messageNotConnected   = "Session not connected. Send cli:connect first."
	messageInvalidCommand = "Invalid command format."
	messageInvalidPath    = "Invalid path for changing directory."
	messageInvalidEvent   = "Invalid event format."
)

// State is a connection's lifecycle position.
type State int

const (
	// StateAuthenticated: upgraded with a valid credential, no session.
	StateAuthenticated State = iota
	// StateActive: attached to a session by cli:connect.
	StateActive
	// StateClosed: socket closed, session detached.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errNotConnected = errors.New(messageNotConnected)

// connection is one upgraded WebSocket and the state bound to it.
type connection struct {
	id       string
	identity credential.Identity
	socket   *websocket.Conn
	server   *Server
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte
	inbound  chan protocol.Frame

	mu      sync.Mutex
	state   State
	session *session.Session
	// cancelCommand cancels the event the worker is processing, or is
	// nil when the worker is idle.
	cancelCommand context.CancelFunc
}

func newConnection(server *Server, socket *websocket.Conn, identity credential.Identity) *connection {
	id := uuid.NewString()
	return &connection{
		id:       id,
		identity: identity,
		socket:   socket,
		server:   server,
		logger: server.logger.With(
			"connection_id", id,
			"user_id", identity.ID,
			"email", identity.Email,
		),
		outbound: make(chan []byte, outboundBuffer),
		inbound:  make(chan protocol.Frame, inboundBuffer),
		state:    StateAuthenticated,
	}
}

// serve runs the connection until the peer goes away or parent is
// cancelled. The calling goroutine becomes the reader.
func (c *connection) serve(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)
	c.logger.Info("websocket connected")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.work()
	}()

	c.readPump()
	c.cancel()
	wg.Wait()

	c.mu.Lock()
	attached := c.session
	c.session = nil
	c.state = StateClosed
	c.mu.Unlock()

	if attached != nil {
		attached.Detach()
		// The idle timer starts from the disconnect.
		c.server.registry.Touch(attached.ID)
	}
	c.logger.Info("websocket disconnected")
}

// readPump owns the socket's read side.
func (c *connection) readPump() {
	c.socket.SetReadLimit(protocol.MaxFrameSize)
	c.socket.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:realclock socket deadline
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:realclock socket deadline
	})

	for {
		messageType, message, err := c.socket.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !netutil.IsExpectedCloseError(err) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.socket.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:realclock socket deadline

		if messageType != websocket.TextMessage {
			c.sendError(messageInvalidEvent)
			continue
		}
		frame, err := protocol.Decode(message)
		if err != nil {
			c.logger.Debug("malformed frame", "error", err)
			c.sendError(messageInvalidEvent)
			continue
		}

		switch frame.Event {
		case protocol.EventInterrupt:
			c.interrupt()
		case protocol.EventConnect, protocol.EventCommand, protocol.EventChangeDirectory,
			protocol.EventGetSessions, protocol.EventDisconnect:
			select {
			case c.inbound <- frame:
			case <-c.ctx.Done():
				return
			}
		default:
			c.sendError("Unknown event: " + frame.Event)
		}
	}
}

// writePump owns the socket's write side. It closes the socket on
// exit, which unblocks readPump.
func (c *connection) writePump() {
	ticker := time.NewTicker(wsPingPeriod) //nolint:realclock keepalive
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message := <-c.outbound:
			c.socket.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:realclock socket deadline
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					c.logger.Warn("websocket write failed", "error", err)
				}
				c.cancel()
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:realclock socket deadline
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait)) //nolint:realclock socket deadline
			return
		}
	}
}

// work processes queued events strictly in arrival order.
func (c *connection) work() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.inbound:
			c.handle(frame)
		}
	}
}

func (c *connection) handle(frame protocol.Frame) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	c.cancelCommand = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelCommand = nil
		c.mu.Unlock()
		cancel()
	}()

	switch frame.Event {
	case protocol.EventConnect:
		c.handleConnect(frame.Data)
	case protocol.EventCommand:
		c.handleCommand(ctx, frame.Data)
	case protocol.EventChangeDirectory:
		c.handleChangeDirectory(ctx, frame.Data)
	case protocol.EventGetSessions:
		c.handleGetSessions()
	case protocol.EventDisconnect:
		c.handleDisconnect(frame.Data)
	}
}

// send queues an outbound event. It gives up silently once the
// connection is closing.
func (c *connection) send(event string, data any) {
	message, err := protocol.Encode(event, data)
	if err != nil {
		c.logger.Error("encoding outbound event", "event", event, "error", err)
		return
	}
	select {
	case c.outbound <- message:
	case <-c.ctx.Done():
	}
}

func (c *connection) sendError(message string) {
	c.send(protocol.EventError, protocol.ErrorMessage{Message: message})
}

// sendErrorResponse answers a command with an error envelope built
// outside the dispatcher.
func (c *connection) sendErrorResponse(commandID, message string, category dispatch.ErrorCategory) {
	c.logger.Debug("command refused", "command_id", commandID, "category", category, "reason", message)
	c.send(protocol.EventResponse, dispatch.Envelope{
		ID:        responseID(commandID),
		CommandID: commandID,
		Type:      dispatch.TypeError,
		Content:   message,
		Timestamp: dispatch.FormatTimestamp(c.server.registry.Now()),
	})
}

func responseID(commandID string) string {
	if commandID == "" {
		return uuid.NewString()
	}
	return commandID + "-response"
}

func (c *connection) handleConnect(data json.RawMessage) {
	var request protocol.ConnectRequest
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &request); err != nil {
			c.sendError("Invalid connect payload.")
			return
		}
	}
	sessionID := request.SessionID
	if sessionID == "" {
		sessionID = c.id
	}

	registry := c.server.registry
	c.mu.Lock()
	previous := c.session
	c.mu.Unlock()

	attached, created := previous, false
	if previous == nil || previous.ID != sessionID {
		var err error
		attached, created, err = registry.AttachOrCreate(sessionID, c.identity.ID, request.WorkingDirectory)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if previous != nil {
			previous.Detach()
		}
	}

	c.mu.Lock()
	c.session = attached
	c.state = StateActive
	c.mu.Unlock()
	registry.Touch(attached.ID)

	c.logger.Info("session attached", "session_id", attached.ID, "created", created)
	c.send(protocol.EventConnected, protocol.Connected{
		SessionID:        attached.ID,
		WorkingDirectory: attached.WorkingDirectory(),
		Message:          "Successfully connected to CLI backend. Session ID: " + attached.ID,
	})
}

// target returns the session an event acts on: the attached session,
// or another live session named by requestedID.
func (c *connection) target(requestedID any) (*session.Session, error) {
	c.mu.Lock()
	state, attached := c.state, c.session
	c.mu.Unlock()

	if state != StateActive || attached == nil {
		return nil, errNotConnected
	}
	id, _ := requestedID.(string)
	if id == "" || id == attached.ID {
		return attached, nil
	}
	other, err := c.server.registry.Get(id)
	if err != nil {
		return nil, errors.New("Session not found: " + id)
	}
	return other, nil
}

func (c *connection) handleCommand(ctx context.Context, data json.RawMessage) {
	// Validated field by field so a wrong type gets the command-format
	// response rather than a decode error.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		c.sendErrorResponse("", messageInvalidCommand, dispatch.CategoryMalformed)
		return
	}
	commandID, _ := raw["id"].(string)
	text, ok := raw["text"].(string)
	if !ok || text == "" {
		c.sendErrorResponse(commandID, messageInvalidCommand, dispatch.CategoryMalformed)
		return
	}

	target, err := c.target(raw["sessionId"])
	if err != nil {
		c.sendErrorResponse(commandID, err.Error(), dispatch.CategoryMalformed)
		return
	}

	verb, _ := dispatch.Split(text)
	release, err := target.Acquire(ctx)
	if err != nil {
		c.sendErrorResponse(commandID, "Command \""+verb+"\" interrupted.", dispatch.CategoryCancelled)
		return
	}
	defer release()

	registry := c.server.registry
	registry.Touch(target.ID)
	envelope := c.server.dispatcher.Execute(ctx, dispatch.Command{ID: commandID, Text: text}, target)
	registry.Touch(target.ID)

	logger := c.logger.With("session_id", target.ID, "command_id", commandID, "verb", verb)
	if envelope.Type == dispatch.TypeError {
		logger.Debug("command failed", "category", envelope.Category)
	} else {
		logger.Debug("command executed", "type", envelope.Type)
	}
	c.send(protocol.EventResponse, envelope)
}

func (c *connection) handleChangeDirectory(ctx context.Context, data json.RawMessage) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		c.sendError(messageInvalidPath)
		return
	}
	path, ok := raw["path"].(string)
	if !ok {
		c.sendError(messageInvalidPath)
		return
	}

	target, err := c.target(raw["sessionId"])
	if err != nil {
		c.sendError(err.Error())
		return
	}

	release, err := target.Acquire(ctx)
	if err != nil {
		c.sendError("Error changing directory: interrupted")
		return
	}
	directory, err := session.ChangeDirectory(target, path)
	release()
	c.server.registry.Touch(target.ID)
	if err != nil {
		c.logger.Debug("change directory failed", "session_id", target.ID, "error", err)
		c.sendError("Error changing directory: " + err.Error())
		return
	}

	c.send(protocol.EventDirectoryChanged, protocol.DirectoryChanged{
		Path:      directory,
		SessionID: target.ID,
	})
	c.send(protocol.EventResponse, dispatch.Envelope{
		ID:        uuid.NewString(),
		Type:      dispatch.TypeText,
		Content:   "Working directory changed to: " + directory,
		Timestamp: dispatch.FormatTimestamp(c.server.registry.Now()),
	})
}

func (c *connection) handleGetSessions() {
	infos := c.server.registry.ListByOwner(c.identity.ID)
	sessions := make([]protocol.SessionInfo, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, protocol.SessionInfo{
			ID:               info.ID,
			UserID:           info.UserID,
			IsActive:         info.IsActive,
			CreatedAt:        dispatch.FormatTimestamp(info.CreatedAt),
			LastActivity:     dispatch.FormatTimestamp(info.LastActivity),
			WorkingDirectory: info.WorkingDirectory,
		})
	}
	c.send(protocol.EventSessions, sessions)
}

func (c *connection) handleDisconnect(data json.RawMessage) {
	var request protocol.DisconnectRequest
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &request); err != nil {
			c.sendError("Invalid disconnect payload.")
			return
		}
	}

	c.mu.Lock()
	attached := c.session
	sessionID := request.SessionID
	if sessionID == "" && attached != nil {
		sessionID = attached.ID
	}
	detaching := attached != nil && attached.ID == sessionID
	if detaching {
		c.session = nil
		c.state = StateAuthenticated
	}
	c.mu.Unlock()

	if sessionID == "" {
		c.sendError(messageNotConnected)
		return
	}
	if detaching {
		attached.Detach()
	}
	switch err := c.server.registry.Remove(sessionID); {
	case err == nil:
		c.logger.Info("session removed", "session_id", sessionID)
	case errors.Is(err, session.ErrAttached) && detaching:
		c.logger.Info("session detached; still attached elsewhere", "session_id", sessionID)
	case errors.Is(err, session.ErrAttached):
		c.sendError("Session " + sessionID + " is attached to another connection.")
		return
	}
	c.send(protocol.EventDisconnected, protocol.Disconnected{SessionID: sessionID})
}

// interrupt cancels whatever the worker is processing. Called from the
// reader so it is not queued behind the event it cancels.
func (c *connection) interrupt() {
	c.mu.Lock()
	cancel := c.cancelCommand
	sessionID := ""
	if c.session != nil {
		sessionID = c.session.ID
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Debug("interrupt", "session_id", sessionID, "cancelled", cancel != nil)
	c.send(protocol.EventInterrupted, protocol.Interrupted{
		SessionID: sessionID,
		Cancelled: cancel != nil,
	})
}
