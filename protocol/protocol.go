// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the webcli event wire format shared by the
// gateway and its clients.
//
// Every WebSocket text message is one JSON frame:
//
//	{"event": "cli:command", "data": {"id": "c1", "text": "ls"}}
//
// Event names carry a "cli:" prefix. The payload schema depends on the
// event; the types in this package document each one.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client to server events.
const (
	// EventConnect attaches the connection to a session, creating it
	// if needed. Payload: ConnectRequest. Reply: EventConnected.
	EventConnect = "cli:connect"

	// EventCommand runs one command line. Payload: CommandRequest.
	// Reply: exactly one EventResponse with the same command ID.
	EventCommand = "cli:command"

	// EventChangeDirectory changes the session's working directory.
	// Payload: ChangeDirectoryRequest. Reply: EventDirectoryChanged
	// followed by a text EventResponse, or EventError.
	EventChangeDirectory = "cli:change-directory"

	// EventInterrupt cancels the command currently running on this
	// connection. Handled out of band, ahead of queued events.
	// Payload: InterruptRequest. Reply: EventInterrupted.
	EventInterrupt = "cli:interrupt"

	// EventGetSessions lists the caller's sessions. Payload: none.
	// Reply: EventSessions.
	EventGetSessions = "cli:get-sessions"

	// EventDisconnect removes a session from the server. Payload:
	// DisconnectRequest. Reply: EventDisconnected.
	EventDisconnect = "cli:disconnect"
)

// Server to client events.
const (
	// EventConnected confirms EventConnect. Payload: Connected.
	EventConnected = "cli:connected"

	// EventResponse carries a Response envelope.
	EventResponse = "cli:response"

	// EventDirectoryChanged reports the new working directory.
	// Payload: DirectoryChanged.
	EventDirectoryChanged = "cli:directory-changed"

	// EventError reports an event that could not be processed.
	// Payload: ErrorMessage.
	EventError = "cli:error"

	// EventInterrupted acknowledges EventInterrupt. Payload:
	// Interrupted.
	EventInterrupted = "cli:interrupted"

	// EventSessions answers EventGetSessions. Payload: []SessionInfo.
	EventSessions = "cli:sessions"

	// EventDisconnected acknowledges EventDisconnect. Payload:
	// Disconnected.
	EventDisconnected = "cli:disconnected"
)

// MaxFrameSize bounds inbound frames. Commands are single lines; 64 KB
// leaves room for long echo arguments.
const MaxFrameSize = 64 << 10

// Frame is one wire message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrMalformedFrame is returned by Decode for anything that is not a
// JSON object with a non-empty string event.
var ErrMalformedFrame = errors.New("malformed frame")

// Encode builds the wire form of event with payload data. A nil data
// omits the data field.
func Encode(event string, data any) ([]byte, error) {
	frame := Frame{Event: event}
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", event, err)
		}
		frame.Data = encoded
	}
	return json.Marshal(frame)
}

// Decode parses one wire message.
func Decode(message []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	return frame, nil
}

// ConnectRequest is the EventConnect payload. Both fields are
// optional: the session ID defaults to the connection ID and the
// working directory to the server default.
type ConnectRequest struct {
	SessionID        string `json:"sessionId,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}

// Connected is the EventConnected payload.
type Connected struct {
	SessionID        string `json:"sessionId"`
	WorkingDirectory string `json:"workingDirectory"`
	Message          string `json:"message"`
}

// CommandRequest is the EventCommand payload. The server validates the
// raw JSON itself so that a missing or non-string text yields an
// "Invalid command format." response rather than a decode error.
type CommandRequest struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChangeDirectoryRequest is the EventChangeDirectory payload.
type ChangeDirectoryRequest struct {
	Path      string `json:"path"`
	SessionID string `json:"sessionId,omitempty"`
}

// DirectoryChanged is the EventDirectoryChanged payload.
type DirectoryChanged struct {
	Path      string `json:"path"`
	SessionID string `json:"sessionId"`
}

// InterruptRequest is the EventInterrupt payload.
type InterruptRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// Interrupted is the EventInterrupted payload. Cancelled reports
// whether a running command was actually cancelled.
type Interrupted struct {
	SessionID string `json:"sessionId"`
	Cancelled bool   `json:"cancelled"`
}

// DisconnectRequest is the EventDisconnect payload. An empty session ID
// means the session this connection is attached to.
type DisconnectRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// Disconnected is the EventDisconnected payload.
type Disconnected struct {
	SessionID string `json:"sessionId"`
}

// ErrorMessage is the EventError payload.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Response is the EventResponse payload as a client sees it. Content
// is left raw because its shape depends on Type.
type Response struct {
	ID        string          `json:"id"`
	CommandID string          `json:"commandId"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Text returns Content decoded as a string, or the raw JSON if it is
// not a string.
func (r Response) Text() string {
	var text string
	if err := json.Unmarshal(r.Content, &text); err == nil {
		return text
	}
	return string(r.Content)
}

// SessionInfo is one EventSessions entry.
type SessionInfo struct {
	ID               string `json:"id"`
	UserID           string `json:"userId"`
	IsActive         bool   `json:"isActive"`
	CreatedAt        string `json:"createdAt"`
	LastActivity     string `json:"lastActivity"`
	WorkingDirectory string `json:"workingDirectory"`
}
