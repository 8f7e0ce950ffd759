// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"errors"
	"time"
)

// Type tags an envelope's content.
type Type string

const (
	TypeText  Type = "text"
	TypeJSON  Type = "json"
	TypeError Type = "error"
	TypeFile  Type = "file"
)

// TimestampFormat is RFC 3339 with millisecond precision, rendered in
// UTC with a literal Z.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampFormat.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Command is one inbound command line.
type Command struct {
	// ID correlates the response. May be empty, in which case the
	// response gets a random ID and an empty CommandID.
	ID   string
	Text string
}

// Envelope is the typed, correlated reply to exactly one Command.
type Envelope struct {
	ID        string         `json:"id"`
	CommandID string         `json:"commandId"`
	Type      Type           `json:"type"`
	Content   any            `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"`

	// Category classifies error envelopes for logging. Not sent.
	Category ErrorCategory `json:"-"`
}

// Result is what a Verb produces before correlation.
type Result struct {
	Type     Type
	Content  any
	Metadata map[string]any
}

// Text returns a text result.
func Text(content string) Result {
	return Result{Type: TypeText, Content: content}
}

// JSON returns a json result.
func JSON(content any) Result {
	return Result{Type: TypeJSON, Content: content}
}

// ErrorCategory classifies failures at the dispatch boundary.
type ErrorCategory string

const (
	// CategoryAuth is a rejected credential. The gateway refuses the
	// connection; it never reaches the dispatcher.
	CategoryAuth ErrorCategory = "auth"

	CategoryUnknownVerb    ErrorCategory = "unknown_verb"
	CategoryHandler        ErrorCategory = "handler"
	CategoryMalformed      ErrorCategory = "malformed"
	CategoryNotImplemented ErrorCategory = "not_implemented"
	CategoryCancelled      ErrorCategory = "cancelled"
)

// Error is a categorized failure. Message is shown to the user as-is.
type Error struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// CategoryOf returns err's category, or CategoryHandler for errors
// that are not an *Error.
func CategoryOf(err error) ErrorCategory {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	return CategoryHandler
}
