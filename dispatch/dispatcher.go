// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/session"
)

// Invocation is everything a Verb may consult.
type Invocation struct {
	// Verb is the case-folded verb name.
	Verb string

	// Args are the whitespace-separated tokens after the verb.
	Args []string

	// Session is the session the command runs in. The caller holds
	// its execution slot.
	Session *session.Session
}

// WorkingDirectory is the session's current directory.
func (i Invocation) WorkingDirectory() string {
	return i.Session.WorkingDirectory()
}

// Verb is one entry in the fixed verb table.
type Verb interface {
	// Name is the wire name, lower case.
	Name() string

	// Usage is the one-line help entry.
	Usage() string

	// Run executes the verb. A returned error becomes an error
	// envelope; Run must not retain the Invocation.
	Run(ctx context.Context, invocation Invocation) (Result, error)
}

// Config configures a Dispatcher.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// MaxReadSize bounds the read verb. Defaults to DefaultMaxReadSize.
	MaxReadSize int64

	// Started is the process start time reported by status. Defaults
	// to the clock's time when New is called.
	Started time.Time
}

// Dispatcher executes commands against a fixed verb table.
type Dispatcher struct {
	verbs  map[string]Verb
	order  []Verb
	clock  clock.Clock
	logger *slog.Logger
}

// New builds the verb table.
func New(config Config) *Dispatcher {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	started := config.Started
	if started.IsZero() {
		started = clk.Now()
	}
	maxReadSize := config.MaxReadSize
	if maxReadSize <= 0 {
		maxReadSize = DefaultMaxReadSize
	}

	dispatcher := &Dispatcher{
		verbs:  make(map[string]Verb),
		clock:  clk,
		logger: logger,
	}
	dispatcher.order = []Verb{
		helpVerb{dispatcher: dispatcher},
		statusVerb{clock: clk, started: started},
		lsVerb{},
		pwdVerb{},
		echoVerb{},
		dateVerb{clock: clk},
		readVerb{maxSize: maxReadSize},
		reservedVerb{name: "write", usage: "write <file> <content>: Write content to a file. (Not implemented yet)"},
		reservedVerb{name: "ask", usage: "ask <question>: Ask AI a question. (Not implemented yet)"},
		reservedVerb{name: "chat", usage: "chat <message>: Chat with AI. (Not implemented yet)"},
	}
	for _, verb := range dispatcher.order {
		dispatcher.verbs[verb.Name()] = verb
	}
	return dispatcher
}

// Verbs returns the table in help order.
func (d *Dispatcher) Verbs() []Verb {
	return append([]Verb(nil), d.order...)
}

// Execute runs command against sess and returns its envelope.
func (d *Dispatcher) Execute(ctx context.Context, command Command, sess *session.Session) Envelope {
	result, category := d.run(ctx, command.Text, sess)

	responseID := uuid.NewString()
	if command.ID != "" {
		responseID = command.ID + "-response"
	}
	return Envelope{
		ID:        responseID,
		CommandID: command.ID,
		Type:      result.Type,
		Content:   result.Content,
		Metadata:  result.Metadata,
		Timestamp: FormatTimestamp(d.clock.Now()),
		Category:  category,
	}
}

// Split returns the case-folded verb and the remaining arguments.
func Split(text string) (verb string, args []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (d *Dispatcher) run(ctx context.Context, text string, sess *session.Session) (result Result, category ErrorCategory) {
	name, args := Split(text)
	verb, ok := d.verbs[name]
	if !ok {
		return errorResult("Unknown command: "+name, nil), CategoryUnknownVerb
	}

	logger := d.logger.With("verb", name, "session_id", sess.ID)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("verb panicked", "panic", recovered, "stack", string(debug.Stack()))
			result = errorResult(fmt.Sprintf("Error executing command %q: %v", name, recovered), nil)
			category = CategoryHandler
		}
	}()

	result, err := verb.Run(ctx, Invocation{Verb: name, Args: args, Session: sess})
	if err == nil {
		if result.Type == TypeError {
			return result, CategoryHandler
		}
		return result, ""
	}

	category = CategoryOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = CategoryCancelled
	}
	logger.Debug("verb failed", "category", category, "error", err)

	var categorized *Error
	switch {
	case errors.As(err, &categorized):
		return errorResult(categorized.Message, result.Metadata), category
	case category == CategoryCancelled:
		return errorResult(fmt.Sprintf("Command %q interrupted.", name), result.Metadata), category
	default:
		return errorResult(fmt.Sprintf("Error executing command %q: %v", name, err), result.Metadata), category
	}
}

func errorResult(message string, metadata map[string]any) Result {
	return Result{Type: TypeError, Content: message, Metadata: metadata}
}
