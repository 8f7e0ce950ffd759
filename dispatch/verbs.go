// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/lib/version"
	"github.com/bureau-foundation/webcli/session"
)

type helpVerb struct {
	dispatcher *Dispatcher
}

func (helpVerb) Name() string  { return "help" }
func (helpVerb) Usage() string { return "help: Show this help message." }

func (v helpVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	var builder strings.Builder
	builder.WriteString("Available commands:\n")
	for _, verb := range v.dispatcher.order {
		builder.WriteString("- ")
		builder.WriteString(verb.Usage())
		builder.WriteByte('\n')
	}
	return Text(builder.String()), nil
}

// Status is the status verb's payload.
type Status struct {
	Version   string  `json:"version"`
	GoVersion string  `json:"goVersion"`
	Platform  string  `json:"platform"`
	Uptime    float64 `json:"uptime"`
	SessionID string  `json:"sessionId"`
	Cwd       string  `json:"cwd"`
}

type statusVerb struct {
	clock   clock.Clock
	started time.Time
}

func (statusVerb) Name() string  { return "status" }
func (statusVerb) Usage() string { return "status: Show system and connection status." }

func (v statusVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	return JSON(Status{
		Version:   version.Short(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:    v.clock.Now().Sub(v.started).Seconds(),
		SessionID: invocation.Session.ID,
		Cwd:       invocation.WorkingDirectory(),
	}), nil
}

// Entry is one ls result.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type lsVerb struct{}

func (lsVerb) Name() string  { return "ls" }
func (lsVerb) Usage() string { return "ls [path]: List directory contents." }

// Run reports a missing or non-directory target as text, not as an
// error envelope; clients render that text verbatim.
func (lsVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	target := invocation.WorkingDirectory()
	if len(invocation.Args) > 0 {
		target = session.Resolve(target, invocation.Args[0])
	}

	info, err := os.Stat(target)
	if err != nil {
		return Text(fmt.Sprintf("Error listing directory %s: %s", target, describe(err))), nil
	}
	if !info.IsDir() {
		return Text(fmt.Sprintf("Error: %s is not a directory.", target)), nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	directory, err := os.Open(target)
	if err != nil {
		return Text(fmt.Sprintf("Error listing directory %s: %s", target, describe(err))), nil
	}
	defer directory.Close()

	entries := []Entry{}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		batch, err := directory.ReadDir(256)
		for _, item := range batch {
			kind := "file"
			if item.IsDir() {
				kind = "directory"
			}
			entries = append(entries, Entry{Name: item.Name(), Type: kind})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Text(fmt.Sprintf("Error listing directory %s: %s", target, describe(err))), nil
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return JSON(entries), nil
}

type pwdVerb struct{}

func (pwdVerb) Name() string  { return "pwd" }
func (pwdVerb) Usage() string { return "pwd: Print working directory." }

func (pwdVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	return Text(invocation.WorkingDirectory()), nil
}

type echoVerb struct{}

func (echoVerb) Name() string  { return "echo" }
func (echoVerb) Usage() string { return "echo <text>: Display a line of text." }

func (echoVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	return Text(strings.Join(invocation.Args, " ")), nil
}

type dateVerb struct {
	clock clock.Clock
}

func (dateVerb) Name() string  { return "date" }
func (dateVerb) Usage() string { return "date: Display the current date and time." }

func (v dateVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	return Text(FormatTimestamp(v.clock.Now())), nil
}

type reservedVerb struct {
	name  string
	usage string
}

func (v reservedVerb) Name() string  { return v.name }
func (v reservedVerb) Usage() string { return v.usage }

func (v reservedVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	return Result{}, &Error{
		Category: CategoryNotImplemented,
		Message:  fmt.Sprintf("Error: %q command is not implemented yet.", v.name),
	}
}

// describe renders an I/O error without repeating the path the
// caller already prints.
func describe(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}
