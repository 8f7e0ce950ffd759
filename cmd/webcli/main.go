// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// webcli is a line-oriented terminal client for webcli-server.
//
//	WEBCLI_TOKEN=$(webcli-credential mint --id 42) webcli --url http://localhost:3001
//
// Each line is sent as a command and the responses are rendered as
// they arrive. "cd PATH" changes the session's working directory,
// Ctrl-C interrupts the running command, and Ctrl-D or :quit exits.
// See :help for the remaining directives.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/webcli/client"
	"github.com/bureau-foundation/webcli/lib/process"
	"github.com/bureau-foundation/webcli/lib/version"
)

const dialTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		serverURL   string
		token       string
		sessionID   string
		directory   string
		colorMode   string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("webcli", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "url", "http://localhost:3001", "server URL (http, https, ws or wss)")
	flagSet.StringVar(&token, "token", "", "credential (default: $WEBCLI_TOKEN)")
	flagSet.StringVar(&sessionID, "session", "", "session ID to resume (default: a new session)")
	flagSet.StringVar(&directory, "directory", "", "initial working directory for a new session")
	flagSet.StringVar(&colorMode, "color", "auto", "color output: auto, always or never")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("webcli %s\n", version.Info())
		return nil
	}
	if token == "" {
		token = os.Getenv("WEBCLI_TOKEN")
	}
	if token == "" {
		return errors.New("no credential: pass --token or set WEBCLI_TOKEN (webcli-credential mint prints one)")
	}

	var color bool
	switch colorMode {
	case "auto":
		color = term.IsTerminal(int(os.Stdout.Fd()))
	case "always":
		color = true
	case "never":
	default:
		return fmt.Errorf("--color must be auto, always or never, got %q", colorMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, err := client.Dial(ctx, serverURL, token)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Connect(sessionID, directory); err != nil {
		return err
	}

	rendered := make(chan error, 1)
	go func() {
		renderer := client.NewRenderer(os.Stdout, color)
		for frame := range conn.Events() {
			if err := renderer.Render(frame); err != nil {
				rendered <- err
				return
			}
		}
		rendered <- conn.Err()
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	inputErr := make(chan error, 1)
	go readLines(os.Stdin, lines, inputErr)

	for {
		select {
		case err := <-rendered:
			if err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			return errors.New("connection closed by server")
		case <-interrupts:
			if err := conn.Interrupt(); err != nil {
				return err
			}
		case err := <-inputErr:
			return err
		case line := <-lines:
			output, err := execute(conn, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintln(os.Stdout, output)
			}
		}
	}
}

// readLines forwards stdin lines until EOF, then reports nil (or the
// read error) on done.
func readLines(input io.Reader, lines chan<- string, done chan<- error) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	done <- scanner.Err()
}
