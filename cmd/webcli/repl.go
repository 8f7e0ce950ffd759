// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// sender is the subset of *client.Client the line loop drives.
type sender interface {
	Connect(sessionID, workingDirectory string) error
	Command(id, text string) error
	ChangeDirectory(path string) error
	GetSessions() error
	Disconnect(sessionID string) error
}

// errQuit is returned by execute when the user asks to leave.
var errQuit = errors.New("quit")

const help = `commands are run on the server; local directives:
  cd PATH            change the session's working directory
  :sessions          list your sessions
  :connect ID        attach to another session
  :disconnect [ID]   remove a session (default: the attached one)
  :help              show this text
  :quit              exit (Ctrl-D also works; Ctrl-C interrupts)`

// execute interprets one input line. Lines that are not local
// directives go to the server as cli:command frames with a fresh id.
func execute(s sender, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return "", errQuit
	case ":help":
		return help, nil
	case ":sessions":
		return "", s.GetSessions()
	case ":connect":
		if len(fields) != 2 {
			return "usage: :connect ID", nil
		}
		return "", s.Connect(fields[1], "")
	case ":disconnect":
		if len(fields) > 2 {
			return "usage: :disconnect [ID]", nil
		}
		var sessionID string
		if len(fields) == 2 {
			sessionID = fields[1]
		}
		return "", s.Disconnect(sessionID)
	case "cd":
		path := strings.TrimSpace(strings.TrimPrefix(line, "cd"))
		if path == "" {
			return "usage: cd PATH", nil
		}
		return "", s.ChangeDirectory(path)
	}
	if strings.HasPrefix(fields[0], ":") {
		return fmt.Sprintf("unknown directive %s (try :help)", fields[0]), nil
	}
	return "", s.Command(uuid.NewString(), line)
}
