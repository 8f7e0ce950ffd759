// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/webcli/dispatch"
	"github.com/bureau-foundation/webcli/protocol"
)

// Renderer writes inbound frames to a terminal.
type Renderer struct {
	out   io.Writer
	color bool

	info    lipgloss.Style
	dim     lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	header  lipgloss.Style
}

// NewRenderer returns a Renderer writing to out. With color false the
// output carries no escape sequences.
func NewRenderer(out io.Writer, color bool) *Renderer {
	// The profile is forced rather than detected from out: the caller
	// has already decided (flag or x/term check).
	profile := termenv.Ascii
	if color {
		profile = termenv.ANSI256
	}
	styles := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	styles.SetColorProfile(profile)

	return &Renderer{
		out:     out,
		color:   color,
		info:    styles.NewStyle().Foreground(lipgloss.Color("6")),
		dim:     styles.NewStyle().Foreground(lipgloss.Color("8")),
		failure: styles.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: styles.NewStyle().Foreground(lipgloss.Color("11")),
		header:  styles.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
	}
}

// Render writes one frame.
func (r *Renderer) Render(frame protocol.Frame) error {
	switch frame.Event {
	case protocol.EventConnected:
		var connected protocol.Connected
		if err := json.Unmarshal(frame.Data, &connected); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		return r.lines(r.info.Render(connected.Message), r.dim.Render("cwd: "+connected.WorkingDirectory))

	case protocol.EventResponse:
		var response protocol.Response
		if err := json.Unmarshal(frame.Data, &response); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		return r.response(response)

	case protocol.EventDirectoryChanged:
		var changed protocol.DirectoryChanged
		if err := json.Unmarshal(frame.Data, &changed); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		return r.lines(r.dim.Render("cwd: " + changed.Path))

	case protocol.EventError:
		var message protocol.ErrorMessage
		if err := json.Unmarshal(frame.Data, &message); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		return r.lines(r.failure.Render(message.Message))

	case protocol.EventInterrupted:
		var interrupted protocol.Interrupted
		if err := json.Unmarshal(frame.Data, &interrupted); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		if interrupted.Cancelled {
			return r.lines(r.warning.Render("^C interrupted"))
		}
		return r.lines(r.dim.Render("^C nothing to interrupt"))

	case protocol.EventSessions:
		var sessions []protocol.SessionInfo
		if err := json.Unmarshal(frame.Data, &sessions); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		return r.sessions(sessions)

	case protocol.EventDisconnected:
		var disconnected protocol.Disconnected
		if err := json.Unmarshal(frame.Data, &disconnected); err != nil {
			return fmt.Errorf("decoding %s: %w", frame.Event, err)
		}
		return r.lines(r.info.Render("Session " + disconnected.SessionID + " removed."))

	default:
		return r.lines(r.dim.Render(frame.Event + " " + string(frame.Data)))
	}
}

func (r *Renderer) response(response protocol.Response) error {
	switch dispatch.Type(response.Type) {
	case dispatch.TypeError:
		return r.lines(r.failure.Render(response.Text()))

	case dispatch.TypeJSON:
		var indented bytes.Buffer
		if err := json.Indent(&indented, response.Content, "", "  "); err != nil {
			return r.lines(string(response.Content))
		}
		return r.lines(indented.String())

	case dispatch.TypeFile:
		return r.file(response)

	default:
		return r.lines(response.Text())
	}
}

func (r *Renderer) file(response protocol.Response) error {
	filename, _ := response.Metadata["filename"].(string)
	mimeType, _ := response.Metadata["mimeType"].(string)
	size, _ := response.Metadata["size"].(float64)

	header := fmt.Sprintf("── %s (%d bytes, %s)", filename, int64(size), mimeType)
	content := response.Text()
	if !r.color {
		return r.lines(r.header.Render(header), strings.TrimRight(content, "\n"))
	}

	language := ""
	if lexer := lexers.Match(filename); lexer != nil {
		language = lexer.Config().Name
	}
	var highlighted strings.Builder
	if err := quick.Highlight(&highlighted, content, language, "terminal256", "monokai"); err != nil {
		return r.lines(r.header.Render(header), strings.TrimRight(content, "\n"))
	}
	return r.lines(r.header.Render(header), strings.TrimRight(highlighted.String(), "\n"))
}

func (r *Renderer) sessions(sessions []protocol.SessionInfo) error {
	if len(sessions) == 0 {
		return r.lines(r.dim.Render("No sessions."))
	}

	idWidth := len("SESSION")
	for _, info := range sessions {
		idWidth = max(idWidth, ansi.StringWidth(info.ID))
	}

	rows := []string{r.dim.Render(" " + pad("SESSION", idWidth) + "  " + pad("LAST ACTIVITY", 24) + "  DIRECTORY")}
	for _, info := range sessions {
		marker := " "
		if info.IsActive {
			marker = "*"
		}
		row := pad(info.ID, idWidth) + "  " + pad(info.LastActivity, 24) + "  " + info.WorkingDirectory
		if info.IsActive {
			row = r.info.Render(row)
		}
		rows = append(rows, marker+row)
	}
	return r.lines(rows...)
}

func pad(text string, width int) string {
	if gap := width - ansi.StringWidth(text); gap > 0 {
		return text + strings.Repeat(" ", gap)
	}
	return text
}

func (r *Renderer) lines(lines ...string) error {
	for _, line := range lines {
		if _, err := io.WriteString(r.out, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}
