// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch turns a raw command line into a typed response
// envelope.
//
// [Dispatcher.Execute] splits the text on whitespace, case-folds the
// first token into a verb, looks it up in a fixed table built once by
// [New], runs the matching [Verb] against the session's working
// directory, and normalizes the outcome into an [Envelope]:
//
//   - a string result becomes a text envelope
//   - a structured result becomes a json envelope
//   - a successful read becomes a file envelope carrying the content
//     and {mimeType, filename, size, digest} metadata
//   - a failed read becomes an error envelope that still carries the
//     filename
//   - any returned error or panic becomes an error envelope
//
// Execute never returns an error and never panics: every command
// yields exactly one envelope whose CommandID is the command's ID.
//
// The verb names (help, status, ls, pwd, echo, date, read, write,
// ask, chat) are part of the wire contract. write, ask and chat are
// reserved and always answer with a not-implemented error.
package dispatch
