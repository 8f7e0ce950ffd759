// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/webcli/session"
)

// DefaultMaxReadSize bounds the files read will return: 16 MiB.
const DefaultMaxReadSize int64 = 16 << 20

// readChunkSize is how much read consumes between cancellation checks.
const readChunkSize = 64 << 10

type readVerb struct {
	maxSize int64
}

func (readVerb) Name() string  { return "read" }
func (readVerb) Usage() string { return "read <file>: Display file content." }

// Run returns a file result on success. Every failure after the path
// is known returns an error result carrying the base filename.
func (v readVerb) Run(ctx context.Context, invocation Invocation) (Result, error) {
	if len(invocation.Args) == 0 {
		return Result{}, &Error{
			Category: CategoryMalformed,
			Message:  "Error: No file specified. Usage: read <filepath>",
		}
	}

	path := session.Resolve(invocation.WorkingDirectory(), invocation.Args[0])
	filename := filepath.Base(path)
	failed := func(reason string) Result {
		return Result{
			Type:     TypeError,
			Content:  fmt.Sprintf("Error reading file %s: %s", path, reason),
			Metadata: map[string]any{"filename": filename},
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return failed(describe(err)), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return failed(describe(err)), nil
	}
	if info.IsDir() {
		return failed("is a directory"), nil
	}
	if info.Size() > v.maxSize {
		return failed(fmt.Sprintf("file is %d bytes, larger than the %d byte limit", info.Size(), v.maxSize)), nil
	}

	hasher := blake3.New()
	var content strings.Builder
	content.Grow(int(info.Size()))
	limited := io.LimitReader(file, v.maxSize+1)
	buffer := make([]byte, readChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return Result{Metadata: map[string]any{"filename": filename}}, err
		}
		count, readErr := limited.Read(buffer)
		if count > 0 {
			total += int64(count)
			if total > v.maxSize {
				return failed(fmt.Sprintf("file grew past the %d byte limit", v.maxSize)), nil
			}
			// Neither sink returns an error.
			_, _ = content.Write(buffer[:count])
			_, _ = hasher.Write(buffer[:count])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return failed(describe(readErr)), nil
		}
	}

	return Result{
		Type:    TypeFile,
		Content: content.String(),
		Metadata: map[string]any{
			"mimeType": mimeType(path),
			"filename": filename,
			"size":     total,
			"digest":   "blake3:" + hex.EncodeToString(hasher.Sum(nil)),
		},
	}, nil
}

// mimeType guesses from the extension, without parameters.
func mimeType(path string) string {
	guessed := mime.TypeByExtension(filepath.Ext(path))
	if guessed == "" {
		return "application/octet-stream"
	}
	if mediaType, _, err := mime.ParseMediaType(guessed); err == nil {
		return mediaType
	}
	return guessed
}
