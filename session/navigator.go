// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotDirectory is returned by ChangeDirectory when the target
// exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Resolve returns requested resolved against workingDirectory with "."
// and ".." applied. Absolute paths ignore workingDirectory. An empty
// request resolves to workingDirectory.
func Resolve(workingDirectory, requested string) string {
	if requested == "" {
		return filepath.Clean(workingDirectory)
	}
	if filepath.IsAbs(requested) {
		return filepath.Clean(requested)
	}
	return filepath.Join(workingDirectory, requested)
}

// ChangeDirectory resolves requested against the session's working
// directory and commits it if it names an existing directory. On error
// the working directory is unchanged. Errors are *fs.PathError with Op
// "cd". Callers hold the session's execution slot so the check and the
// commit are not interleaved with another command on the same session.
func ChangeDirectory(session *Session, requested string) (string, error) {
	target := Resolve(session.WorkingDirectory(), requested)

	info, err := os.Stat(target)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		return "", &fs.PathError{Op: "cd", Path: target, Err: err}
	}
	if !info.IsDir() {
		return "", &fs.PathError{Op: "cd", Path: target, Err: ErrNotDirectory}
	}

	session.setWorkingDirectory(target)
	return target, nil
}
