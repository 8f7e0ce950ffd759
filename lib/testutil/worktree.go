// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// WorkTree creates a temporary directory populated from files, where
// each key is a slash-separated relative path and each value the file
// content. A key ending in "/" creates an empty directory. Returns the
// absolute root.
//
//	root := testutil.WorkTree(t, map[string]string{
//		"notes.txt":  "hello",
//		"src/":       "",
//		"src/app.go": "package app",
//	})
func WorkTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		target := filepath.Join(root, filepath.FromSlash(path))
		if path[len(path)-1] == '/' {
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatalf("creating directory %s: %v", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", path, err)
		}
		if err := os.WriteFile(target, []byte(files[path]), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return root
}
