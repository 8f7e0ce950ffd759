// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps the credential-signing secret out of the Go
// heap.
//
// [Buffer] is backed by an anonymous mmap region that is mlocked
// (never swapped) and marked MADV_DONTDUMP (absent from core dumps).
// Close zeroes and unmaps it. The server reads the secret into a
// Buffer, derives its signing and sealing keys, and closes the Buffer.
//
// Depends on golang.org/x/sys/unix. No webcli-internal dependencies.
package secret
