// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/webcli/lib/clock"
)

func TestMintThenInspect(t *testing.T) {
	t.Setenv("WEBCLI_CONFIG", "")
	t.Setenv("CREDENTIAL_SECRET", "credential-tool-test-secret")
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var minted bytes.Buffer
	if err := run([]string{"mint", "--id", "42", "--email", "dev@example.com", "--ttl", "2h"}, &minted, clk); err != nil {
		t.Fatalf("mint: %v", err)
	}
	raw := strings.TrimSpace(minted.String())
	if raw == "" {
		t.Fatal("mint printed nothing")
	}

	var inspected bytes.Buffer
	if err := run([]string{"inspect", raw}, &inspected, clk); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	output := inspected.String()
	if !strings.Contains(output, `"dev@example.com"`) {
		t.Errorf("claims diagnostic missing email: %s", output)
	}
	if !strings.Contains(output, "status: valid for dev@example.com until 2026-03-01T14:00:00Z") {
		t.Errorf("Got %q, want a valid status expiring at 14:00", output)
	}

	clk.Advance(3 * time.Hour)
	inspected.Reset()
	if err := run([]string{"inspect", raw}, &inspected, clk); err != nil {
		t.Fatalf("inspect after expiry: %v", err)
	}
	if !strings.Contains(inspected.String(), "status: rejected") {
		t.Errorf("Got %q after expiry, want rejected", inspected.String())
	}
}

func TestInspectWithOtherSecret(t *testing.T) {
	t.Setenv("WEBCLI_CONFIG", "")
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	t.Setenv("CREDENTIAL_SECRET", "first-secret")
	var minted bytes.Buffer
	if err := run([]string{"mint", "--id", "7"}, &minted, clk); err != nil {
		t.Fatalf("mint: %v", err)
	}

	t.Setenv("CREDENTIAL_SECRET", "second-secret")
	var inspected bytes.Buffer
	if err := run([]string{"inspect", strings.TrimSpace(minted.String())}, &inspected, clk); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(inspected.String(), "invalid Ed25519 signature") {
		t.Errorf("Got %q, want a signature rejection", inspected.String())
	}
}

func TestUsageErrors(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tests := [][]string{
		nil,
		{"frobnicate"},
		{"mint"},
		{"inspect"},
		{"inspect", "not-base64!"},
	}
	for _, args := range tests {
		var out bytes.Buffer
		if err := run(args, &out, clk); err == nil {
			t.Errorf("run(%q) succeeded, want error", args)
		}
	}
}
