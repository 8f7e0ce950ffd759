// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that credential
// expiry, session activity stamps, and idle reaping can be tested
// without sleeping.
//
// Production code holds a [Clock] field set to [Real]. Tests use
// [Fake], which only moves when [FakeClock.Advance] is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	registry := session.NewRegistry(session.RegistryConfig{Clock: fake})
//	go reaper.Run(ctx)
//	fake.WaitForTickers(1)         // reaper has registered its ticker
//	fake.Advance(31 * time.Minute) // deterministic sweep
package clock
