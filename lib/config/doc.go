// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads webcli server configuration.
//
// Resolution order, later layers overriding earlier ones:
//
//  1. [Default] values.
//  2. An optional file named by --config or WEBCLI_CONFIG. Files ending
//     in .json or .jsonc are parsed as JSON with comments (tidwall/jsonc);
//     anything else is parsed as YAML.
//  3. The file's per-environment section (development or production)
//     matching the selected environment. WEBCLI_ENV selects the
//     environment before the section is applied.
//  4. Recognized environment variables (PORT, FRONTEND_URL,
//     CREDENTIAL_SECRET, ...). These are what container deployments set.
//  5. Derived values: the public base URL from the port, and the allowed
//     origin list from the environment and frontend URL.
//
// [Config.Validate] refuses a production configuration that would sign
// credentials with the built-in secret or accept any browser origin.
//
// [Watch] reloads the file when it changes so the allowed-origin list
// and session idle timeout can be tuned without a restart.
package config
