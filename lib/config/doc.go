// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the agent's configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the BUREAU_EXEC_CONFIG environment variable (via
// [Load]). There is no search path and no per-field environment
// override. Files ending in .json or .jsonc are read as JSON with
// comments and trailing commas; anything else is YAML.
//
// The daemon reloads the file at the start of every iteration through
// a [Loader], so an operator can move the agent to new ports by editing
// the file and sending a Disconnect.
//
// Host fields support ${VAR} and ${VAR:-default} expansion so one file
// can serve several machines:
//
//	channels:
//	  command: {host: "${AGENT_HOST:-0.0.0.0}", port: 8888}
//
// This package depends on no other bureau-exec packages.
package config
