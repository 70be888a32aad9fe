// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the agent's CBOR encoding configuration.
//
// Command and log payloads on the agent's channels are CBOR. Every
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// command always produces the same bytes, which keeps payload
// fingerprints stable between the enqueue and dequeue log lines.
//
// Types that implement encoding.TextMarshaler (wire.Kind, wire.Source)
// serialize as CBOR text strings, so a controller written in any
// language sees "execute" and "BuildLogger" rather than small integers.
package codec
