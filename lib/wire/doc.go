// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines what travels over the agent's three TCP channels
// and how it is framed.
//
// Every channel carries a sequence of frames:
//
//	+----------------+-----------+---------------------+
//	| length uint32  | tag uint8 | payload             |
//	| (big endian)   |           | (length-1 bytes)    |
//	+----------------+-----------+---------------------+
//
// The length counts the tag byte plus the payload. The tag names the
// payload compression ([CompressionNone], [CompressionLZ4],
// [CompressionZstd]); a compressed payload begins with its uncompressed
// size as a uvarint. Readers reject frames longer than their configured
// maximum with [ErrFrameTooLarge]: the stream cannot be trusted after
// that, so it is a connection-level fault. A frame whose body cannot be
// decompressed fails with [ErrMalformedFrame] and can be skipped
// because the length prefix already delimited it.
//
// Payloads per channel:
//
//   - command channel (controller → agent): a CBOR [Request]. Decoded
//     with [DecodeCommand]; empty and malformed payloads decode to
//     [ErrEmptyMessage] or [ErrMalformedCommand], which the listener
//     treats as "no-op, keep reading".
//   - log channel (agent → controller): a CBOR [LogEntry].
//   - build-log channel (build tool → agent): raw UTF-8 text, relayed
//     verbatim as a [SourceBuildLogger] entry.
//
// [Fingerprint] gives queued payloads a short stable digest so the
// "enqueued" and "dequeued" log lines for one command can be correlated.
package wire
