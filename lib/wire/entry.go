// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/bureau-exec/lib/codec"
)

// Source records which part of the agent produced a LogEntry. The
// controller uses it for rendering and classification only; it plays no
// part in ordering.
type Source uint8

const (
	SourceUnknown Source = iota
	SourceDequeueLogger
	SourceExecutionLogger
	SourceResultsParser
	SourceBuildLogger
	SourceProcessOutput
	SourceAgentLogger
)

var sourceNames = map[Source]string{
	SourceUnknown:         "Unknown",
	SourceDequeueLogger:   "DequeueLogger",
	SourceExecutionLogger: "ExecutionLogger",
	SourceResultsParser:   "ResultsParser",
	SourceBuildLogger:     "BuildLogger",
	SourceProcessOutput:   "ProcessOutput",
	SourceAgentLogger:     "AgentLogger",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Source(%d)", uint8(s))
}

// MarshalText encodes the source by name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a source name. Names this build does not know
// decode as SourceUnknown so newer agents stay readable.
func (s *Source) UnmarshalText(text []byte) error {
	for source, name := range sourceNames {
		if name == string(text) {
			*s = source
			return nil
		}
	}
	*s = SourceUnknown
	return nil
}

// LogEntry is one item on the outbound stream.
type LogEntry struct {
	Text      string    `cbor:"text"`
	Source    Source    `cbor:"source"`
	Timestamp time.Time `cbor:"timestamp"`
}

// EncodeEntry encodes an entry as a log channel payload.
func EncodeEntry(entry LogEntry) ([]byte, error) {
	data, err := codec.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding log entry: %w", err)
	}
	return data, nil
}

// DecodeEntry decodes a log channel payload.
func DecodeEntry(data []byte) (LogEntry, error) {
	var entry LogEntry
	if err := codec.Unmarshal(data, &entry); err != nil {
		return LogEntry{}, fmt.Errorf("decoding log entry: %w", err)
	}
	return entry, nil
}
