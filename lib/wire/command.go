// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/bureau-exec/lib/codec"
)

// Kind is the closed set of commands a controller can send.
type Kind uint8

const (
	kindUnknown Kind = iota

	// KindExecute spawns a process described by the Request.
	KindExecute

	// KindParse requests offline parsing of a results file. The agent
	// answers with a fixed result identifier and spawns nothing.
	KindParse

	// KindKill terminates the running process, if any.
	KindKill

	// KindDisconnect ends the current agent iteration.
	KindDisconnect
)

var kindNames = map[Kind]string{
	KindExecute:    "execute",
	KindParse:      "parse",
	KindKill:       "kill",
	KindDisconnect: "disconnect",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// MarshalText encodes the kind as its wire name.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("cannot encode command kind %d", uint8(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a wire name. Unknown names are an error so a
// newer controller's commands are skipped rather than misread.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown command kind %q", text)
}

// IsControl reports whether the kind takes effect on receipt instead of
// being queued.
func (k Kind) IsControl() bool {
	return k == KindKill || k == KindDisconnect
}

// Request is the CBOR payload of a command frame.
type Request struct {
	Kind Kind `cbor:"kind"`

	// Name labels the command in log entries ("Start Executing
	// <name>"). Defaults to the program's base name.
	Name string `cbor:"name,omitempty"`

	// Program and Args are passed to the OS without a shell.
	Program string   `cbor:"program,omitempty"`
	Args    []string `cbor:"args,omitempty"`

	// Dir is the working directory. Empty means the agent's own.
	Dir string `cbor:"dir,omitempty"`

	// Env entries are appended to the agent's environment.
	Env map[string]string `cbor:"env,omitempty"`

	// ResultsPath names the results file for KindParse.
	ResultsPath string `cbor:"results_path,omitempty"`
}

// Command is a decoded command frame. Raw is kept because queued work
// travels through the inbound queue in its encoded form and is decoded
// again by the executor.
type Command struct {
	Kind    Kind
	Name    string
	Request Request
	Raw     []byte
}

// String is the label used in log entries.
func (c Command) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Kind.String()
}

var (
	// ErrEmptyMessage is returned for a zero-length payload.
	ErrEmptyMessage = errors.New("wire: empty message")

	// ErrMalformedCommand is returned for payloads that are not a
	// valid Request.
	ErrMalformedCommand = errors.New("wire: malformed command")
)

// EncodeCommand encodes a request as a command payload.
func EncodeCommand(request Request) ([]byte, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}
	data, err := codec.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", request.Kind, err)
	}
	return data, nil
}

// DecodeCommand decodes a command payload. Errors wrap ErrEmptyMessage
// or ErrMalformedCommand; both mean the message is a no-op.
func DecodeCommand(raw []byte) (Command, error) {
	if len(raw) == 0 {
		return Command{}, ErrEmptyMessage
	}
	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if err := request.validate(); err != nil {
		return Command{}, err
	}

	name := request.Name
	if name == "" && request.Kind == KindExecute {
		name = baseName(request.Program)
	}
	return Command{
		Kind:    request.Kind,
		Name:    name,
		Request: request,
		Raw:     raw,
	}, nil
}

func (r Request) validate() error {
	switch r.Kind {
	case KindExecute:
		if r.Program == "" {
			return fmt.Errorf("%w: execute without program", ErrMalformedCommand)
		}
	case KindParse, KindKill, KindDisconnect:
	default:
		return fmt.Errorf("%w: missing kind", ErrMalformedCommand)
	}
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
