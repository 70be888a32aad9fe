// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length prefix plus the compression tag.
const HeaderSize = 5

// DefaultMaxFrameBytes bounds a single frame when the configuration
// does not override it.
const DefaultMaxFrameBytes = 16 << 20

var (
	// ErrFrameTooLarge means a length prefix exceeded the reader's
	// limit. The stream is no longer trustworthy.
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

	// ErrMalformedFrame means a frame was delimited correctly but its
	// body could not be decoded. The next frame is still readable.
	ErrMalformedFrame = errors.New("wire: malformed frame")
)

// WriteFrame compresses payload with the requested algorithm and writes
// it as one frame. Payloads that do not shrink under compression are
// sent uncompressed. The header and body go out in a single Write so
// concurrent writers on one connection cannot interleave partial frames.
func WriteFrame(w io.Writer, payload []byte, compression Compression) error {
	body, tag, err := compress(payload, compression)
	if err != nil {
		return err
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = byte(tag)
	copy(frame[HeaderSize:], body)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// FrameReader reads frames from a stream. It is not safe for concurrent
// use; each connection has exactly one reading goroutine.
type FrameReader struct {
	reader   *bufio.Reader
	maxBytes int
}

// NewFrameReader wraps r. A non-positive maxBytes selects
// DefaultMaxFrameBytes.
func NewFrameReader(r io.Reader, maxBytes int) *FrameReader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &FrameReader{
		reader:   bufio.NewReader(r),
		maxBytes: maxBytes,
	}
}

// Next blocks until one complete frame has arrived and returns its
// decompressed payload, which may be empty.
//
// io.EOF is returned only on a clean close between frames; a close in
// the middle of a frame is io.ErrUnexpectedEOF. Errors wrapping
// ErrMalformedFrame leave the reader positioned at the next frame.
func (r *FrameReader) Next() ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r.reader, header[:4]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint32(header[:4]))
	if length == 0 {
		return nil, fmt.Errorf("%w: zero length prefix", ErrMalformedFrame)
	}
	if length-1 > r.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, length-1, r.maxBytes)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.reader, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload, err := decompress(body[1:], Compression(body[0]), r.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return payload, nil
}
