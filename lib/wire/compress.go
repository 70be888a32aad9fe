// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a frame payload. The
// values are protocol constants carried in the frame tag byte.
type Compression uint8

const (
	// CompressionNone sends the payload as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression. Cheap enough to leave on
	// for chatty log streams.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Better ratios for
	// long build logs.
	CompressionZstd Compression = 2
)

// String returns the configuration name of the algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name. The empty string means
// CompressionNone.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

var errIncompressible = errors.New("payload does not compress")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("wire: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(256<<20))
	if err != nil {
		panic("wire: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the frame body and the tag actually used. It falls
// back to CompressionNone when the algorithm does not shrink the data.
func compress(payload []byte, requested Compression) ([]byte, Compression, error) {
	var compressed []byte
	var err error
	switch requested {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	case CompressionZstd:
		compressed = zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) >= len(payload) {
			err = errIncompressible
		}
	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", requested)
	}
	if errors.Is(err, errIncompressible) {
		return payload, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}

	body := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+len(compressed)), uint64(len(payload)))
	return append(body, compressed...), requested, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// Zero means lz4 judged the block incompressible.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

// decompress reverses compress. The declared uncompressed size is
// checked against limit before anything is allocated.
func decompress(body []byte, tag Compression, limit int) ([]byte, error) {
	if tag == CompressionNone {
		return body, nil
	}
	if tag != CompressionLZ4 && tag != CompressionZstd {
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}

	size, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, fmt.Errorf("%s: missing uncompressed size", tag)
	}
	if size > uint64(limit) {
		return nil, fmt.Errorf("%s: uncompressed size %d exceeds limit %d", tag, size, limit)
	}
	compressed := body[n:]

	switch tag {
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	default:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(result)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	}
}
