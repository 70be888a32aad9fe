// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// payloadDomainKey keys the BLAKE3 hash so payload fingerprints never
// collide with digests computed for other purposes.
var payloadDomainKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '-', 'e', 'x', 'e', 'c', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint returns a 16-hex-character digest of an encoded payload.
// Identical payloads (same command sent twice) share a fingerprint.
func Fingerprint(payload []byte) string {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("wire: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write(payload)
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
