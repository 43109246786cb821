// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"bytes"
	"crypto/md5" //nolint:gosec // godot3 directory records store MD5 checksums.
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// HashAlgorithm identifies the checksum function stored in directory records.
type HashAlgorithm uint8

// Supported checksum algorithms.
const (
	// HashMD5 is a 16-byte MD5 digest.
	HashMD5 HashAlgorithm = iota + 1
	// HashBLAKE3 is a 32-byte BLAKE3 digest.
	HashBLAKE3
)

// String returns algorithm name.
func (a HashAlgorithm) String() string {
	switch a {
	case HashMD5:
		return "md5"
	case HashBLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("hash(%d)", uint8(a))
	}
}

// Size returns digest width in bytes.
func (a HashAlgorithm) Size() int {
	switch a {
	case HashMD5:
		return md5.Size
	case HashBLAKE3:
		return 32
	default:
		return 0
	}
}

// New returns a streaming hasher for the algorithm.
func (a HashAlgorithm) New() hash.Hash {
	switch a {
	case HashMD5:
		return md5.New() //nolint:gosec // format requirement
	case HashBLAKE3:
		return blake3.New()
	default:
		panic(fmt.Sprintf("pck: unknown hash algorithm %d", uint8(a)))
	}
}

// Sum returns digest of data.
func (a HashAlgorithm) Sum(data []byte) Checksum {
	switch a {
	case HashMD5:
		sum := md5.Sum(data) //nolint:gosec // format requirement
		return Checksum(sum[:])
	case HashBLAKE3:
		sum := blake3.Sum256(data)
		return Checksum(sum[:])
	default:
		h := a.New()
		_, _ = h.Write(data)
		return Checksum(h.Sum(nil))
	}
}

// Checksum is a fixed-width entry payload digest.
type Checksum []byte

// String returns lowercase hex form.
func (c Checksum) String() string {
	return hex.EncodeToString(c)
}

// Equal reports whether two digests are byte-identical.
func (c Checksum) Equal(other Checksum) bool {
	return bytes.Equal(c, other)
}

// MarshalText encodes the digest as hex for JSON/YAML output.
func (c Checksum) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a hex digest.
func (c *Checksum) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode checksum: %w", err)
	}

	*c = raw
	return nil
}
