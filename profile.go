// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strings"
)

// PathEncoding is the directory record path encoding rule.
type PathEncoding uint8

// Supported path encodings.
const (
	// PathEncodingExact stores a 4-byte length followed by exact UTF-8 bytes.
	PathEncodingExact PathEncoding = iota + 1
	// PathEncodingPadded stores a 4-byte length followed by UTF-8 bytes NUL-padded to 4-byte boundary.
	PathEncodingPadded
)

// String returns encoding name.
func (e PathEncoding) String() string {
	switch e {
	case PathEncodingExact:
		return "exact"
	case PathEncodingPadded:
		return "padded4"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// Profile is a binary layout descriptor for one engine-version family.
// Reader and writer only consult the descriptor and never branch on versions.
type Profile struct {
	// Name is a short profile identifier.
	Name string `json:"name" yaml:"name"`
	// Magic is the 4-byte format tag.
	Magic [4]byte `json:"-" yaml:"-"`
	// FormatVersion is the header format version written by this profile.
	FormatVersion uint32 `json:"format_version" yaml:"format_version"`
	// EngineMajor is the engine major version this profile is registered for.
	EngineMajor uint32 `json:"engine_major" yaml:"engine_major"`
	// HasAlignment reports whether the header carries an alignment field.
	HasAlignment bool `json:"has_alignment" yaml:"has_alignment"`
	// DefaultAlignment is payload alignment used when writing.
	DefaultAlignment uint32 `json:"default_alignment" yaml:"default_alignment"`
	// Hash is the entry checksum algorithm.
	Hash HashAlgorithm `json:"-" yaml:"-"`
	// PathEncoding is the virtual path record encoding.
	PathEncoding PathEncoding `json:"-" yaml:"-"`
}

// magicGDPC is the Godot pack tag.
var magicGDPC = [4]byte{'G', 'D', 'P', 'C'}

// profiles is the closed profile table.
var profiles = [...]Profile{
	{
		Name:             "godot3",
		Magic:            magicGDPC,
		FormatVersion:    1,
		EngineMajor:      3,
		HasAlignment:     false,
		DefaultAlignment: 1,
		Hash:             HashMD5,
		PathEncoding:     PathEncodingExact,
	},
	{
		Name:             "godot4",
		Magic:            magicGDPC,
		FormatVersion:    2,
		EngineMajor:      4,
		HasAlignment:     true,
		DefaultAlignment: 32,
		Hash:             HashBLAKE3,
		PathEncoding:     PathEncodingPadded,
	},
}

// Profiles returns a copy of the registered profile table.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles[:])
	return out
}

// ResolveForWrite returns the profile registered for the engine major version.
func ResolveForWrite(v EngineVersion) (Profile, error) {
	for _, p := range profiles {
		if p.EngineMajor == v.Major {
			return p, nil
		}
	}

	return Profile{}, fmt.Errorf("%w: engine %s has no registered layout", ErrUnsupportedVersion, v)
}

// ResolveForRead inspects magic and format version fields at the start of a pack.
func ResolveForRead(header []byte) (Profile, error) {
	if len(header) < magicSize {
		if bytes.HasPrefix(magicGDPC[:], header) {
			return Profile{}, fmt.Errorf("%w: %d bytes, magic needs %d", ErrTruncatedFile, len(header), magicSize)
		}

		return Profile{}, fmt.Errorf("%w: bad magic %q", ErrCorruptHeader, header)
	}

	var magic [4]byte
	copy(magic[:], header[:magicSize])

	family := false
	for _, p := range profiles {
		if p.Magic == magic {
			family = true
			break
		}
	}
	if !family {
		return Profile{}, fmt.Errorf("%w: bad magic %q", ErrCorruptHeader, magic[:])
	}

	if len(header) < magicSize+4 {
		return Profile{}, fmt.Errorf("%w: %d bytes, format version needs %d", ErrTruncatedFile, len(header), magicSize+4)
	}

	formatVersion := binary.LittleEndian.Uint32(header[magicSize:])
	supported := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.Magic != magic {
			continue
		}
		if p.FormatVersion == formatVersion {
			return p, nil
		}

		supported = append(supported, fmt.Sprint(p.FormatVersion))
	}

	return Profile{}, fmt.Errorf(
		"%w: format version %d (supported: %s)",
		ErrUnsupportedVersion, formatVersion, strings.Join(supported, ", "),
	)
}

// HeaderSize returns fixed header size in bytes.
func (p Profile) HeaderSize() int {
	// magic, format, major, minor, patch, flags, count
	n := magicSize + 6*4
	if p.HasAlignment {
		n += 4
	}

	return n
}

// encodeHeader serializes header fields.
func (p Profile) encodeHeader(h Header) []byte {
	buf := make([]byte, 0, p.HeaderSize())
	buf = append(buf, p.Magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, p.FormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, h.Engine.Major)
	buf = binary.LittleEndian.AppendUint32(buf, h.Engine.Minor)
	buf = binary.LittleEndian.AppendUint32(buf, h.Engine.Patch)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Flags))
	if p.HasAlignment {
		buf = binary.LittleEndian.AppendUint32(buf, h.Alignment)
	}

	return binary.LittleEndian.AppendUint32(buf, h.EntryCount)
}

// decodeHeader parses header fields from at least HeaderSize bytes.
func (p Profile) decodeHeader(b []byte) (Header, error) {
	if len(b) < p.HeaderSize() {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrTruncatedFile, len(b), p.HeaderSize())
	}

	var h Header
	copy(h.Magic[:], b[:magicSize])
	off := magicSize
	next := func() uint32 {
		v := binary.LittleEndian.Uint32(b[off:])
		off += 4
		return v
	}

	h.FormatVersion = next()
	h.Engine.Major = next()
	h.Engine.Minor = next()
	h.Engine.Patch = next()
	h.Flags = PackFlags(next())
	h.Alignment = 1
	if p.HasAlignment {
		h.Alignment = next()
		if h.Alignment == 0 || h.Alignment > maxAlignment || bits.OnesCount32(h.Alignment) != 1 {
			return Header{}, fmt.Errorf("%w: alignment %d is not a power of two up to %d", ErrCorruptHeader, h.Alignment, maxAlignment)
		}
	}

	h.EntryCount = next()
	return h, nil
}

// encodedPathLen returns stored path byte length including padding.
func (p Profile) encodedPathLen(path string) int {
	if p.PathEncoding == PathEncodingPadded {
		return (len(path) + 3) &^ 3
	}

	return len(path)
}

// recordSize returns encoded directory record size for path.
func (p Profile) recordSize(path string) int {
	return 4 + p.encodedPathLen(path) + 8 + 8 + p.Hash.Size() + 4
}

// minRecordSize returns the smallest valid directory record size.
func (p Profile) minRecordSize() int {
	return p.recordSize("x")
}

// appendRecord serializes one directory record.
func (p Profile) appendRecord(dst []byte, e EntryInfo) []byte {
	pathLen := p.encodedPathLen(e.Path)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(pathLen)) //nolint:gosec // bounded by maxPathLen
	dst = append(dst, e.Path...)
	for i := len(e.Path); i < pathLen; i++ {
		dst = append(dst, 0)
	}

	dst = binary.LittleEndian.AppendUint64(dst, e.Offset)
	dst = binary.LittleEndian.AppendUint64(dst, e.Size)
	dst = append(dst, e.Checksum...)

	return binary.LittleEndian.AppendUint32(dst, uint32(e.Flags))
}

// readRecord parses one directory record from buffered stream and returns consumed bytes.
func (p Profile) readRecord(br *bufio.Reader, scratch []byte) (EntryInfo, int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return EntryInfo{}, 0, recordReadErr("path length", err)
	}

	pathLen := binary.LittleEndian.Uint32(lenBuf[:])
	if pathLen == 0 || pathLen > maxPathLen {
		return EntryInfo{}, 0, fmt.Errorf("%w: path length %d out of range 1..%d", ErrCorruptHeader, pathLen, maxPathLen)
	}

	fixed := 8 + 8 + p.Hash.Size() + 4
	need := int(pathLen) + fixed
	if cap(scratch) < need {
		scratch = make([]byte, need)
	}
	scratch = scratch[:need]
	if _, err := io.ReadFull(br, scratch); err != nil {
		return EntryInfo{}, 0, recordReadErr("record", err)
	}

	rawPath := scratch[:pathLen]
	if p.PathEncoding == PathEncodingPadded {
		rawPath = bytes.TrimRight(rawPath, "\x00")
	}
	if len(rawPath) == 0 {
		return EntryInfo{}, 0, fmt.Errorf("%w: empty virtual path", ErrCorruptHeader)
	}

	off := int(pathLen)
	e := EntryInfo{Path: string(rawPath)}
	e.Offset = binary.LittleEndian.Uint64(scratch[off:])
	off += 8
	e.Size = binary.LittleEndian.Uint64(scratch[off:])
	off += 8
	e.Checksum = Checksum(bytes.Clone(scratch[off : off+p.Hash.Size()]))
	off += p.Hash.Size()
	e.Flags = EntryFlags(binary.LittleEndian.Uint32(scratch[off:]))

	return e, 4 + need, nil
}

// recordReadErr maps short reads inside the directory table to ErrTruncatedFile.
func recordReadErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: directory table ends inside %s", ErrTruncatedFile, what)
	}

	return ioFailure("read directory "+what, err)
}

// alignUp rounds v up to alignment a; a is a power of two.
func alignUp(v uint64, a uint32) (uint64, bool) {
	if a <= 1 {
		return v, true
	}

	mask := uint64(a) - 1
	out := (v + mask) &^ mask
	return out, out >= v
}
