// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"fmt"
	"io"
	"math/bits"
)

// Internal binary layout and format limits.
const (
	magicSize    = 4    // "GDPC" tag
	maxPathLen   = 4096 // max stored path length in bytes, multiple of 4
	maxAlignment = 1 << 20
)

// Default tuning values.
const (
	DefaultWriteBuffer = 1024 * 1024
)

// EngineVersion is a Godot engine version triple.
type EngineVersion struct {
	Major uint32 `json:"major" yaml:"major"`
	Minor uint32 `json:"minor" yaml:"minor"`
	Patch uint32 `json:"patch" yaml:"patch"`
}

// IsZero reports whether no version was set.
func (v EngineVersion) IsZero() bool {
	return v == EngineVersion{}
}

// String returns dotted version form.
func (v EngineVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DefaultEngineVersion is used for new packs when no version is requested.
var DefaultEngineVersion = EngineVersion{Major: 3}

// PackFlags is the header flag bitfield.
type PackFlags uint32

// Pack header flags.
const (
	// PackFlagEncrypted marks encrypted pack contents.
	PackFlagEncrypted PackFlags = 1 << 0
)

// EntryFlags is the directory record flag bitfield.
type EntryFlags uint32

// Directory record flags.
const (
	// EntryFlagEncrypted marks an encrypted entry payload.
	EntryFlagEncrypted EntryFlags = 1 << 0
)

// Header is the parsed fixed pack header.
type Header struct {
	// Magic is the 4-byte format tag.
	Magic [4]byte `json:"-" yaml:"-"`
	// FormatVersion selects the layout profile.
	FormatVersion uint32 `json:"format_version" yaml:"format_version"`
	// Engine is the engine version recorded by the packer.
	Engine EngineVersion `json:"engine" yaml:"engine"`
	// Flags is the pack flag bitfield.
	Flags PackFlags `json:"flags,omitempty" yaml:"flags,omitempty"`
	// Alignment is payload alignment in bytes (1 for profiles without the field).
	Alignment uint32 `json:"alignment" yaml:"alignment"`
	// EntryCount is the number of directory records.
	EntryCount uint32 `json:"entry_count" yaml:"entry_count"`
}

// IsEncrypted reports whether the header encryption bit is set.
func (h Header) IsEncrypted() bool {
	return h.Flags&PackFlagEncrypted != 0
}

// EntryInfo describes a single directory record.
type EntryInfo struct {
	// Path is the virtual path as stored in the directory table.
	Path string `json:"path" yaml:"path"`
	// Offset is absolute byte offset of entry payload.
	Offset uint64 `json:"offset" yaml:"offset"`
	// Size is payload size in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// Checksum is payload digest computed with the profile hash algorithm.
	Checksum Checksum `json:"checksum" yaml:"checksum"`
	// Flags is the entry flag bitfield.
	Flags EntryFlags `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// IsEncrypted reports whether the entry encryption bit is set.
func (e *EntryInfo) IsEncrypted() bool {
	return e.Flags&EntryFlagEncrypted != 0
}

// end returns exclusive end offset of entry payload.
func (e *EntryInfo) end() (uint64, bool) {
	end := e.Offset + e.Size
	return end, end >= e.Offset
}

// Input describes one source stream to be packed into an entry.
type Input struct {
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination virtual path.
	Path string `json:"path" yaml:"path"`
	// SizeHint is expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// ReaderOptions configures reader behavior.
type ReaderOptions struct {
	// VerifyChecksums recomputes entry digests on every payload read.
	VerifyChecksums bool `json:"verify_checksums,omitempty" yaml:"verify_checksums,omitempty"`
	// UseMmap maps the pack file into memory instead of issuing ReadAt syscalls.
	UseMmap bool `json:"use_mmap,omitempty" yaml:"use_mmap,omitempty"`
}

// BuilderOptions configures a new pack build.
type BuilderOptions struct {
	// Engine is recorded in the header; zero means profile major with 0.0 minor/patch.
	Engine EngineVersion `json:"engine" yaml:"engine"`
	// Alignment overrides profile default alignment for profiles with an alignment field.
	// Values that are not a power of two fall back to the profile default.
	Alignment uint32 `json:"alignment,omitempty" yaml:"alignment,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
}

// WriteResult contains serialization statistics.
type WriteResult struct {
	// Entries is written directory table in file order.
	Entries []EntryInfo `json:"entries" yaml:"entries"`
	// HeaderSize is fixed header size in bytes.
	HeaderSize int64 `json:"header_size" yaml:"header_size"`
	// TableSize is directory table size in bytes.
	TableSize int64 `json:"table_size" yaml:"table_size"`
	// DataSize is payload bytes written, padding excluded.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// TotalSize is total archive size in bytes.
	TotalSize int64 `json:"total_size" yaml:"total_size"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry EntryInfo, outputPath string) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Entries limits extraction to selected metadata list; nil means all entries.
	Entries []EntryInfo `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// ExtractReport lists per-entry extraction outcomes.
type ExtractReport struct {
	// Extracted holds virtual paths written to disk, in directory order.
	Extracted []string `json:"extracted" yaml:"extracted"`
	// Failed holds per-entry failures, in directory order.
	Failed []EntryError `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeTruncate
	}
}

// applyDefaults fills zero-valued builder options with defaults.
func (opts *BuilderOptions) applyDefaults(p Profile) {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	if opts.Engine.IsZero() {
		opts.Engine = EngineVersion{Major: p.EngineMajor}
	}

	if !p.HasAlignment || opts.Alignment == 0 || opts.Alignment > maxAlignment || bits.OnesCount32(opts.Alignment) != 1 {
		opts.Alignment = p.DefaultAlignment
	}
}
