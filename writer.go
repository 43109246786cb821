// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"
)

var (
	// defaultPackWriterPool reuses default-sized bufio writers between builds.
	defaultPackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// zeroPad is a shared source of alignment padding bytes.
	zeroPad [4096]byte
)

// Builder accumulates entries for one pack and serializes them exactly once.
type Builder struct {
	// index is keyed by virtual path without the "res://" scheme.
	index     map[string]int
	entries   []builderEntry
	profile   Profile
	opts      BuilderOptions
	finalized bool
}

// builderEntry is one accumulated payload with its precomputed checksum.
type builderEntry struct {
	path     string
	data     []byte
	checksum Checksum
}

// Begin starts a new pack build against profile.
func Begin(profile Profile, opts BuilderOptions) *Builder {
	opts.applyDefaults(profile)

	return &Builder{
		profile: profile,
		opts:    opts,
		index:   make(map[string]int),
	}
}

// Profile returns the target layout profile.
func (b *Builder) Profile() Profile {
	return b.profile
}

// Len returns number of accumulated entries.
func (b *Builder) Len() int {
	return len(b.entries)
}

// AddEntry appends payload under virtualPath and computes its checksum immediately.
func (b *Builder) AddEntry(virtualPath string, payload []byte) error {
	return b.addEntry(virtualPath, payload, nil)
}

// addEntry appends payload with an optional precomputed checksum.
func (b *Builder) addEntry(virtualPath string, payload []byte, checksum Checksum) error {
	if b.finalized {
		return ErrBuilderFinalized
	}

	if err := validateVirtualPath(b.profile, virtualPath); err != nil {
		return err
	}

	key := trimResScheme(virtualPath)
	if _, exists := b.index[key]; exists {
		return fmt.Errorf("%w: %q already added", ErrPathCollision, virtualPath)
	}

	if uint64(len(b.entries)) >= math.MaxUint32 {
		return fmt.Errorf("%w: entry count exceeds %d", ErrSizeOverflow, uint32(math.MaxUint32))
	}

	if checksum == nil {
		checksum = b.profile.Hash.Sum(payload)
	}

	b.index[key] = len(b.entries)
	b.entries = append(b.entries, builderEntry{
		path:     virtualPath,
		data:     payload,
		checksum: checksum,
	})

	return nil
}

// Layout runs the first pass: assigns aligned offsets once every entry size is known.
// It returns the directory table in file order, the table size, and the total archive size.
func (b *Builder) Layout() ([]EntryInfo, int64, int64, error) {
	headerSize := uint64(b.profile.HeaderSize()) //nolint:gosec // small constant

	var tableSize uint64
	for i := range b.entries {
		tableSize += uint64(b.profile.recordSize(b.entries[i].path)) //nolint:gosec // bounded by maxPathLen
	}

	cursor := headerSize + tableSize
	entries := make([]EntryInfo, len(b.entries))
	for i := range b.entries {
		item := &b.entries[i]
		offset, ok := alignUp(cursor, b.opts.Alignment)
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: entry %s offset overflows", ErrSizeOverflow, item.path)
		}

		size := uint64(len(item.data))
		end := offset + size
		if end < offset || end > math.MaxInt64 {
			return nil, 0, 0, fmt.Errorf("%w: entry %s ends past %d", ErrSizeOverflow, item.path, int64(math.MaxInt64))
		}

		entries[i] = EntryInfo{
			Path:     item.path,
			Offset:   offset,
			Size:     size,
			Checksum: item.checksum,
		}
		cursor = end
	}

	return entries, int64(tableSize), int64(cursor), nil //nolint:gosec // bounded above
}

// Serialize runs the second pass: header, directory table, then payloads in table order.
func (b *Builder) Serialize(out io.Writer) (*WriteResult, error) {
	if out == nil {
		return nil, ErrNilWriter
	}
	if b.finalized {
		return nil, ErrBuilderFinalized
	}

	entries, tableSize, totalSize, err := b.Layout()
	if err != nil {
		return nil, err
	}

	b.finalized = true

	w, release := acquirePackWriter(out, b.opts.WriterBufferSize)
	defer release()

	header := Header{
		Magic:         b.profile.Magic,
		FormatVersion: b.profile.FormatVersion,
		Engine:        b.opts.Engine,
		Alignment:     b.opts.Alignment,
		EntryCount:    uint32(len(entries)), //nolint:gosec // bounded in addEntry
	}
	if _, err := w.Write(b.profile.encodeHeader(header)); err != nil {
		return nil, ioFailure("write header", err)
	}

	record := make([]byte, 0, 256)
	for i := range entries {
		record = b.profile.appendRecord(record[:0], entries[i])
		if _, err := w.Write(record); err != nil {
			return nil, ioFailure("write directory record "+entries[i].Path, err)
		}
	}

	pos := uint64(b.profile.HeaderSize()) + uint64(tableSize) //nolint:gosec // non-negative
	var dataSize int64
	for i := range entries {
		if err := writePadding(w, entries[i].Offset-pos); err != nil {
			return nil, ioFailure("write padding before "+entries[i].Path, err)
		}

		if _, err := w.Write(b.entries[i].data); err != nil {
			return nil, ioFailure("write payload "+entries[i].Path, err)
		}

		pos = entries[i].Offset + entries[i].Size
		dataSize += int64(entries[i].Size) //nolint:gosec // bounded in Layout
	}

	if err := w.Flush(); err != nil {
		return nil, ioFailure("flush pack", err)
	}

	return &WriteResult{
		Entries:    entries,
		HeaderSize: int64(b.profile.HeaderSize()),
		TableSize:  tableSize,
		DataSize:   dataSize,
		TotalSize:  totalSize,
	}, nil
}

// WriteTo implements io.WriterTo on top of Serialize.
func (b *Builder) WriteTo(out io.Writer) (int64, error) {
	res, err := b.Serialize(out)
	if err != nil {
		return 0, err
	}

	return res.TotalSize, nil
}

// Finalize serializes the pack into memory.
func (b *Builder) Finalize() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.Serialize(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// writePadding writes n zero bytes.
func writePadding(w io.Writer, n uint64) error {
	for n > 0 {
		chunk := min(n, uint64(len(zeroPad)))
		if _, err := w.Write(zeroPad[:chunk]); err != nil {
			return err
		}

		n -= chunk
	}

	return nil
}

// acquirePackWriter returns a buffered writer and release callback.
func acquirePackWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultPackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultPackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}
