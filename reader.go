// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/exp/mmap"
)

const (
	// readerEntryBufferSize is a sequential read buffer for entry table parsing.
	readerEntryBufferSize = 64 * 1024
	// maxHeaderSize is the largest fixed header across registered profiles.
	maxHeaderSize = magicSize + 7*4
)

var (
	// entryTableReaderPool reuses buffered readers for sequential table parsing.
	entryTableReaderPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(bytes.NewReader(nil), readerEntryBufferSize)
		},
	}
)

// Reader provides read-only access to a parsed pack.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// closer is set when Reader owns the source opened via Open.
	closer io.Closer
	// profile is the layout resolved from the header.
	profile Profile
	// header stores parsed fixed header fields.
	header Header
	// entries stores parsed immutable entry metadata in directory order.
	entries []EntryInfo
	// index maps virtual path to entries position.
	index map[string]int
	// size is total source size in bytes.
	size int64
	// tableEnd is absolute offset right after the directory table.
	tableEnd int64
	// opts are reader options after defaults.
	opts ReaderOptions
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens pack file by path and parses header and directory table.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens pack file by path using explicit reader options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	if opts.UseMmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, openError(path, err)
		}

		r, err := NewReaderFromReaderAt(m, int64(m.Len()), opts)
		if err != nil {
			_ = m.Close()
			return nil, err
		}

		r.closer = m
		return r, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ioFailure("stat pack", err)
	}

	r, err := NewReaderFromReaderAt(f, fi.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.closer = f
	return r, nil
}

// NewReaderFromReaderAt parses pack from existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	r := &Reader{ra: ra, size: size, opts: opts}
	if err := r.parse(); err != nil {
		return nil, err
	}

	return r, nil
}

// Header returns parsed header fields.
func (r *Reader) Header() Header {
	return r.header
}

// Profile returns the layout profile resolved from the header.
func (r *Reader) Profile() Profile {
	return r.profile
}

// Size returns source size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Entries returns a copy of parsed entries in directory order.
func (r *Reader) Entries() []EntryInfo {
	if r == nil {
		return nil
	}

	entries := make([]EntryInfo, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Entry resolves one entry by virtual path; a "res://" scheme on either side is ignored.
func (r *Reader) Entry(name string) (EntryInfo, bool) {
	if i, ok := r.index[name]; ok {
		return r.entries[i], true
	}

	want := trimResScheme(name)
	for i := range r.entries {
		if trimResScheme(r.entries[i].Path) == want {
			return r.entries[i], true
		}
	}

	return EntryInfo{}, false
}

// Close closes the underlying source if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}

	return nil
}

// parse reads and validates header and directory table.
func (r *Reader) parse() error {
	head := make([]byte, maxHeaderSize)
	n, err := r.ra.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return ioFailure("read header", err)
	}
	head = head[:n]

	profile, err := ResolveForRead(head)
	if err != nil {
		return err
	}

	headerSize := profile.HeaderSize()
	if r.size < int64(headerSize) || n < headerSize {
		return fmt.Errorf("%w: file is %d bytes, %s header needs %d", ErrTruncatedFile, r.size, profile.Name, headerSize)
	}

	header, err := profile.decodeHeader(head)
	if err != nil {
		return err
	}

	tableSpace := r.size - int64(headerSize)
	minTable := uint64(header.EntryCount) * uint64(profile.minRecordSize())
	if minTable > uint64(tableSpace) {
		return fmt.Errorf(
			"%w: entry count %d needs at least %d table bytes, file has %d after header",
			ErrCorruptHeader, header.EntryCount, minTable, tableSpace,
		)
	}

	r.profile = profile
	r.header = header

	tableEnd, err := r.parseEntriesBuffered(int64(headerSize))
	if err != nil {
		return err
	}

	r.tableEnd = tableEnd
	return validateEntries(r.entries, tableEnd, uint64(headerSize), header.Alignment) //nolint:gosec // small constant
}

// parseEntriesBuffered parses exactly EntryCount records and returns table end offset.
func (r *Reader) parseEntriesBuffered(tableOffset int64) (int64, error) {
	sr := io.NewSectionReader(r.ra, tableOffset, r.size-tableOffset)
	br := entryTableReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(sr)
	defer func() {
		br.Reset(bytes.NewReader(nil))
		entryTableReaderPool.Put(br)
	}()

	count := int(r.header.EntryCount)
	r.entries = make([]EntryInfo, 0, count)
	r.index = make(map[string]int, count)
	scratch := make([]byte, 0, maxPathLen+64)

	off := tableOffset
	for i := 0; i < count; i++ {
		entry, n, err := r.profile.readRecord(br, scratch)
		if err != nil {
			return 0, fmt.Errorf("directory record %d at offset %d: %w", i, off, err)
		}

		off += int64(n)
		if _, exists := r.index[entry.Path]; exists {
			return 0, fmt.Errorf("%w: duplicate virtual path %q in record %d", ErrCorruptHeader, entry.Path, i)
		}

		r.index[entry.Path] = len(r.entries)
		r.entries = append(r.entries, entry)
	}

	return off, nil
}

// validateEntries checks offset alignment, ordering and range overlap against the table end.
// The first payload may not start before the table end or the aligned header end.
// Payload bounds against file size are checked lazily on read.
func validateEntries(entries []EntryInfo, tableEnd int64, headerSize uint64, alignment uint32) error {
	prevEnd := uint64(tableEnd) //nolint:gosec // non-negative offset
	if dataStart, ok := alignUp(headerSize, alignment); ok && dataStart > prevEnd {
		prevEnd = dataStart
	}

	prevPath := "<directory table>"
	for i := range entries {
		e := &entries[i]
		end, ok := e.end()
		if !ok {
			return fmt.Errorf("%w: entry %s range overflows (offset %d, size %d)", ErrCorruptHeader, e.Path, e.Offset, e.Size)
		}

		if alignment > 1 && e.Offset%uint64(alignment) != 0 {
			return fmt.Errorf(
				"%w: entry %s offset %d is not aligned to %d",
				ErrCorruptHeader, e.Path, e.Offset, alignment,
			)
		}

		if e.Offset < prevEnd {
			return fmt.Errorf(
				"%w: entry %s offset %d overlaps %s ending at %d",
				ErrCorruptHeader, e.Path, e.Offset, prevPath, prevEnd,
			)
		}

		prevEnd = end
		prevPath = e.Path
	}

	return nil
}

// openError maps open failures to ErrNotFound or ErrIOFailure.
func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return ioFailure("open pack "+path, err)
}
