// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
)

// entryStream yields one entry payload and enforces size and checksum on EOF.
type entryStream struct {
	src       io.Reader
	hasher    hash.Hash
	entry     EntryInfo
	remaining uint64
	done      bool
}

// Read implements io.Reader.
func (s *entryStream) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}

	n, err := s.src.Read(p)
	if n > 0 {
		s.remaining -= uint64(n)
		if s.hasher != nil {
			_, _ = s.hasher.Write(p[:n])
		}
	}

	if errors.Is(err, io.EOF) {
		s.done = true
		if s.remaining > 0 {
			return n, fmt.Errorf(
				"%w: entry %s at offset %d: read %d of %d bytes",
				ErrTruncatedFile, s.entry.Path, s.entry.Offset, s.entry.Size-s.remaining, s.entry.Size,
			)
		}

		if s.hasher != nil {
			got := Checksum(s.hasher.Sum(nil))
			if !got.Equal(s.entry.Checksum) {
				return n, fmt.Errorf(
					"%w: entry %s: expected %s, got %s",
					ErrChecksumMismatch, s.entry.Path, s.entry.Checksum, got,
				)
			}
		}

		return n, io.EOF
	}

	if err != nil {
		return n, ioFailure(fmt.Sprintf("read entry %s at offset %d", s.entry.Path, s.entry.Offset), err)
	}

	return n, nil
}

// Close implements io.Closer (no-op; the reader owns the source).
func (s *entryStream) Close() error {
	return nil
}

// checkOpen reports whether payload reads are allowed.
func (r *Reader) checkOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// openEntryByInfo validates entry flags and bounds and opens a checked payload stream.
func (r *Reader) openEntryByInfo(info EntryInfo, verify bool) (io.ReadCloser, error) {
	if r.header.IsEncrypted() || info.IsEncrypted() {
		return nil, fmt.Errorf(
			"%w: entry %s is encrypted (pack flags %#x, entry flags %#x)",
			ErrUnsupportedFeature, info.Path, uint32(r.header.Flags), uint32(info.Flags),
		)
	}

	end, ok := info.end()
	if !ok || info.Size > math.MaxInt64 {
		return nil, fmt.Errorf("%w: entry %s size %d", ErrSizeOverflow, info.Path, info.Size)
	}
	if end > uint64(r.size) { //nolint:gosec // size is non-negative
		return nil, fmt.Errorf(
			"%w: entry %s range [%d, %d) exceeds file size %d",
			ErrTruncatedFile, info.Path, info.Offset, end, r.size,
		)
	}

	stream := &entryStream{
		src:       io.NewSectionReader(r.ra, int64(info.Offset), int64(info.Size)), //nolint:gosec // bounded by file size above
		entry:     info,
		remaining: info.Size,
	}
	if verify {
		stream.hasher = r.profile.Hash.New()
	}

	return stream, nil
}

// OpenEntry opens named entry payload for streaming.
// Size and (when enabled) checksum are enforced when the stream reaches EOF.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	info, ok := r.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return r.openEntryByInfo(info, r.opts.VerifyChecksums)
}

// ReadEntry reads full payload of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	info, ok := r.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return r.ReadEntryData(info)
}

// ReadEntryData reads full payload of an entry using reader checksum policy.
func (r *Reader) ReadEntryData(info EntryInfo) ([]byte, error) {
	return r.readEntryData(info, r.opts.VerifyChecksums)
}

// VerifyEntry reads an entry and checks its checksum regardless of reader options.
func (r *Reader) VerifyEntry(info EntryInfo) error {
	_, err := r.readEntryData(info, true)
	return err
}

// readEntryData reads full payload of an entry.
func (r *Reader) readEntryData(info EntryInfo, verify bool) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	rc, err := r.openEntryByInfo(info, verify)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	if info.Size > math.MaxInt {
		return nil, fmt.Errorf("%w: entry %s size %d does not fit memory", ErrSizeOverflow, info.Path, info.Size)
	}

	var buf bytes.Buffer
	buf.Grow(int(info.Size) + 1)
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
