// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"errors"
	"fmt"
)

// Sentinel errors for PCK operations. Use errors.Is in callers.
var (
	// ErrNotFound means the pack file or an input file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrCorruptHeader means header or directory table fields fail structural validation.
	ErrCorruptHeader = errors.New("corrupt pack header")
	// ErrUnsupportedVersion means no layout profile is registered for the version.
	ErrUnsupportedVersion = errors.New("unsupported pack version")
	// ErrTruncatedFile means the file is shorter than the header, table, or entry range declares.
	ErrTruncatedFile = errors.New("truncated pack file")
	// ErrChecksumMismatch means entry payload does not match its recorded checksum.
	ErrChecksumMismatch = errors.New("entry checksum mismatch")
	// ErrUnsupportedFeature means the pack or entry uses encryption.
	ErrUnsupportedFeature = errors.New("unsupported pack feature")
	// ErrAlreadyExists means the target pack path already exists.
	ErrAlreadyExists = errors.New("pack file already exists")
	// ErrPathCollision means two entries resolve to the same virtual path in one build.
	ErrPathCollision = errors.New("virtual path collision")
	// ErrIOFailure means an underlying filesystem read or write failed.
	ErrIOFailure = errors.New("i/o failure")

	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader is already closed.
	ErrClosed = errors.New("reader already closed")
	// ErrEntryNotFound means the named entry is not in the directory table.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrSizeOverflow means a size does not fit the addressable range.
	ErrSizeOverflow = errors.New("size overflow")
	// ErrEmptyInputs means no inputs were provided for a write action.
	ErrEmptyInputs = errors.New("no inputs provided")
	// ErrInvalidEntryPath means an entry path is empty or not representable.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrInvalidExtractPath means an entry path escapes or is invalid for the destination root.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrInvalidFilterPattern means one or more include/exclude rules are invalid.
	ErrInvalidFilterPattern = errors.New("invalid filter rules")
	// ErrInvalidConfig means the action configuration is incomplete or inconsistent.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrBuilderFinalized means the builder was already serialized.
	ErrBuilderFinalized = errors.New("builder already finalized")
	// ErrExtractIncomplete means one or more entries failed during extraction.
	ErrExtractIncomplete = errors.New("extraction incomplete")
)

// EntryError records a failure bound to one virtual path.
type EntryError struct {
	Path string
	Err  error
}

// Error implements error.
func (e EntryError) Error() string {
	return fmt.Sprintf("entry %s: %v", e.Path, e.Err)
}

// MarshalText renders the failure as one line for JSON/YAML reports.
func (e EntryError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// Unwrap returns the wrapped cause.
func (e EntryError) Unwrap() error {
	return e.Err
}

// ioFailure wraps an os/io error with ErrIOFailure and operation context.
func ioFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}
