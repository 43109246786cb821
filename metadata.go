// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

// ReadHeader opens a pack and returns its header and resolved profile.
func ReadHeader(path string) (Header, Profile, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, Profile{}, err
	}
	defer func() { _ = r.Close() }()

	return r.Header(), r.Profile(), nil
}

// ListEntries opens a pack and returns entry metadata without payload reads.
func ListEntries(path string) ([]EntryInfo, error) {
	return ListEntriesWithOptions(path, ReaderOptions{})
}

// ListEntriesWithOptions opens a pack with reader options and returns entry metadata.
func ListEntriesWithOptions(path string, opts ReaderOptions) ([]EntryInfo, error) {
	r, err := OpenWithOptions(path, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return r.Entries(), nil
}
