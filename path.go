// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// resScheme is the Godot resource path scheme found in engine-built packs.
const resScheme = "res://"

// NormalizePath converts a local or virtual path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// StripPrefix removes prefix from p when it matches at a full path-segment boundary.
// Both values are compared after separator normalization. When prefix does not match,
// is empty, or covers the whole path, p is returned unchanged.
func StripPrefix(p string, prefix string) string {
	normalizedPrefix := strings.TrimRight(normalizePathForMatching(prefix), "/")
	if normalizedPrefix == "" {
		return p
	}

	normalizedPath := normalizePathForMatching(p)
	if !strings.HasPrefix(normalizedPath, normalizedPrefix+"/") {
		return p
	}

	rest := strings.TrimLeft(normalizedPath[len(normalizedPrefix):], "/")
	if rest == "" {
		return p
	}

	return rest
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, `/`)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}

	return p
}

// trimResScheme drops a leading "res://" resource scheme.
func trimResScheme(p string) string {
	return strings.TrimPrefix(p, resScheme)
}

// validateVirtualPath checks that path is representable in a directory record.
func validateVirtualPath(p Profile, virtualPath string) error {
	switch {
	case virtualPath == "":
		return fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
	case strings.ContainsRune(virtualPath, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidEntryPath, virtualPath)
	case !utf8.ValidString(virtualPath):
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidEntryPath, virtualPath)
	case p.encodedPathLen(virtualPath) > maxPathLen:
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidEntryPath, virtualPath, maxPathLen)
	}

	return nil
}
