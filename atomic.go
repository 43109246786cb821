// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// defaultPackFileMode is used for new pack files.
const defaultPackFileMode fs.FileMode = 0o644

// atomicWrite streams one file into a temp sibling of dst and renames it over dst.
// Any failure before the rename leaves dst untouched and removes the temp file.
type atomicWrite struct {
	// dst is the final destination path.
	dst string
	// beforeReplace runs after the temp file is closed and before rename.
	beforeReplace func(tmpPath string) error
	// noReplace publishes with a hard link so an existing dst fails with ErrAlreadyExists.
	noReplace bool
}

// commit writes content produced by write and replaces dst.
func (a atomicWrite) commit(write func(w io.Writer) error) (err error) {
	mode := defaultPackFileMode
	if fi, statErr := os.Stat(a.dst); statErr == nil {
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%w: destination %s is not a regular file", ErrIOFailure, a.dst)
		}

		if a.noReplace {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, a.dst)
		}

		mode = fi.Mode().Perm()
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return ioFailure("stat destination "+a.dst, statErr)
	}

	dir, base := filepath.Split(a.dst)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return ioFailure("create temp file in "+dir, err)
	}

	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = removeIfExists(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return ioFailure("chmod temp file", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return ioFailure("sync temp file", err)
	}

	if err := tmp.Close(); err != nil {
		return ioFailure("close temp file", err)
	}

	if a.beforeReplace != nil {
		if err := a.beforeReplace(tmpPath); err != nil {
			return err
		}
	}

	return a.publish(tmpPath)
}

// publish moves the finished temp file to dst.
func (a atomicWrite) publish(tmpPath string) error {
	if !a.noReplace {
		if err := os.Rename(tmpPath, a.dst); err != nil {
			return ioFailure("replace "+a.dst, err)
		}

		return nil
	}

	if err := os.Link(tmpPath, a.dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, a.dst)
		}

		return ioFailure("link "+a.dst, err)
	}

	// dst now owns the data; a leftover temp name is only cosmetic
	_ = os.Remove(tmpPath)
	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return ioFailure("remove "+path, err)
}
