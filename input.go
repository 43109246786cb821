// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// AddInputs reads and hashes inputs concurrently, then appends them in input order.
// Paths are validated for collisions before any input is opened; "res://" is ignored when comparing.
func (b *Builder) AddInputs(ctx context.Context, inputs []Input, workers int) error {
	if b.finalized {
		return ErrBuilderFinalized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if err := validateVirtualPath(b.profile, in.Path); err != nil {
			return err
		}

		key := trimResScheme(in.Path)
		_, inBuilder := b.index[key]
		_, inBatch := seen[key]
		if inBuilder || inBatch {
			return fmt.Errorf("%w: %q already added", ErrPathCollision, in.Path)
		}

		seen[key] = struct{}{}
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	payloads := make([][]byte, len(inputs))
	sums := make([]Checksum, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := readInput(inputs[i])
			if err != nil {
				return err
			}

			payloads[i] = data
			sums[i] = b.profile.Hash.Sum(data)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i := range inputs {
		if err := b.addEntry(inputs[i].Path, payloads[i], sums[i]); err != nil {
			return err
		}
	}

	return nil
}

// readInput opens and fully reads one input stream.
func readInput(in Input) ([]byte, error) {
	rc, err := openInputReader(in)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if in.SizeHint > 0 {
		buf.Grow(int(in.SizeHint))
	}

	_, readErr := buf.ReadFrom(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, ioFailure("read input "+in.Path, readErr)
	}
	if closeErr != nil {
		return nil, ioFailure("close input "+in.Path, closeErr)
	}

	return buf.Bytes(), nil
}

// openInputReader opens source stream for one input.
func openInputReader(in Input) (io.ReadCloser, error) {
	if in.Open == nil {
		return nil, fmt.Errorf("%w: input %s: Open is nil", ErrNilReader, in.Path)
	}

	rc, err := in.Open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: input %s: %w", ErrNotFound, in.Path, err)
		}

		return nil, ioFailure("open input "+in.Path, err)
	}

	return rc, nil
}
