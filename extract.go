// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractWorkItem stores one selected entry with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	entry   EntryInfo
	// idx is position in the selected entry list.
	idx int
}

// Extract writes selected entries to dstDir using MaxWorkers workers.
// A failing entry does not stop the others: failures are listed in the report
// and the returned error joins ErrExtractIncomplete with every entry error.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractReport, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	entries := r.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}

	report := &ExtractReport{Extracted: make([]string, 0, len(entries))}
	if len(entries) == 0 {
		return report, nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, ioFailure("resolve output dir", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, ioFailure("create output dir", err)
	}

	// results[i] is nil on success for entries[i].
	results := make([]error, len(entries))
	workItems := prepareExtractWorkItems(entries, results)
	workItems = prepareExtractDirs(dstRootAbs, workItems, results)

	taskCh := make(chan extractWorkItem)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			copyBuf := make([]byte, extractCopyBufferSize)
			for task := range taskCh {
				results[task.idx] = r.extractPreparedEntry(ctx, dstRootAbs, task, opts, copyBuf)
			}
		})
	}

	cancelled := false
	for _, task := range workItems {
		if cancelled {
			results[task.idx] = ctx.Err()
			continue
		}

		select {
		case <-ctx.Done():
			cancelled = true
			results[task.idx] = ctx.Err()
		case taskCh <- task:
		}
	}

	close(taskCh)
	wg.Wait()

	var failed []error
	for i := range entries {
		if results[i] == nil {
			report.Extracted = append(report.Extracted, entries[i].Path)
			continue
		}

		entryErr := EntryError{Path: entries[i].Path, Err: results[i]}
		report.Failed = append(report.Failed, entryErr)
		failed = append(failed, entryErr)
	}

	if cancelled {
		return report, ctx.Err()
	}

	if len(failed) > 0 {
		summary := fmt.Errorf("%w: %d of %d entries failed", ErrExtractIncomplete, len(failed), len(entries))
		return report, errors.Join(append([]error{summary}, failed...)...)
	}

	return report, nil
}

// prepareExtractWorkItems maps entries to relative fs paths.
// Entries with unsafe paths, or whose output path is already taken by an earlier
// entry, get their error recorded in results and are skipped.
func prepareExtractWorkItems(entries []EntryInfo, results []error) []extractWorkItem {
	workItems := make([]extractWorkItem, 0, len(entries))
	owners := make(map[string]string, len(entries))
	for i, entry := range entries {
		normalizedPath, err := normalizeExtractEntryPath(trimResScheme(entry.Path))
		if err != nil {
			results[i] = fmt.Errorf("%w: %q", err, entry.Path)
			continue
		}

		if owner, taken := owners[normalizedPath]; taken {
			results[i] = fmt.Errorf("%w: %q and %q both extract to %s", ErrPathCollision, owner, entry.Path, normalizedPath)
			continue
		}
		owners[normalizedPath] = entry.Path

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			entry:   entry,
			relPath: relPath,
			relDir:  relDir,
			idx:     i,
		})
	}

	return workItems
}

// prepareExtractDirs creates all unique parent directories needed by work items.
// Items whose directory cannot be created are dropped with the error recorded.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem, results []error) []extractWorkItem {
	dirErrs := make(map[string]error, len(workItems))
	ready := workItems[:0]
	for _, task := range workItems {
		if task.relDir != "" {
			dirErr, seen := dirErrs[task.relDir]
			if !seen {
				dirPath := filepath.Join(dstRootAbs, task.relDir)
				if err := os.MkdirAll(dirPath, 0o750); err != nil {
					dirErr = ioFailure("create output directory "+dirPath, err)
				}
				dirErrs[task.relDir] = dirErr
			}

			if dirErr != nil {
				results[task.idx] = dirErr
				continue
			}
		}

		ready = append(ready, task)
	}

	return ready
}

// extractPreparedEntry writes one prepared work item to destination root.
func (r *Reader) extractPreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	opts ExtractOptions,
	copyBuf []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)

	rc, err := r.openEntryByInfo(task.entry, r.opts.VerifyChecksums)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	file, err := openExtractFile(outPath, opts.FileMode)
	if err != nil {
		return ioFailure("open "+outPath, err)
	}

	_, copyErr := io.CopyBuffer(onlyWriter{file}, rc, copyBuf)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(outPath)
		if errors.Is(copyErr, ErrChecksumMismatch) || errors.Is(copyErr, ErrTruncatedFile) || errors.Is(copyErr, ErrIOFailure) {
			return copyErr
		}

		return ioFailure("write "+outPath, copyErr)
	}

	if closeErr != nil {
		return ioFailure("close "+outPath, closeErr)
	}

	if opts.OnEntryDone != nil {
		opts.OnEntryDone(task.entry, outPath)
	}

	return nil
}

// onlyWriter hides ReadFrom so CopyBuffer uses the worker buffer.
type onlyWriter struct {
	io.Writer
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // extracted resources are world-readable
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // extracted resources are world-readable
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 2 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
