package pck

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestExtractRoundTrip(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	r := openTestPack(t, buildTestPack(t, profiles[1], BuilderOptions{}, files), ReaderOptions{VerifyChecksums: true})
	dst := t.TempDir()

	var (
		mu   sync.Mutex
		done []string
	)
	report, err := r.Extract(context.Background(), dst, ExtractOptions{
		MaxWorkers: 3,
		OnEntryDone: func(entry EntryInfo, _ string) {
			mu.Lock()
			done = append(done, entry.Path)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(report.Extracted) != len(files) || len(report.Failed) != 0 {
		t.Fatalf("report=%+v", report)
	}
	if len(done) != len(files) {
		t.Fatalf("OnEntryDone calls=%d, want %d", len(done), len(files))
	}

	for i, f := range files {
		if report.Extracted[i] != f.path {
			t.Fatalf("Extracted[%d]=%s, want %s (directory order)", i, report.Extracted[i], f.path)
		}

		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(f.path)))
		if err != nil {
			t.Fatalf("read %s: %v", f.path, err)
		}
		if !bytes.Equal(got, f.data) {
			t.Fatalf("file %s content mismatch", f.path)
		}
	}
}

func TestExtract_StripsResScheme(t *testing.T) {
	t.Parallel()

	r := openTestPack(t, buildTestPack(t, profiles[0], BuilderOptions{}, []testFile{
		{path: "res://scenes/a.tscn", data: []byte("scene")},
	}), ReaderOptions{})
	dst := t.TempDir()

	if _, err := r.Extract(context.Background(), dst, ExtractOptions{}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "scenes", "a.tscn"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "scene" {
		t.Fatalf("content=%q", got)
	}
}

func TestExtract_PartialFailureContinues(t *testing.T) {
	t.Parallel()

	files := []testFile{
		{path: "a.txt", data: []byte("aaaa")},
		{path: "../escape.txt", data: []byte("evil")},
		{path: "b.txt", data: []byte("bbbb")},
		{path: "c.txt", data: []byte("cccc")},
	}
	data := buildTestPack(t, profiles[0], BuilderOptions{}, files)
	data = flipPayloadByte(t, data, "b.txt")

	r := openTestPack(t, data, ReaderOptions{VerifyChecksums: true})
	root := t.TempDir()
	dst := filepath.Join(root, "out")

	report, err := r.Extract(context.Background(), dst, ExtractOptions{MaxWorkers: 2})
	if !errors.Is(err, ErrExtractIncomplete) {
		t.Fatalf("Extract error=%v, want ErrExtractIncomplete", err)
	}
	if !errors.Is(err, ErrChecksumMismatch) || !errors.Is(err, ErrInvalidExtractPath) {
		t.Fatalf("Extract error=%v should carry every entry cause", err)
	}

	if len(report.Extracted) != 2 || report.Extracted[0] != "a.txt" || report.Extracted[1] != "c.txt" {
		t.Fatalf("Extracted=%v, want [a.txt c.txt]", report.Extracted)
	}
	if len(report.Failed) != 2 || report.Failed[0].Path != "../escape.txt" || report.Failed[1].Path != "b.txt" {
		t.Fatalf("Failed=%v", report.Failed)
	}

	if _, err := os.Stat(filepath.Join(root, "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("traversal entry escaped output dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "b.txt")); !os.IsNotExist(err) {
		t.Fatalf("corrupt entry left a file behind: %v", err)
	}
	if got, err := os.ReadFile(filepath.Join(dst, "c.txt")); err != nil || string(got) != "cccc" {
		t.Fatalf("c.txt=%q err=%v", got, err)
	}
}

func TestExtract_SelectedEntries(t *testing.T) {
	t.Parallel()

	r := openTestPack(t, buildTestPack(t, profiles[0], BuilderOptions{}, sampleFiles()), ReaderOptions{})
	icon, _ := r.Entry("icon.png")
	dst := t.TempDir()

	report, err := r.Extract(context.Background(), dst, ExtractOptions{Entries: []EntryInfo{icon}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(report.Extracted) != 1 {
		t.Fatalf("Extracted=%v", report.Extracted)
	}
	if _, err := os.Stat(filepath.Join(dst, "project.binary")); !os.IsNotExist(err) {
		t.Fatal("unselected entry was extracted")
	}

	report, err = r.Extract(context.Background(), dst, ExtractOptions{Entries: []EntryInfo{}})
	if err != nil || len(report.Extracted) != 0 {
		t.Fatalf("empty selection report=%+v err=%v", report, err)
	}
}

func TestExtract_FileModes(t *testing.T) {
	t.Parallel()

	r := openTestPack(t, buildTestPack(t, profiles[0], BuilderOptions{}, []testFile{
		{path: "a.txt", data: []byte("new")},
	}), ReaderOptions{})
	dst := t.TempDir()
	target := filepath.Join(dst, "a.txt")
	if err := os.WriteFile(target, []byte("old content that is longer"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := r.Extract(context.Background(), dst, ExtractOptions{FileMode: ExtractFileModeCreateOnly})
	if !errors.Is(err, ErrExtractIncomplete) || !errors.Is(err, os.ErrExist) {
		t.Fatalf("create_only error=%v, want ErrExtractIncomplete wrapping os.ErrExist", err)
	}

	if _, err := r.Extract(context.Background(), dst, ExtractOptions{}); err != nil {
		t.Fatalf("truncate Extract: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("content=%q, want %q", got, "new")
	}
}

func TestExtract_Cancelled(t *testing.T) {
	t.Parallel()

	r := openTestPack(t, buildTestPack(t, profiles[0], BuilderOptions{}, sampleFiles()), ReaderOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Extract(ctx, t.TempDir(), ExtractOptions{MaxWorkers: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract error=%v, want context.Canceled", err)
	}
	if report == nil || len(report.Extracted)+len(report.Failed) != len(sampleFiles()) {
		t.Fatalf("report=%+v should account for every entry", report)
	}
}

func TestExtract_ClosedReader(t *testing.T) {
	t.Parallel()

	r := openTestPack(t, buildTestPack(t, profiles[0], BuilderOptions{}, sampleFiles()), ReaderOptions{})
	_ = r.Close()

	if _, err := r.Extract(context.Background(), t.TempDir(), ExtractOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Extract error=%v, want ErrClosed", err)
	}
}

func TestExtract_OutputPathCollision(t *testing.T) {
	t.Parallel()

	p := profiles[0]
	records := []rawRecord{
		{path: "res://a.txt", size: 3, checksum: p.Hash.Sum([]byte("old"))},
		{path: "a.txt", size: 3, checksum: p.Hash.Sum([]byte("new"))},
		{path: "b.txt", size: 1, checksum: p.Hash.Sum([]byte("b"))},
	}
	records[0].offset = rawTableEnd(p, records)
	records[1].offset = records[0].offset + 3
	records[2].offset = records[1].offset + 3
	data := encodeRawPack(p, EngineVersion{Major: 3}, 0, records, []byte("oldnewb"))

	r := openTestPack(t, data, ReaderOptions{VerifyChecksums: true})
	dst := t.TempDir()

	report, err := r.Extract(context.Background(), dst, ExtractOptions{MaxWorkers: 4})
	if !errors.Is(err, ErrExtractIncomplete) || !errors.Is(err, ErrPathCollision) {
		t.Fatalf("Extract error=%v, want ErrExtractIncomplete with ErrPathCollision", err)
	}

	if len(report.Extracted) != 2 || report.Extracted[0] != "res://a.txt" || report.Extracted[1] != "b.txt" {
		t.Fatalf("Extracted=%v", report.Extracted)
	}
	if len(report.Failed) != 1 || report.Failed[0].Path != "a.txt" {
		t.Fatalf("Failed=%v", report.Failed)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil || string(got) != "old" {
		t.Fatalf("a.txt=%q err=%v, want first entry payload", got, err)
	}
}
