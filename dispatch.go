// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Action selects what Run does with the pack.
type Action string

// Supported actions.
const (
	// ActionList prints the directory table.
	ActionList Action = "list"
	// ActionExtract writes entries to an output directory.
	ActionExtract Action = "extract"
	// ActionAdd creates a new pack from local files.
	ActionAdd Action = "add"
	// ActionRepack rewrites an existing pack, optionally merging files and retargeting the engine version.
	ActionRepack Action = "repack"
)

// ParseAction resolves an action name or its one-letter shorthand.
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "list", "l":
		return ActionList, nil
	case "extract", "e":
		return ActionExtract, nil
	case "add", "a":
		return ActionAdd, nil
	case "repack", "r":
		return ActionRepack, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q (want list, extract, add or repack)", ErrInvalidConfig, raw)
	}
}

// Phase is the dispatcher progress state.
type Phase string

// Dispatcher phases in execution order.
const (
	PhaseIdle       Phase = "idle"
	PhaseOpening    Phase = "opening"
	PhaseReading    Phase = "reading"
	PhaseWriting    Phase = "writing"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Config is the engine calling contract. Run never modifies it.
type Config struct {
	// PackPath is the pack to read, create or rewrite.
	PackPath string `json:"pack" yaml:"pack"`
	// Action selects the operation.
	Action Action `json:"action" yaml:"action"`
	// Files are local files or directories for add/repack, or virtual paths for extract.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`
	// Output is the extract directory, or the repack destination (defaults to PackPath).
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
	// RemovePrefix is stripped from local paths before they become virtual paths.
	RemovePrefix string `json:"remove_prefix,omitempty" yaml:"remove_prefix,omitempty"`
	// Engine is the target engine version for add/repack; zero keeps the default (add) or the source version (repack).
	Engine EngineVersion `json:"engine" yaml:"engine"`
	// Include keeps only matching virtual paths (gitignore syntax).
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	// Exclude drops matching virtual paths (gitignore syntax).
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// Verify checks payload checksums whenever entry data is read.
	Verify bool `json:"verify" yaml:"verify"`
	// UseMmap maps the source pack into memory instead of using file reads.
	UseMmap bool `json:"use_mmap,omitempty" yaml:"use_mmap,omitempty"`
	// Workers bounds extraction and hashing parallelism (zero means GOMAXPROCS).
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Validate checks the configuration once before Run touches the filesystem.
func (c Config) Validate() error {
	if strings.TrimSpace(c.PackPath) == "" {
		return fmt.Errorf("%w: pack path is empty", ErrInvalidConfig)
	}

	switch c.Action {
	case ActionList, ActionExtract, ActionRepack:
	case ActionAdd:
		if len(c.Files) == 0 {
			return fmt.Errorf("%w: add needs at least one file: %w", ErrInvalidConfig, ErrEmptyInputs)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidConfig, c.Action)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}

	return nil
}

// RunOptions carries collaborators that are not part of Config.
type RunOptions struct {
	// Logger receives phase and progress messages; nil discards them.
	Logger *log.Logger
	// beforeReplace runs between the temp file close and the rename.
	beforeReplace func(tmpPath string) error
}

// Result describes one finished (or failed) action.
type Result struct {
	// Action is the executed action.
	Action Action `json:"action" yaml:"action"`
	// Phase is the last reached phase: done or failed.
	Phase Phase `json:"phase" yaml:"phase"`
	// PackPath is the pack that was read or written.
	PackPath string `json:"pack" yaml:"pack"`
	// Profile is the layout profile name of the read or written pack.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
	// Header is the header of the read pack, or of the written one; nil when none was reached.
	Header *Header `json:"header,omitempty" yaml:"header,omitempty"`
	// Entries is the directory table of the listed or written pack.
	Entries []EntryInfo `json:"entries,omitempty" yaml:"entries,omitempty"`
	// Extracted holds virtual paths written by extract.
	Extracted []string `json:"extracted,omitempty" yaml:"extracted,omitempty"`
	// Failed holds per-entry extract failures.
	Failed []EntryError `json:"failed,omitempty" yaml:"failed,omitempty"`
	// Written is the write summary of add and repack.
	Written *WriteResult `json:"written,omitempty" yaml:"written,omitempty"`
	// Message is a human-readable one-line outcome.
	Message string `json:"message" yaml:"message"`
}

// run holds state of one Run invocation.
type run struct {
	cfg    Config
	opts   RunOptions
	logger *log.Logger
	res    *Result
}

// Run executes cfg.Action. The returned Result is non-nil even on failure.
func Run(ctx context.Context, cfg Config, opts RunOptions) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	rn := &run{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("action", string(cfg.Action)),
		res:    &Result{Action: cfg.Action, Phase: PhaseIdle, PackPath: cfg.PackPath},
	}

	err := cfg.Validate()
	if err == nil {
		switch cfg.Action {
		case ActionList:
			err = rn.list()
		case ActionExtract:
			err = rn.extract(ctx)
		case ActionAdd:
			err = rn.add(ctx)
		case ActionRepack:
			err = rn.repack(ctx)
		}
	}

	if err != nil {
		rn.enter(PhaseFailed)
		rn.res.Message = err.Error()
		return rn.res, err
	}

	rn.enter(PhaseDone)
	rn.logger.Info(rn.res.Message)
	return rn.res, nil
}

// enter records and logs a phase transition.
func (rn *run) enter(phase Phase) {
	rn.logger.Debug("phase", "from", string(rn.res.Phase), "to", string(phase))
	rn.res.Phase = phase
}

// readerOptions maps Config to source reader options.
func (rn *run) readerOptions() ReaderOptions {
	return ReaderOptions{
		VerifyChecksums: rn.cfg.Verify,
		UseMmap:         rn.cfg.UseMmap,
	}
}

// openSource opens the configured pack and records its header in the result.
func (rn *run) openSource() (*Reader, error) {
	rn.enter(PhaseOpening)
	r, err := OpenWithOptions(rn.cfg.PackPath, rn.readerOptions())
	if err != nil {
		return nil, err
	}

	header := r.Header()
	rn.res.Profile = r.Profile().Name
	rn.res.Header = &header
	rn.logger.Debug("opened pack",
		"path", rn.cfg.PackPath,
		"profile", r.Profile().Name,
		"engine", r.Header().Engine.String(),
		"entries", r.Header().EntryCount,
	)

	return r, nil
}

// list fills Result.Entries with the (filtered) directory table.
func (rn *run) list() error {
	filter, err := newEntryFilter(rn.cfg.Include, rn.cfg.Exclude)
	if err != nil {
		return err
	}

	r, err := rn.openSource()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	rn.enter(PhaseReading)
	rn.res.Entries = filterEntries(r.Entries(), filter)
	rn.enter(PhaseFinalizing)
	rn.res.Message = fmt.Sprintf("%s: %d entries, %s %s", rn.cfg.PackPath, len(rn.res.Entries), r.Profile().Name, r.Header().Engine)

	return nil
}

// extract writes selected entries under Output.
func (rn *run) extract(ctx context.Context) error {
	filter, err := newEntryFilter(rn.cfg.Include, rn.cfg.Exclude)
	if err != nil {
		return err
	}

	r, err := rn.openSource()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	rn.enter(PhaseReading)
	selected, missing := selectEntries(r, rn.cfg.Files)
	selected = filterEntries(selected, filter)

	dstDir := rn.cfg.Output
	if dstDir == "" {
		dstDir = "."
	}

	report, extractErr := r.Extract(ctx, dstDir, ExtractOptions{
		Entries:    selected,
		MaxWorkers: rn.cfg.Workers,
		OnEntryDone: func(entry EntryInfo, outputPath string) {
			rn.logger.Debug("extracted", "entry", entry.Path, "file", outputPath, "size", entry.Size)
		},
	})
	if report == nil {
		return extractErr
	}

	rn.enter(PhaseFinalizing)
	rn.res.Extracted = report.Extracted
	rn.res.Failed = append(missing, report.Failed...)
	total := len(selected) + len(missing)
	rn.res.Message = fmt.Sprintf("extracted %d of %d entries to %s", len(report.Extracted), total, dstDir)

	for _, failure := range rn.res.Failed {
		rn.logger.Warn("entry failed", "entry", failure.Path, "err", failure.Err)
	}

	if extractErr != nil && !errors.Is(extractErr, ErrExtractIncomplete) {
		return extractErr
	}

	if len(rn.res.Failed) > 0 {
		errs := make([]error, 0, len(rn.res.Failed)+1)
		errs = append(errs, fmt.Errorf("%w: %d of %d entries failed", ErrExtractIncomplete, len(rn.res.Failed), total))
		for _, failure := range rn.res.Failed {
			errs = append(errs, failure)
		}

		return errors.Join(errs...)
	}

	return nil
}

// selectEntries resolves named virtual paths; no names selects every entry.
func selectEntries(r *Reader, names []string) ([]EntryInfo, []EntryError) {
	if len(names) == 0 {
		return r.Entries(), nil
	}

	selected := make([]EntryInfo, 0, len(names))
	var missing []EntryError
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		entry, ok := r.Entry(name)
		if !ok {
			missing = append(missing, EntryError{Path: name, Err: ErrEntryNotFound})
			continue
		}

		if _, dup := seen[entry.Path]; dup {
			continue
		}

		seen[entry.Path] = struct{}{}
		selected = append(selected, entry)
	}

	return selected, missing
}

// add creates a new pack from local files.
func (rn *run) add(ctx context.Context) error {
	rn.enter(PhaseOpening)
	if _, err := os.Lstat(rn.cfg.PackPath); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rn.cfg.PackPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return ioFailure("stat pack "+rn.cfg.PackPath, err)
	}

	engine := rn.cfg.Engine
	if engine.IsZero() {
		engine = DefaultEngineVersion
	}

	profile, err := ResolveForWrite(engine)
	if err != nil {
		return err
	}

	inputs, err := rn.collectInputs()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no files left after filtering", ErrEmptyInputs)
	}

	rn.enter(PhaseWriting)
	builder := Begin(profile, BuilderOptions{Engine: engine})
	if err := builder.AddInputs(ctx, inputs, rn.cfg.Workers); err != nil {
		return err
	}

	return rn.commit(builder, rn.cfg.PackPath, true)
}

// repack rewrites the source pack with merged additions.
func (rn *run) repack(ctx context.Context) error {
	inputs, err := rn.collectInputs()
	if err != nil {
		return err
	}

	r, err := rn.openSource()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	profile := r.Profile()
	builderOpts := BuilderOptions{
		Engine:    r.Header().Engine,
		Alignment: r.Header().Alignment,
	}
	if !rn.cfg.Engine.IsZero() {
		profile, err = ResolveForWrite(rn.cfg.Engine)
		if err != nil {
			return err
		}

		builderOpts = BuilderOptions{Engine: rn.cfg.Engine}
		if profile.Name == r.Profile().Name {
			builderOpts.Alignment = r.Header().Alignment
		}
	}

	rn.enter(PhaseReading)
	merged := mergeInputs(r, r.Entries(), inputs)
	rn.logger.Debug("merged table",
		"existing", len(r.Entries()),
		"added", len(inputs),
		"total", len(merged),
		"profile", profile.Name,
	)

	rn.enter(PhaseWriting)
	builder := Begin(profile, builderOpts)
	if err := builder.AddInputs(ctx, merged, rn.cfg.Workers); err != nil {
		return err
	}

	if err := r.Close(); err != nil {
		return ioFailure("close source pack", err)
	}

	dst := rn.cfg.Output
	if dst == "" {
		dst = rn.cfg.PackPath
	}

	return rn.commit(builder, dst, false)
}

// mergeInputs returns existing entries in directory order with same-path additions
// substituted in place, followed by the remaining additions in given order.
// Paths match with the "res://" scheme ignored; a substitute keeps the stored path.
func mergeInputs(r *Reader, existing []EntryInfo, added []Input) []Input {
	byPath := make(map[string]int, len(added))
	for i := range added {
		byPath[trimResScheme(added[i].Path)] = i
	}

	used := make([]bool, len(added))
	merged := make([]Input, 0, len(existing)+len(added))
	for _, entry := range existing {
		if i, ok := byPath[trimResScheme(entry.Path)]; ok && !used[i] {
			in := added[i]
			in.Path = entry.Path
			merged = append(merged, in)
			used[i] = true
			continue
		}

		merged = append(merged, sourceInput(r, entry))
	}

	for i := range added {
		if !used[i] {
			merged = append(merged, added[i])
		}
	}

	return merged
}

// sourceInput streams one entry of the source pack.
func sourceInput(r *Reader, entry EntryInfo) Input {
	return Input{
		Path:     entry.Path,
		SizeHint: int64(min(entry.Size, uint64(1<<30))), //nolint:gosec // capped above
		Open: func() (io.ReadCloser, error) {
			return r.openEntryByInfo(entry, r.opts.VerifyChecksums)
		},
	}
}

// commit serializes builder into dst through a temp file and atomic rename.
// With noReplace an existing dst, even one created during the write, is never overwritten.
func (rn *run) commit(builder *Builder, dst string, noReplace bool) error {
	rn.enter(PhaseFinalizing)

	var written *WriteResult
	write := atomicWrite{dst: dst, beforeReplace: rn.opts.beforeReplace, noReplace: noReplace}
	err := write.commit(func(w io.Writer) error {
		res, err := builder.Serialize(w)
		written = res
		return err
	})
	if err != nil {
		return err
	}

	profile := builder.Profile()
	rn.res.PackPath = dst
	rn.res.Profile = profile.Name
	rn.res.Written = written
	rn.res.Entries = written.Entries
	rn.res.Header = &Header{
		Magic:         profile.Magic,
		FormatVersion: profile.FormatVersion,
		Engine:        builder.opts.Engine,
		Alignment:     builder.opts.Alignment,
		EntryCount:    uint32(len(written.Entries)), //nolint:gosec // bounded in addEntry
	}
	rn.res.Message = fmt.Sprintf(
		"wrote %d entries to %s (%s, %s %s)",
		len(written.Entries), dst, humanize.IBytes(uint64(written.TotalSize)), profile.Name, builder.opts.Engine, //nolint:gosec // non-negative
	)

	return nil
}

// collectInputs maps configured local files and directories to pack inputs.
// Directories are walked recursively in lexical order.
func (rn *run) collectInputs() ([]Input, error) {
	filter, err := newEntryFilter(rn.cfg.Include, rn.cfg.Exclude)
	if err != nil {
		return nil, err
	}

	var inputs []Input
	for _, local := range rn.cfg.Files {
		fi, err := os.Stat(local)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, local)
			}

			return nil, ioFailure("stat "+local, err)
		}

		if !fi.IsDir() {
			inputs = rn.appendLocalInput(inputs, filter, local, fi.Size())
			continue
		}

		walkErr := filepath.WalkDir(local, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}

			inputs = rn.appendLocalInput(inputs, filter, p, info.Size())
			return nil
		})
		if walkErr != nil {
			return nil, ioFailure("walk "+local, walkErr)
		}
	}

	return inputs, nil
}

// appendLocalInput appends one local file unless the filter drops its virtual path.
func (rn *run) appendLocalInput(inputs []Input, filter *entryFilter, local string, size int64) []Input {
	virtualPath := NormalizePath(StripPrefix(filepath.ToSlash(local), rn.cfg.RemovePrefix))
	if virtualPath != "" && !filter.Match(virtualPath) {
		rn.logger.Debug("skip filtered file", "file", local, "path", virtualPath)
		return inputs
	}

	return append(inputs, Input{
		Path:     virtualPath,
		SizeHint: size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(local) //nolint:gosec // user-selected input
		},
	})
}
