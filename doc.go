// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

/*
Package pck provides read, extract, build, and repack operations for Godot
PCK resource packs. Pack layout differences between engine generations are
captured by versioned layout profiles:

  - godot3: 28-byte header, MD5 checksums, no payload alignment;
  - godot4: 32-byte header with alignment field, BLAKE3 checksums,
    payloads aligned to 32 bytes, paths NUL-padded to 4 bytes.

Readers pick the profile from the header format version. Writers pick it from
the target engine major version (see ResolveForWrite).

Encrypted packs and entries are detected and reported, but their payloads
are never decoded (ErrUnsupportedFeature).

# Reading

Open a pack and read entries:

	r, err := pck.Open("game.pck")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    data, _ := r.ReadEntry(e.Path)
	    // use data
	}

Lookups accept virtual paths with or without the "res://" scheme.

For metadata-only scans, use helpers that do not keep the file open:

	header, profile, err := pck.ReadHeader("game.pck")
	if err != nil {
	    return err
	}
	entries, err := pck.ListEntries("game.pck")
	if err != nil {
	    return err
	}
	_, _, _ = header, profile, entries

Enable checksum verification and memory mapping:

	r, err := pck.OpenWithOptions("game.pck", pck.ReaderOptions{
	    VerifyChecksums: true,
	    UseMmap:         true,
	})

# Extracting

Extract all entries to a directory (parallel workers). Entry failures do not
stop the run; they are collected in the report:

	report, err := r.Extract(ctx, "out/", pck.ExtractOptions{MaxWorkers: 4})
	if errors.Is(err, pck.ErrExtractIncomplete) {
	    for _, f := range report.Failed {
	        log.Printf("%s: %v", f.Path, f.Err)
	    }
	}

# Building

Accumulate entries and serialize once:

	profile, err := pck.ResolveForWrite(pck.EngineVersion{Major: 4, Minor: 2})
	if err != nil {
	    return err
	}
	b := pck.Begin(profile, pck.BuilderOptions{Engine: pck.EngineVersion{Major: 4, Minor: 2}})
	if err := b.AddEntry("project.binary", data); err != nil {
	    return err
	}
	packed, err := b.Finalize()

Stream-oriented inputs are read and hashed in parallel, keeping their order:

	err := b.AddInputs(ctx, []pck.Input{
	    {Path: "icon.png", Open: func() (io.ReadCloser, error) { return os.Open("src/icon.png") }},
	}, 4)

# Actions

Run executes one list, extract, add, or repack action described by Config.
Add and repack write through a temp file and an atomic rename, so a failed
run never leaves a partially written pack behind:

	res, err := pck.Run(ctx, pck.Config{
	    PackPath:     "game.pck",
	    Action:       pck.ActionRepack,
	    Files:        []string{"patch/"},
	    RemovePrefix: "patch",
	    Engine:       pck.EngineVersion{Major: 4, Minor: 2},
	}, pck.RunOptions{})
*/
package pck
