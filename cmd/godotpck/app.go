// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/woozymasta/pck"
)

// newApp builds the root command writing results to stdout and logs to stderr.
func newApp(stdout io.Writer, stderr io.Writer) *cli.Command {
	opts := &cliOptions{}

	return &cli.Command{
		Name:      "godotpck",
		Usage:     "List, extract, create and repack Godot .pck files",
		ArgsUsage: "[pack.pck] [files...]",
		Flags:     appFlags(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg, err := loadConfig(opts.configPath, cmd.IsSet("config"))
			if err != nil {
				return err
			}
			applyFileConfig(cmd, fileCfg, opts)

			if err := checkFormat(opts.format); err != nil {
				return err
			}

			if opts.listProfiles {
				return writeProfiles(stdout, opts.format, pck.Profiles())
			}

			logger, err := newLogger(stderr, opts.logLevel)
			if err != nil {
				return err
			}

			cfg, err := buildConfig(opts, cmd.Args().Slice())
			if err != nil {
				return err
			}

			res, runErr := pck.Run(ctx, cfg, pck.RunOptions{Logger: logger})
			if runErr != nil && opts.format == formatText {
				return runErr
			}

			if err := writeResult(stdout, opts.format, res); err != nil && runErr == nil {
				return err
			}

			return runErr
		},
	}
}

// newLogger creates a stderr logger at the requested level.
func newLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q: %w", pck.ErrInvalidConfig, level, err)
	}

	return log.NewWithOptions(w, log.Options{
		Prefix: "godotpck",
		Level:  lvl,
	}), nil
}

// buildConfig turns flags and positional arguments into an engine config.
// Without --pack the first file becomes the pack path.
func buildConfig(opts *cliOptions, args []string) (pck.Config, error) {
	files := make([]string, 0, len(opts.files)+len(args))
	files = append(files, args...)
	files = append(files, opts.files...)

	packPath := opts.pack
	if packPath == "" {
		if len(files) == 0 {
			return pck.Config{}, fmt.Errorf("%w: no pack file given", pck.ErrInvalidConfig)
		}

		packPath = files[0]
		files = files[1:]
	}

	if !strings.Contains(packPath, ".pck") {
		return pck.Config{}, fmt.Errorf("%w: pack path %q has no .pck extension", pck.ErrInvalidConfig, packPath)
	}

	action, err := pck.ParseAction(opts.action)
	if err != nil {
		return pck.Config{}, err
	}

	var engine pck.EngineVersion
	if opts.godotVersion != "" {
		engine, err = parseEngineVersion(opts.godotVersion)
		if err != nil {
			return pck.Config{}, err
		}
	}

	cfg := pck.Config{
		PackPath:     packPath,
		Action:       action,
		Files:        files,
		Output:       opts.output,
		RemovePrefix: opts.removePrefix,
		Engine:       engine,
		Include:      opts.include,
		Exclude:      opts.exclude,
		Verify:       !opts.noVerify,
		UseMmap:      opts.mmap,
		Workers:      opts.workers,
	}

	return cfg, cfg.Validate()
}

// parseEngineVersion parses "major.minor.patch".
func parseEngineVersion(raw string) (pck.EngineVersion, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return pck.EngineVersion{}, fmt.Errorf("%w: godot version %q must be major.minor.patch", pck.ErrInvalidConfig, raw)
	}

	var nums [3]uint32
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return pck.EngineVersion{}, fmt.Errorf("%w: godot version %q: %w", pck.ErrInvalidConfig, raw, err)
		}

		nums[i] = uint32(n)
	}

	return pck.EngineVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
