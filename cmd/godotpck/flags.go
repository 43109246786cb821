// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package main

import "github.com/urfave/cli/v3"

// cliOptions holds parsed flag values of one invocation.
type cliOptions struct {
	pack         string
	action       string
	files        []string
	output       string
	removePrefix string
	godotVersion string
	include      []string
	exclude      []string
	format       string
	logLevel     string
	configPath   string
	workers      int
	noVerify     bool
	mmap         bool
	listProfiles bool
}

// appFlags binds every flag to opts.
func appFlags(opts *cliOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "pack",
			Aliases:     []string{"p"},
			Usage:       "pack file to operate on (defaults to the first positional file)",
			Destination: &opts.pack,
		},
		&cli.StringFlag{
			Name:        "action",
			Aliases:     []string{"a"},
			Usage:       "action: [l]ist, [e]xtract, [a]dd or [r]epack",
			Value:       "list",
			Destination: &opts.action,
		},
		&cli.StringSliceFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "files to add, or virtual paths to extract (repeatable)",
			Destination: &opts.files,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "extract directory, or repack destination file",
			Destination: &opts.output,
		},
		&cli.StringFlag{
			Name:        "remove-prefix",
			Usage:       "prefix removed from local paths of added files",
			Destination: &opts.removePrefix,
		},
		&cli.StringFlag{
			Name:        "set-godot-version",
			Usage:       "engine version x.y.z written by add and repack",
			Destination: &opts.godotVersion,
		},
		&cli.StringSliceFlag{
			Name:        "include",
			Usage:       "keep only matching virtual paths (gitignore syntax, repeatable)",
			Destination: &opts.include,
		},
		&cli.StringSliceFlag{
			Name:        "exclude",
			Usage:       "drop matching virtual paths (gitignore syntax, repeatable)",
			Destination: &opts.exclude,
		},
		&cli.BoolFlag{
			Name:        "no-verify",
			Usage:       "skip checksum verification of read payloads",
			Destination: &opts.noVerify,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "extraction and hashing workers (0 means number of CPUs)",
			Destination: &opts.workers,
		},
		&cli.BoolFlag{
			Name:        "mmap",
			Usage:       "memory-map the source pack",
			Destination: &opts.mmap,
		},
		&cli.StringFlag{
			Name:        "format",
			Usage:       "output format: text, json or yaml",
			Value:       "text",
			Destination: &opts.format,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level: debug, info, warn, error",
			Value:       "warn",
			Destination: &opts.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file with flag defaults",
			Value:       configPath(),
			Destination: &opts.configPath,
		},
		&cli.BoolFlag{
			Name:        "list-profiles",
			Usage:       "print supported pack layouts and exit",
			Destination: &opts.listProfiles,
		},
	}
}
