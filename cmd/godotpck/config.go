// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional config file (~/.config/godotpck/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type fileConfig struct {
	Format   string   `yaml:"format"`
	LogLevel string   `yaml:"log_level"`
	Workers  *int     `yaml:"workers"`
	Verify   *bool    `yaml:"verify"`
	Mmap     *bool    `yaml:"mmap"`
	Include  []string `yaml:"include"`
	Exclude  []string `yaml:"exclude"`
}

// configPath returns the default config file location, or "" when unknown.
func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "godotpck", "config.yaml")
}

// loadConfig reads the config file. A missing file is an error only when required.
func loadConfig(path string, required bool) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-selected config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return fileConfig{}, nil
		}

		return fileConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// applyFileConfig copies config file values into opts where the flag was not set.
func applyFileConfig(c *cli.Command, cfg fileConfig, opts *cliOptions) {
	if cfg.Format != "" && !c.IsSet("format") {
		opts.format = cfg.Format
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		opts.logLevel = cfg.LogLevel
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		opts.workers = *cfg.Workers
	}
	if cfg.Verify != nil && !c.IsSet("no-verify") {
		opts.noVerify = !*cfg.Verify
	}
	if cfg.Mmap != nil && !c.IsSet("mmap") {
		opts.mmap = *cfg.Mmap
	}
	if len(cfg.Include) > 0 && !c.IsSet("include") {
		opts.include = cfg.Include
	}
	if len(cfg.Exclude) > 0 && !c.IsSet("exclude") {
		opts.exclude = cfg.Exclude
	}
}
