// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/woozymasta/pck"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// profileView is the printable form of a layout profile.
type profileView struct {
	Name             string `json:"name" yaml:"name"`
	FormatVersion    uint32 `json:"format_version" yaml:"format_version"`
	EngineMajor      uint32 `json:"engine_major" yaml:"engine_major"`
	DefaultAlignment uint32 `json:"default_alignment" yaml:"default_alignment"`
	Hash             string `json:"hash" yaml:"hash"`
	PathEncoding     string `json:"path_encoding" yaml:"path_encoding"`
}

// checkFormat rejects unknown output formats.
func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("%w: unknown output format %q (want text, json or yaml)", pck.ErrInvalidConfig, format)
	}
}

// writeResult renders one run result.
func writeResult(w io.Writer, format string, res *pck.Result) error {
	if res == nil {
		return nil
	}

	switch format {
	case formatJSON:
		return encodeJSON(w, res)
	case formatYAML:
		return encodeYAML(w, res)
	}

	if res.Action == pck.ActionList {
		var total uint64
		for _, entry := range res.Entries {
			total += entry.Size
			if _, err := fmt.Fprintf(w, "%s  %s\n", entry.Path, humanize.IBytes(entry.Size)); err != nil {
				return err
			}
		}

		engine := ""
		if res.Header != nil {
			engine = res.Header.Engine.String()
		}

		_, err := fmt.Fprintf(w, "%d entries, %s, %s %s\n", len(res.Entries), humanize.IBytes(total), res.Profile, engine)
		return err
	}

	_, err := fmt.Fprintln(w, res.Message)
	return err
}

// writeProfiles renders the supported profile table.
func writeProfiles(w io.Writer, format string, profiles []pck.Profile) error {
	views := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, profileView{
			Name:             p.Name,
			FormatVersion:    p.FormatVersion,
			EngineMajor:      p.EngineMajor,
			DefaultAlignment: p.DefaultAlignment,
			Hash:             p.Hash.String(),
			PathEncoding:     p.PathEncoding.String(),
		})
	}

	switch format {
	case formatJSON:
		return encodeJSON(w, views)
	case formatYAML:
		return encodeYAML(w, views)
	}

	for _, v := range views {
		_, err := fmt.Fprintf(
			w, "%s  format %d  engine %d.x  alignment %d  hash %s  paths %s\n",
			v.Name, v.FormatVersion, v.EngineMajor, v.DefaultAlignment, v.Hash, v.PathEncoding,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// encodeJSON writes v as indented JSON.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// encodeYAML writes v as YAML.
func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		_ = enc.Close()
		return err
	}

	return enc.Close()
}
