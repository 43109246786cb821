package pck

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "slash", in: "/", want: ""},
		{name: "clean", in: "scenes/levels/main.tscn", want: "scenes/levels/main.tscn"},
		{name: "windows", in: `.\scenes\levels\`, want: "scenes/levels"},
		{name: "dot segments", in: "./a/../b//c.txt", want: "b/c.txt"},
		{name: "absolute", in: "/tmp/project/icon.png", want: "tmp/project/icon.png"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizePath(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizePath(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripPrefix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		path   string
		prefix string
		want   string
	}{
		{name: "segment match", path: "assets/textures/a.png", prefix: "assets/", want: "textures/a.png"},
		{name: "no trailing slash", path: "assets/textures/a.png", prefix: "assets", want: "textures/a.png"},
		{name: "no match", path: "assets/textures/a.png", prefix: "zzz/", want: "assets/textures/a.png"},
		{name: "partial segment", path: "assets/textures/a.png", prefix: "asse", want: "assets/textures/a.png"},
		{name: "sibling dir", path: "assets2/x.png", prefix: "assets/", want: "assets2/x.png"},
		{name: "empty prefix", path: "assets/a.png", prefix: "", want: "assets/a.png"},
		{name: "whole path", path: "assets/a.png", prefix: "assets/a.png", want: "assets/a.png"},
		{name: "backslashes", path: `assets\textures\a.png`, prefix: `assets\`, want: "textures/a.png"},
		{name: "dot slash", path: "./assets/a.png", prefix: "./assets/", want: "a.png"},
		{name: "nested prefix", path: "game/assets/a.png", prefix: "game/assets", want: "a.png"},
		{name: "absolute", path: "/home/dev/game/a.png", prefix: "/home/dev/game", want: "a.png"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := StripPrefix(tc.path, tc.prefix)
			if got != tc.want {
				t.Fatalf("StripPrefix(%q, %q)=%q, want %q", tc.path, tc.prefix, got, tc.want)
			}
		})
	}
}

func TestValidateVirtualPath(t *testing.T) {
	t.Parallel()

	p := profiles[1]
	testCases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "plain", in: "scenes/main.tscn"},
		{name: "res scheme", in: "res://scenes/main.tscn"},
		{name: "max length", in: strings.Repeat("a", maxPathLen)},
		{name: "empty", in: "", wantErr: true},
		{name: "nul", in: "a\x00b", wantErr: true},
		{name: "bad utf8", in: "a\xffb", wantErr: true},
		{name: "too long", in: strings.Repeat("a", maxPathLen+1), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := validateVirtualPath(p, tc.in)
			if tc.wantErr && !errors.Is(err, ErrInvalidEntryPath) {
				t.Fatalf("validateVirtualPath(%q) error=%v, want ErrInvalidEntryPath", tc.in, err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("validateVirtualPath(%q): %v", tc.in, err)
			}
		})
	}
}

func TestNormalizeExtractEntryPath(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"scenes/main.tscn":     "scenes/main.tscn",
		`scenes\main.tscn`:     "scenes/main.tscn",
		"./a//b/./c.txt":       "a/b/c.txt",
		".import/icon.png-abc": ".import/icon.png-abc",
	}
	for in, want := range valid {
		got, err := normalizeExtractEntryPath(in)
		if err != nil {
			t.Fatalf("normalizeExtractEntryPath(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("normalizeExtractEntryPath(%q)=%q, want %q", in, got, want)
		}
	}

	invalid := []string{"", " ", "/etc/passwd", `\windows`, "C:/x", "c:evil", "../up", "a/../../b", "a\x00b", "./."}
	for _, in := range invalid {
		if _, err := normalizeExtractEntryPath(in); !errors.Is(err, ErrInvalidExtractPath) {
			t.Fatalf("normalizeExtractEntryPath(%q) error=%v, want ErrInvalidExtractPath", in, err)
		}
	}
}
