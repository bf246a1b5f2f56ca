// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	data := []byte("hello, warehouse!")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("content: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "deep", "settings.yaml")

	if err := AtomicWriteFile(path, []byte("llm: {}"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("replaced"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "replaced" {
		t.Errorf("content: got %q, want %q", string(content), "replaced")
	}

	// No temp files may be left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ellipsis", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"utf8", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.input, tt.max); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d): got %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncateRunesNoEllipsis(t *testing.T) {
	long := strings.Repeat("a", 1500)
	got := TruncateRunesNoEllipsis(long, 1000)
	if RuneLen(got) != 1000 {
		t.Errorf("length: got %d, want 1000", RuneLen(got))
	}
	if strings.HasSuffix(got, "...") {
		t.Error("no ellipsis expected")
	}

	multi := strings.Repeat("日", 30)
	if got := TruncateRunesNoEllipsis(multi, 10); got != strings.Repeat("日", 10) {
		t.Errorf("multi-byte truncation: got %q", got)
	}

	if got := TruncateRunesNoEllipsis("abc", 10); got != "abc" {
		t.Errorf("short input: got %q, want %q", got, "abc")
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := TruncateWidth("hello world", 8); got != "hello..." {
		t.Errorf("ascii: got %q, want %q", got, "hello...")
	}
	// Each CJK character is two columns wide
	got := TruncateWidth("日本語テキスト", 7)
	if w := runewidth.StringWidth(got); w > 7 {
		t.Errorf("wide truncation: width %d exceeds 7: %q", w, got)
	}
	if got := TruncateWidth("abc", 0); got != "" {
		t.Errorf("zero width: got %q", got)
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight: got %q", got)
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"one", 1},
		{"  what is   cortex  ", 3},
		{"line\nbreak\ttab", 3},
	}
	for _, tt := range tests {
		if got := WordCount(tt.input); got != tt.want {
			t.Errorf("WordCount(%q): got %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		f      float64
		places int
		want   float64
	}{
		{12.3456, 2, 12.35},
		{0.0000126, 6, 0.000013},
		{99.994, 2, 99.99},
		{7.5, 0, 8},
		{-1.005, 1, -1.0},
	}
	for _, tt := range tests {
		if got := Round(tt.f, tt.places); got != tt.want {
			t.Errorf("Round(%v, %d): got %v, want %v", tt.f, tt.places, got, tt.want)
		}
	}
}
