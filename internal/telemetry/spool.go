// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/cortexpipe/internal/util"
)

const spoolTimeLayout = "20060102-150405"

// =============================================================================
// FILE SINK
// =============================================================================

// FileSink spools each batch to its own JSON file. It serves offline runs
// and as the secondary of a Fallback sink; Replay later forwards spooled
// batches to the warehouse.
type FileSink struct {
	dir string
	now func() time.Time
}

// NewFileSink creates a spool in dir.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, ".cortexpipe", "spool")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &FileSink{dir: dir, now: time.Now}, nil
}

// Dir returns the spool directory.
func (fs *FileSink) Dir() string { return fs.dir }

// WriteBatch writes records to a new spool file atomically.
func (fs *FileSink) WriteBatch(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	name := fs.now().UTC().Format(spoolTimeLayout) + "-" + uuid.NewString()[:8]
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode spool batch: %w", err)
	}

	// RELIABILITY: a crash mid-write must not leave a truncated batch
	if err := util.AtomicWriteFile(filepath.Join(fs.dir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write spool batch: %w", err)
	}
	return nil
}

// Load reads one spooled batch by name.
func (fs *FileSink) Load(name string) ([]Record, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, name+".json"))
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode spool batch %s: %w", name, err)
	}
	return records, nil
}

// List returns batch names written within [from, to], oldest first.
func (fs *FileSink) List(from, to time.Time) ([]string, error) {
	entries, err := fs.entries()
	if err != nil {
		return nil, err
	}

	var names []string
	for name, ts := range entries {
		if ts.Before(from) || ts.After(to) {
			continue
		}
		names = append(names, name)
	}

	// Names are timestamp prefixed
	sort.Strings(names)
	return names, nil
}

// Delete removes one batch.
func (fs *FileSink) Delete(name string) error {
	return os.Remove(filepath.Join(fs.dir, name+".json"))
}

// DeleteBefore removes batches written before the given time and returns
// how many were removed.
func (fs *FileSink) DeleteBefore(before time.Time) (int, error) {
	entries, err := fs.entries()
	if err != nil {
		return 0, err
	}

	removed := 0
	for name, ts := range entries {
		if ts.Before(before) {
			if err := fs.Delete(name); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Count returns the number of spooled batches.
func (fs *FileSink) Count() (int, error) {
	entries, err := fs.entries()
	return len(entries), err
}

// Replay forwards every spooled batch to dst, oldest first, deleting each
// file once dst accepts it. It stops at the first failure.
func (fs *FileSink) Replay(ctx context.Context, dst Sink) (int, error) {
	names, err := fs.List(time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		records, err := fs.Load(name)
		if err != nil {
			return replayed, err
		}
		if err := dst.WriteBatch(ctx, records); err != nil {
			return replayed, fmt.Errorf("failed to replay spool batch %s: %w", name, err)
		}
		if err := fs.Delete(name); err != nil {
			return replayed, fmt.Errorf("replayed %s but failed to delete it: %w", name, err)
		}
		replayed += len(records)
	}
	return replayed, nil
}

// entries maps batch names to their write time, skipping foreign files.
func (fs *FileSink) entries() (map[string]time.Time, error) {
	dirEntries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")

		// Format: YYYYMMDD-HHMMSS-suffix
		parts := strings.SplitN(name, "-", 3)
		if len(parts) < 3 {
			continue
		}
		ts, err := time.Parse(spoolTimeLayout, parts[0]+"-"+parts[1])
		if err != nil {
			continue
		}
		out[name] = ts
	}
	return out, nil
}
