// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// =============================================================================
// DIRECTORY WATCHER
// =============================================================================

// DefaultDebounce is how long a file must stay unchanged before it is loaded.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	Debounce time.Duration
	// Embed runs EmbedPending after each load.
	Embed bool
}

// Watcher reloads supported files below a directory as they change.
type Watcher struct {
	in       *Ingestor
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	embed    bool
	pending  map[string]time.Time
}

// WatchDocID is the doc id used for watched files. It is stable for a
// path so a rewritten file replaces its previous version.
func WatchDocID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs)))
	return fmt.Sprintf("doc_%s_%s", stem, strings.ReplaceAll(sum.String(), "-", "")[:8])
}

// NewWatcher registers dir and its subdirectories.
func (in *Ingestor) NewWatcher(dir string, opts WatchOptions) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	w := &Watcher{
		in:       in,
		fsw:      fsw,
		root:     dir,
		debounce: opts.Debounce,
		embed:    opts.Embed,
		pending:  make(map[string]time.Time),
	}
	if err := w.addRecursive(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Watch blocks until ctx is done, loading files below dir as they settle.
func (in *Ingestor) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	w, err := in.NewWatcher(dir, opts)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.in.logger.Printf("INGEST_WATCH_ADD_FAILED | dir=%s | error=%v", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is done. The watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	w.in.logger.Printf("INGEST_WATCH | dir=%s | debounce=%s", w.root, w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.in.logger.Printf("INGEST_WATCH_ERROR | error=%v", err)

		case now := <-ticker.C:
			for path, changed := range w.pending {
				if now.Sub(changed) >= w.debounce {
					delete(w.pending, path)
					w.reload(ctx, path)
				}
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}
	if !IsSupported(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.pending[event.Name] = time.Now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
		id := WatchDocID(event.Name)
		if err := w.in.Remove(ctx, id); err != nil {
			w.in.logger.Printf("INGEST_WATCH_REMOVE_FAILED | path=%s | error=%v", event.Name, err)
			return
		}
		w.in.logger.Printf("INGEST_WATCH_REMOVED | doc_id=%s", id)
	}
}

// reload replaces the document for path, keeping the stored version when
// the new one cannot be loaded. Files that vanished before the debounce
// elapsed are skipped.
func (w *Watcher) reload(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	id := WatchDocID(path)
	if err := w.in.ReplaceDocument(ctx, path, id); err != nil {
		return
	}
	w.in.logger.Printf("INGEST_WATCH_LOADED | doc_id=%s | path=%s", id, path)

	if w.embed {
		if _, err := w.in.EmbedPending(ctx); err != nil {
			w.in.logger.Printf("INGEST_WATCH_EMBED_FAILED | doc_id=%s | error=%v", id, err)
		}
	}
}
