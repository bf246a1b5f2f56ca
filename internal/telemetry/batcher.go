// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultFlushTimeout = 30 * time.Second

// =============================================================================
// BATCHER
// =============================================================================

// Batcher buffers telemetry records in memory and writes them to a Sink in
// bulk. A failed write leaves the buffer untouched so the same records are
// retried on the next flush.
type Batcher struct {
	mu  sync.Mutex
	buf []Record

	// flushMu serializes flushes so a record is never written twice.
	flushMu sync.Mutex

	sink         Sink
	batchSize    int
	warnMultiple int
	sessionID    string
	flushTimeout time.Duration

	logger *log.Logger
	inst   *Instruments
	now    func() time.Time
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithLogger sets the logger used for flush outcomes.
func WithLogger(l *log.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithInstruments feeds Log and Flush outcomes into metrics.
func WithInstruments(inst *Instruments) Option {
	return func(b *Batcher) { b.inst = inst }
}

// WithWarnMultiple sets the backlog size, in batches, past which failed
// flushes log TELEMETRY_BACKLOG.
func WithWarnMultiple(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.warnMultiple = n
		}
	}
}

// WithFlushTimeout bounds flushes triggered from Log.
func WithFlushTimeout(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.flushTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) { b.now = now }
}

// NewBatcher creates a Batcher writing to sink. A batchSize below 1 is
// treated as 1.
func NewBatcher(sink Sink, batchSize int, opts ...Option) *Batcher {
	if batchSize < 1 {
		batchSize = 1
	}
	b := &Batcher{
		sink:         sink,
		batchSize:    batchSize,
		warnMultiple: 10,
		sessionID:    uuid.NewString(),
		flushTimeout: defaultFlushTimeout,
		logger:       log.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionID is constant for the lifetime of the Batcher.
func (b *Batcher) SessionID() string { return b.sessionID }

// BatchSize returns the automatic flush threshold.
func (b *Batcher) BatchSize() int { return b.batchSize }

// Pending returns the number of buffered records.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Log buffers one record and returns its id. When the buffer reaches the
// batch size it is flushed; a flush failure, including a sink panic, is
// logged, never returned.
func (b *Batcher) Log(e Entry) string {
	rec := newRecord(e, b.sessionID, b.now())

	b.mu.Lock()
	b.buf = append(b.buf, rec)
	pending := len(b.buf)
	b.mu.Unlock()

	b.inst.recordLogged(rec, pending)

	if pending >= b.batchSize {
		b.flushQuietly()
	}
	return rec.ID
}

// flushQuietly runs a threshold flush for Log. A panicking sink is
// recovered and treated as a failed write; the buffer is kept.
func (b *Batcher) flushQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			pending := b.Pending()
			b.inst.flushFailed(ctx, 0, pending)
			b.logger.Printf("TELEMETRY_FLUSH_FAILED | pending=%d | error=sink panic: %v", pending, r)
		}
	}()
	_ = b.Flush(ctx)
}

// Flush writes every buffered record in one bulk write. An empty buffer is
// a no-op. On success the written records leave the buffer; on failure the
// buffer is unchanged and the error is returned to the direct caller.
func (b *Batcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	n := len(b.buf)
	if n == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := make([]Record, n)
	copy(batch, b.buf)
	b.mu.Unlock()

	start := time.Now()
	err := b.sink.WriteBatch(ctx, batch)
	elapsed := time.Since(start)

	if err != nil {
		pending := b.Pending()
		b.inst.flushFailed(ctx, elapsed, pending)
		b.logger.Printf("TELEMETRY_FLUSH_FAILED | records=%d | pending=%d | error=%v", n, pending, err)
		if limit := b.batchSize * b.warnMultiple; pending > limit {
			b.logger.Printf("TELEMETRY_BACKLOG | pending=%d | limit=%d | sink is not accepting writes", pending, limit)
		}
		return err
	}

	// Records logged while the write was in flight stay buffered.
	b.mu.Lock()
	rest := make([]Record, len(b.buf)-n)
	copy(rest, b.buf[n:])
	b.buf = rest
	pending := len(b.buf)
	b.mu.Unlock()

	b.inst.flushSucceeded(ctx, elapsed, pending)
	b.logger.Printf("TELEMETRY_FLUSH | records=%d | duration=%s", n, elapsed.Round(time.Millisecond))
	return nil
}

// Close flushes whatever is left. Call it on shutdown.
func (b *Batcher) Close(ctx context.Context) error {
	return b.Flush(ctx)
}

// =============================================================================
// SCOPED OPERATIONS
// =============================================================================

// Start opens a scoped operation. End must be called exactly once; Track
// does this automatically.
func (b *Batcher) Start(kind, model string) *Operation {
	return &Operation{
		batcher: b,
		kind:    kind,
		model:   model,
		start:   time.Now(),
		meta:    map[string]any{},
	}
}

// Track runs fn inside a scoped operation. The record is logged however fn
// exits; a panic is logged as a failure and then re-raised. fn's error is
// returned unchanged.
func (b *Batcher) Track(ctx context.Context, kind, model string, fn func(ctx context.Context, op *Operation) error) error {
	op := b.Start(kind, model)
	defer func() {
		if r := recover(); r != nil {
			op.endPanic(r)
			panic(r)
		}
	}()
	return op.End(fn(ctx, op))
}
