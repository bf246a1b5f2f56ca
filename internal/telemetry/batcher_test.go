// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/cortexpipe/internal/pricing"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// memorySink collects written batches and can be told to fail.
type memorySink struct {
	mu      sync.Mutex
	batches [][]Record
	fail    error
}

func (m *memorySink) WriteBatch(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *memorySink) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memorySink) all() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(buf, "", 0)
}

func TestBatcher_FlushesAtThreshold(t *testing.T) {
	sink := &memorySink{}
	var logs bytes.Buffer
	b := NewBatcher(sink, 3, WithLogger(quietLogger(&logs)))

	b.Log(Entry{OperationType: "a", Success: true})
	b.Log(Entry{OperationType: "b", Success: true})
	assert.Empty(t, sink.batches)
	assert.Equal(t, 2, b.Pending())

	b.Log(Entry{OperationType: "c", Success: true})
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 3)
	assert.Equal(t, 0, b.Pending())
	assert.Contains(t, logs.String(), "TELEMETRY_FLUSH | records=3")
}

func TestBatcher_SinkPanicIsContained(t *testing.T) {
	var logs bytes.Buffer
	calls := 0
	sink := SinkFunc(func(context.Context, []Record) error {
		calls++
		if calls == 1 {
			panic("driver bug")
		}
		return nil
	})
	b := NewBatcher(sink, 1, WithLogger(quietLogger(&logs)))

	var id string
	require.NotPanics(t, func() {
		id = b.Log(Entry{OperationType: "a", Success: true})
	})
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, b.Pending())
	assert.Contains(t, logs.String(), "TELEMETRY_FLUSH_FAILED")
	assert.Contains(t, logs.String(), "driver bug")

	// The lock is released, so the next threshold flush writes the backlog.
	b.Log(Entry{OperationType: "b", Success: true})
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_TrackSurvivesSinkPanic(t *testing.T) {
	sink := SinkFunc(func(context.Context, []Record) error { panic("driver bug") })
	b := NewBatcher(sink, 1, WithLogger(quietLogger(&bytes.Buffer{})))

	var err error
	require.NotPanics(t, func() {
		err = b.Track(context.Background(), OpLLMCompletion, "mistral-large", func(context.Context, *Operation) error {
			return nil
		})
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, b.Pending())
}

func TestBatcher_FailureRetainsBuffer(t *testing.T) {
	sink := &memorySink{fail: errors.New("warehouse unavailable")}
	var logs bytes.Buffer
	b := NewBatcher(sink, 2, WithLogger(quietLogger(&logs)))

	id1 := b.Log(Entry{OperationType: "a", Success: true})
	id2 := b.Log(Entry{OperationType: "b", Success: true})

	// Log never surfaces the error; it returns ids regardless.
	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, id2)
	assert.Equal(t, 2, b.Pending())
	assert.Contains(t, logs.String(), "TELEMETRY_FLUSH_FAILED")

	err := b.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, b.Pending())

	sink.setFail(nil)
	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 0, b.Pending())

	written := sink.all()
	require.Len(t, written, 2)
	assert.Equal(t, id1, written[0].ID)
	assert.Equal(t, id2, written[1].ID)
}

func TestBatcher_BacklogWarning(t *testing.T) {
	sink := &memorySink{fail: errors.New("down")}
	var logs bytes.Buffer
	b := NewBatcher(sink, 1, WithLogger(quietLogger(&logs)), WithWarnMultiple(2))

	for i := 0; i < 3; i++ {
		b.Log(Entry{OperationType: "x", Success: true})
	}
	assert.Equal(t, 3, b.Pending())
	assert.Contains(t, logs.String(), "TELEMETRY_BACKLOG | pending=3 | limit=2")
}

func TestBatcher_EmptyFlushIsNoop(t *testing.T) {
	sink := &memorySink{fail: errors.New("must not be called")}
	b := NewBatcher(sink, 10, WithLogger(quietLogger(&bytes.Buffer{})))

	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, b.Close(context.Background()))
}

func TestBatcher_SessionIDConstant(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 100, WithLogger(quietLogger(&bytes.Buffer{})))

	b.Log(Entry{OperationType: "a", Success: true})
	b.Log(Entry{OperationType: "b", Success: true})
	require.NoError(t, b.Close(context.Background()))

	for _, r := range sink.all() {
		assert.Equal(t, b.SessionID(), r.SessionID)
	}
}

func TestBatcher_ConcurrentLog(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 7, WithLogger(quietLogger(&bytes.Buffer{})))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				b.Log(Entry{OperationType: "concurrent", Success: true})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, b.Close(context.Background()))

	written := sink.all()
	require.Len(t, written, 200)
	seen := make(map[string]bool, len(written))
	for _, r := range written {
		assert.False(t, seen[r.ID], "record %s written twice", r.ID)
		seen[r.ID] = true
	}
}

func TestNewRecord_Normalizes(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry Entry
		check func(t *testing.T, r Record)
	}{
		{
			name:  "success clears error message",
			entry: Entry{OperationType: "a", Success: true, ErrorMessage: "ignored"},
			check: func(t *testing.T, r Record) {
				assert.Empty(t, r.ErrorMessage)
			},
		},
		{
			name:  "failure without message",
			entry: Entry{OperationType: "a", Success: false},
			check: func(t *testing.T, r Record) {
				assert.Equal(t, "unknown error", r.ErrorMessage)
			},
		},
		{
			name:  "rounding",
			entry: Entry{OperationType: "a", Success: true, LatencyMs: 12.3456, CostUSD: 0.00001234567},
			check: func(t *testing.T, r Record) {
				assert.Equal(t, 12.35, r.LatencyMs)
				assert.Equal(t, 0.000012, r.CostUSD)
			},
		},
		{
			name:  "negatives clamp",
			entry: Entry{OperationType: "a", Success: true, InputTokens: -5, LatencyMs: -1, CostUSD: -2},
			check: func(t *testing.T, r Record) {
				assert.Zero(t, r.InputTokens)
				assert.Zero(t, r.LatencyMs)
				assert.Zero(t, r.CostUSD)
			},
		},
		{
			name: "truncation counts runes",
			entry: Entry{
				OperationType: "a",
				Success:       true,
				QueryText:     strings.Repeat("é", 1500),
				ResponseText:  strings.Repeat("x", 2500),
			},
			check: func(t *testing.T, r Record) {
				assert.Equal(t, MaxQueryText, util.RuneLen(r.QueryText))
				assert.Equal(t, MaxResponseText, util.RuneLen(r.ResponseText))
				assert.False(t, strings.HasSuffix(r.ResponseText, "..."))
			},
		},
		{
			name:  "metadata never nil",
			entry: Entry{OperationType: "a", Success: true},
			check: func(t *testing.T, r Record) {
				assert.NotNil(t, r.Metadata)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecord(tt.entry, "session", now)
			assert.NotEmpty(t, r.ID)
			assert.Equal(t, now, r.CreatedAt)
			tt.check(t, r)
		})
	}
}

func TestNewRecord_CopiesMetadata(t *testing.T) {
	meta := map[string]any{"k": 1}
	r := newRecord(Entry{OperationType: "a", Success: true, Metadata: meta}, "s", time.Now())
	meta["k"] = 2
	assert.Equal(t, 1, r.Metadata["k"])
}

// =============================================================================
// SCOPED OPERATIONS
// =============================================================================

func TestTrack_Success(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 100, WithLogger(quietLogger(&bytes.Buffer{})))

	err := b.Track(context.Background(), OpLLMCompletion, "mistral-large", func(_ context.Context, op *Operation) error {
		op.SetTokens(1000, 500)
		op.SetQuery("what is cortex")
		op.SetResponse("an AI layer")
		op.AddMetadata("prompt_length", 14)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, b.Close(context.Background()))

	written := sink.all()
	require.Len(t, written, 1)
	r := written[0]
	assert.True(t, r.Success)
	assert.Empty(t, r.ErrorMessage)
	assert.Equal(t, OpLLMCompletion, r.OperationType)
	assert.Equal(t, 1500, r.TotalTokens())
	assert.Equal(t, util.Round(pricing.OperationCost(1000, 500, "mistral-large"), 6), r.CostUSD)
	assert.Equal(t, 14, r.Metadata["prompt_length"])
	assert.GreaterOrEqual(t, r.LatencyMs, 0.0)
}

func TestTrack_FailureReturnsSameError(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 100, WithLogger(quietLogger(&bytes.Buffer{})))

	want := errors.New("cortex timeout")
	got := b.Track(context.Background(), OpSemanticSearch, "vector_similarity", func(context.Context, *Operation) error {
		return want
	})
	assert.Same(t, want, got)
	require.NoError(t, b.Close(context.Background()))

	written := sink.all()
	require.Len(t, written, 1)
	assert.False(t, written[0].Success)
	assert.Equal(t, "cortex timeout", written[0].ErrorMessage)
	assert.Zero(t, written[0].CostUSD)
}

func TestTrack_PanicIsLoggedAndReraised(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 100, WithLogger(quietLogger(&bytes.Buffer{})))

	assert.PanicsWithValue(t, "boom", func() {
		_ = b.Track(context.Background(), "explode", "", func(context.Context, *Operation) error {
			panic("boom")
		})
	})

	require.Equal(t, 1, b.Pending())
	require.NoError(t, b.Close(context.Background()))
	written := sink.all()
	assert.False(t, written[0].Success)
	assert.Equal(t, "panic: boom", written[0].ErrorMessage)
}

func TestOperation_EndIsIdempotent(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 100, WithLogger(quietLogger(&bytes.Buffer{})))

	op := b.Start("manual", "")
	assert.False(t, op.Closed())
	assert.Empty(t, op.ID())

	require.NoError(t, op.End(nil))
	id := op.ID()
	assert.NotEmpty(t, id)

	// Closed operations ignore everything.
	op.SetTokens(10, 10)
	op.AddMetadata("late", true)
	assert.Error(t, op.End(errors.New("again")))
	assert.Equal(t, id, op.ID())
	assert.Equal(t, 1, b.Pending())
}

func TestOperation_NoModelNoCost(t *testing.T) {
	sink := &memorySink{}
	b := NewBatcher(sink, 100, WithLogger(quietLogger(&bytes.Buffer{})))

	op := b.Start("no_model", "")
	op.SetTokens(1000, 1000)
	op.End(nil)

	op = b.Start("no_tokens", "mistral-large")
	op.End(nil)

	require.NoError(t, b.Close(context.Background()))
	for _, r := range sink.all() {
		assert.Zero(t, r.CostUSD, r.OperationType)
	}
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestFallback(t *testing.T) {
	primary := &memorySink{fail: errors.New("primary down")}
	secondary := &memorySink{}
	f := Fallback{Primary: primary, Secondary: secondary}

	require.NoError(t, f.WriteBatch(context.Background(), []Record{{ID: "1"}}))
	assert.Len(t, secondary.all(), 1)

	secondary.setFail(errors.New("secondary down"))
	err := f.WriteBatch(context.Background(), []Record{{ID: "2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "secondary down")
}
