// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"time"

	"github.com/jeranaias/cortexpipe/internal/pricing"
)

// Operation is a scoped unit of work. It is OPEN until End is called and
// CLOSED afterwards; a closed operation ignores every further call. An
// Operation belongs to one goroutine.
type Operation struct {
	batcher *Batcher
	kind    string
	model   string
	start   time.Time

	inputTokens  int
	outputTokens int
	query        string
	response     string
	meta         map[string]any

	closed bool
	id     string
}

// SetTokens attaches token counts used for cost derivation.
func (o *Operation) SetTokens(input, output int) {
	if o.closed {
		return
	}
	o.inputTokens = input
	o.outputTokens = output
}

// SetQuery attaches the query text.
func (o *Operation) SetQuery(q string) {
	if o.closed {
		return
	}
	o.query = q
}

// SetResponse attaches the response text.
func (o *Operation) SetResponse(r string) {
	if o.closed {
		return
	}
	o.response = r
}

// AddMetadata attaches one metadata value.
func (o *Operation) AddMetadata(key string, value any) {
	if o.closed {
		return
	}
	o.meta[key] = value
}

// AddMetadataMap attaches several metadata values.
func (o *Operation) AddMetadataMap(m map[string]any) {
	if o.closed {
		return
	}
	for k, v := range m {
		o.meta[k] = v
	}
}

// Closed reports whether End has run.
func (o *Operation) Closed() bool { return o.closed }

// ID returns the logged record id, empty while OPEN.
func (o *Operation) ID() string { return o.id }

// Elapsed returns the time since Start.
func (o *Operation) Elapsed() time.Duration { return time.Since(o.start) }

// End closes the operation and logs its record: success when err is nil,
// cost from the attached tokens and model. It returns err unchanged so it
// can wrap a return statement. Only the first call logs.
func (o *Operation) End(err error) error {
	if o.closed {
		return err
	}
	o.closed = true

	entry := Entry{
		OperationType: o.kind,
		ModelName:     o.model,
		InputTokens:   o.inputTokens,
		OutputTokens:  o.outputTokens,
		LatencyMs:     float64(time.Since(o.start).Microseconds()) / 1000,
		CostUSD:       pricing.OperationCost(o.inputTokens, o.outputTokens, o.model),
		Success:       err == nil,
		QueryText:     o.query,
		ResponseText:  o.response,
		Metadata:      o.meta,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	o.id = o.batcher.Log(entry)
	return err
}

func (o *Operation) endPanic(r any) {
	o.End(fmt.Errorf("panic: %v", r))
}
