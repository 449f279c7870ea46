// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package teststore implements an in-memory tracer.DB for testing. It
// mirrors the DynamoDB store's observable behavior: newest-first listing,
// opaque cursors, post-query filters and graceful degradation on forced
// failures.
package teststore

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"

	"storj.io/llmtrace/tracer"
)

// DB implements tracer.DB in memory.
type DB struct {
	mu     sync.Mutex
	traces map[string]*tracer.Trace
	spans  map[string]*tracer.Span

	forcedError error
}

// New creates an empty store.
func New() *DB {
	return &DB{
		traces: make(map[string]*tracer.Trace),
		spans:  make(map[string]*tracer.Span),
	}
}

// SetError forces all following operations to fail with err. Reads degrade
// the way the real store does; writes surface the error. A nil err restores
// normal operation.
func (db *DB) SetError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.forcedError = err
}

// SaveTrace implements tracer.DB.
func (db *DB) SaveTrace(ctx context.Context, trace *tracer.Trace) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return db.forcedError
	}
	db.traces[trace.ID] = copyTrace(trace)
	return nil
}

// GetTrace implements tracer.DB.
func (db *DB) GetTrace(ctx context.Context, traceID, projectID string) (*tracer.Trace, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}
	trace, ok := db.traces[traceID]
	if !ok {
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}
	if projectID != "" && trace.ProjectID != projectID {
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}
	return copyTrace(trace), nil
}

// ListTraces implements tracer.DB.
func (db *DB) ListTraces(ctx context.Context, opts tracer.ListOptions) (*tracer.TracePage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return &tracer.TracePage{Traces: []tracer.Trace{}}, nil
	}

	var all []*tracer.Trace
	for _, trace := range db.traces {
		if trace.ProjectID == opts.ProjectID {
			all = append(all, trace)
		}
	}
	sort.Slice(all, func(i, k int) bool {
		left, right := all[i], all[k]
		if left.StartTime.String() != right.StartTime.String() {
			return left.StartTime.String() > right.StartTime.String()
		}
		return left.ID > right.ID
	})

	start := 0
	if after := decodeCursor(opts.Cursor); after != "" {
		for i, trace := range all {
			if trace.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := start + opts.Limit
	if opts.Limit <= 0 || end > len(all) {
		end = len(all)
	}

	page := &tracer.TracePage{Traces: []tracer.Trace{}}
	for _, trace := range all[start:end] {
		if !matchesFilters(trace, opts) {
			continue
		}
		page.Traces = append(page.Traces, *copyTrace(trace))
	}
	if end < len(all) && end > start {
		page.NextCursor = encodeCursor(all[end-1].ID)
	}
	return page, nil
}

// CompleteTrace implements tracer.DB.
func (db *DB) CompleteTrace(ctx context.Context, traceID string, done tracer.TraceCompletion) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return db.forcedError
	}
	trace, ok := db.traces[traceID]
	if !ok {
		return tracer.ErrNotFound.New("trace %s", traceID)
	}

	end := done.EndTime
	trace.EndTime = &end
	if ms, ok := tracer.DurationMS(trace.StartTime, done.EndTime); ok {
		trace.DurationMS = &ms
	}
	if done.Output != "" {
		trace.Output = done.Output
	}
	if len(done.Metadata) > 0 {
		trace.Metadata = copyPayload(done.Metadata)
	}
	return nil
}

// CountTraces implements tracer.DB.
func (db *DB) CountTraces(ctx context.Context, projectID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return 0, db.forcedError
	}
	var total int64
	for _, trace := range db.traces {
		if trace.ProjectID == projectID {
			total++
		}
	}
	return total, nil
}

// SaveSpan implements tracer.DB.
func (db *DB) SaveSpan(ctx context.Context, span *tracer.Span) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return db.forcedError
	}
	db.spans[span.ID] = copySpan(span)

	if trace, ok := db.traces[span.TraceID]; ok {
		trace.SpanCount++
		if span.CostUSD != nil {
			trace.TotalCost = tracer.CostFromDecimal(trace.TotalCost.Add(span.CostUSD.Decimal))
		}
	}
	return nil
}

// GetSpan implements tracer.DB.
func (db *DB) GetSpan(ctx context.Context, spanID string) (*tracer.Span, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return nil, tracer.ErrNotFound.New("span %s", spanID)
	}
	span, ok := db.spans[spanID]
	if !ok {
		return nil, tracer.ErrNotFound.New("span %s", spanID)
	}
	return copySpan(span), nil
}

// ListSpans implements tracer.DB.
func (db *DB) ListSpans(ctx context.Context, traceID string) ([]tracer.Span, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return []tracer.Span{}, nil
	}
	var spans []tracer.Span
	for _, span := range db.spans {
		if span.TraceID == traceID {
			spans = append(spans, *copySpan(span))
		}
	}
	sort.Slice(spans, func(i, k int) bool {
		if spans[i].StartTime.String() != spans[k].StartTime.String() {
			return spans[i].StartTime.String() < spans[k].StartTime.String()
		}
		return spans[i].ID < spans[k].ID
	})
	return spans, nil
}

// CompleteSpan implements tracer.DB.
func (db *DB) CompleteSpan(ctx context.Context, spanID string, done tracer.SpanCompletion) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedError != nil {
		return db.forcedError
	}
	span, ok := db.spans[spanID]
	if !ok {
		return tracer.ErrNotFound.New("span %s", spanID)
	}

	end := done.EndTime
	span.EndTime = &end
	if ms, ok := tracer.DurationMS(span.StartTime, done.EndTime); ok {
		span.DurationMS = &ms
	}
	if len(done.OutputData) > 0 {
		span.OutputData = copyPayload(done.OutputData)
	}
	if done.Error != "" {
		span.Error = done.Error
	}
	if done.TokensInput != nil {
		v := *done.TokensInput
		span.TokensInput = &v
	}
	if done.TokensOutput != nil {
		v := *done.TokensOutput
		span.TokensOutput = &v
	}
	if done.CostUSD != nil {
		delta := done.CostUSD.Decimal
		if span.CostUSD != nil {
			delta = delta.Sub(span.CostUSD.Decimal)
		}
		cost := *done.CostUSD
		span.CostUSD = &cost
		if trace, ok := db.traces[span.TraceID]; ok {
			trace.TotalCost = tracer.CostFromDecimal(trace.TotalCost.Add(delta))
		}
	}
	return nil
}

// Type implements tracer.DB.
func (db *DB) Type() string { return "memory" }

// Close implements tracer.DB.
func (db *DB) Close() error { return nil }

func encodeCursor(id string) string {
	return base64.StdEncoding.EncodeToString([]byte(id))
}

func decodeCursor(cursor string) string {
	if cursor == "" {
		return ""
	}
	id, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return ""
	}
	return string(id)
}

func matchesFilters(trace *tracer.Trace, opts tracer.ListOptions) bool {
	if opts.UserID != "" && trace.UserID != opts.UserID {
		return false
	}
	if opts.SessionID != "" && trace.SessionID != opts.SessionID {
		return false
	}
	if len(opts.Tags) > 0 {
		tagged := make(map[string]bool, len(trace.Tags))
		for _, tag := range trace.Tags {
			tagged[tag] = true
		}
		for _, tag := range opts.Tags {
			if tagged[tag] {
				return true
			}
		}
		return false
	}
	return true
}

func copyTrace(trace *tracer.Trace) *tracer.Trace {
	dup := *trace
	dup.Metadata = copyPayload(trace.Metadata)
	dup.Tags = append([]string(nil), trace.Tags...)
	if trace.EndTime != nil {
		end := *trace.EndTime
		dup.EndTime = &end
	}
	if trace.DurationMS != nil {
		ms := *trace.DurationMS
		dup.DurationMS = &ms
	}
	return &dup
}

func copySpan(span *tracer.Span) *tracer.Span {
	dup := *span
	dup.InputData = copyPayload(span.InputData)
	dup.OutputData = copyPayload(span.OutputData)
	dup.Metadata = copyPayload(span.Metadata)
	if span.EndTime != nil {
		end := *span.EndTime
		dup.EndTime = &end
	}
	if span.DurationMS != nil {
		ms := *span.DurationMS
		dup.DurationMS = &ms
	}
	if span.TokensInput != nil {
		v := *span.TokensInput
		dup.TokensInput = &v
	}
	if span.TokensOutput != nil {
		v := *span.TokensOutput
		dup.TokensOutput = &v
	}
	if span.CostUSD != nil {
		cost := *span.CostUSD
		dup.CostUSD = &cost
	}
	return &dup
}

func copyPayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	dup := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		dup[key] = copyValue(value)
	}
	return dup
}

func copyValue(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		return copyPayload(value)
	case []interface{}:
		dup := make([]interface{}, len(value))
		for i, elem := range value {
			dup[i] = copyValue(elem)
		}
		return dup
	default:
		return v
	}
}

var _ tracer.DB = (*DB)(nil)
