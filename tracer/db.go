// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import (
	"context"
)

// DB is the storage contract of the trace backend.
//
// Implementations degrade gracefully on store failures: list operations
// return empty results, point reads report ErrNotFound, and only writes
// surface the underlying error. Records are written with a retention TTL
// which is an internal attribute and never appears in returned entities.
type DB interface {
	// SaveTrace stores a new trace record.
	SaveTrace(ctx context.Context, trace *Trace) error
	// GetTrace returns a trace by id. When projectID is non-empty a trace
	// owned by a different project is reported as ErrNotFound.
	GetTrace(ctx context.Context, traceID, projectID string) (*Trace, error)
	// ListTraces pages through a project's traces, newest first.
	ListTraces(ctx context.Context, opts ListOptions) (*TracePage, error)
	// CompleteTrace stamps the end time and derived duration and updates
	// the optional fields supplied.
	CompleteTrace(ctx context.Context, traceID string, done TraceCompletion) error
	// CountTraces returns the number of traces in a project.
	CountTraces(ctx context.Context, projectID string) (int64, error)

	// SaveSpan stores a new span record and maintains the owning trace's
	// denormalized rollups.
	SaveSpan(ctx context.Context, span *Span) error
	// GetSpan returns a span by id.
	GetSpan(ctx context.Context, spanID string) (*Span, error)
	// ListSpans returns all spans of a trace.
	ListSpans(ctx context.Context, traceID string) ([]Span, error)
	// CompleteSpan stamps the end time and derived duration and updates
	// the optional fields supplied.
	CompleteSpan(ctx context.Context, spanID string, done SpanCompletion) error

	// Type identifies the backend, e.g. "dynamodb".
	Type() string
	// Close releases the underlying client.
	Close() error
}

// ListOptions selects a page of a project's traces. UserID, SessionID and
// Tags are post-query filters applied to the fetched page, not to the whole
// result set.
type ListOptions struct {
	ProjectID string
	Limit     int
	Cursor    string
	UserID    string
	SessionID string
	Tags      []string
}

// TracePage is one page of a trace listing. NextCursor is an opaque token
// resuming after the last fetched record; it is empty on the final page.
type TracePage struct {
	Traces     []Trace
	NextCursor string
}

// HasMore reports whether a further page may exist.
func (page *TracePage) HasMore() bool { return page.NextCursor != "" }

// TraceCompletion carries the fields stamped onto a trace when it is
// closed. Zero-valued optional fields are not written.
type TraceCompletion struct {
	EndTime  Timestamp
	Output   string
	Metadata map[string]interface{}
}

// SpanCompletion carries the fields stamped onto a span when it is closed.
// Nil optional fields are not written.
type SpanCompletion struct {
	EndTime      Timestamp
	OutputData   map[string]interface{}
	Error        string
	TokensInput  *int64
	TokensOutput *int64
	CostUSD      *Cost
}
