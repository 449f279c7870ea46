// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"storj.io/llmtrace/tracedb/teststore"
	"storj.io/llmtrace/tracer"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTrace(id, projectID string, offset time.Duration) *tracer.Trace {
	return &tracer.Trace{
		ID:        id,
		Name:      "run-" + id,
		ProjectID: projectID,
		StartTime: tracer.NewTimestamp(base.Add(offset)),
	}
}

func TestGetTraceOwnership(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	require.NoError(t, db.SaveTrace(ctx, newTrace("t1", "alpha", 0)))

	trace, err := db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
	require.Equal(t, "t1", trace.ID)

	// a foreign project cannot tell the trace exists
	_, err = db.GetTrace(ctx, "t1", "beta")
	require.True(t, tracer.ErrNotFound.Has(err))

	_, err = db.GetTrace(ctx, "missing", "alpha")
	require.True(t, tracer.ErrNotFound.Has(err))
}

func TestListTracesPagination(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		require.NoError(t, db.SaveTrace(ctx, newTrace(id, "alpha", time.Duration(i)*time.Second)))
	}

	page1, err := db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Traces, 2)
	require.Equal(t, "t4", page1.Traces[0].ID)
	require.Equal(t, "t3", page1.Traces[1].ID)
	require.True(t, page1.HasMore())

	page2, err := db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 2, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Traces, 2)
	require.Equal(t, "t2", page2.Traces[0].ID)
	require.True(t, page2.HasMore())

	page3, err := db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 2, Cursor: page2.NextCursor})
	require.NoError(t, err)
	require.Len(t, page3.Traces, 1)
	require.Equal(t, "t0", page3.Traces[0].ID)
	require.False(t, page3.HasMore())
}

func TestListTracesBadCursor(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	require.NoError(t, db.SaveTrace(ctx, newTrace("t1", "alpha", 0)))

	page, err := db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 10, Cursor: "%%not-base64%%"})
	require.NoError(t, err)
	require.Len(t, page.Traces, 1)
}

func TestListTracesFilters(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	a := newTrace("t1", "alpha", 0)
	a.UserID = "u1"
	a.Tags = []string{"prod"}
	b := newTrace("t2", "alpha", time.Second)
	b.UserID = "u2"
	b.SessionID = "s1"
	require.NoError(t, db.SaveTrace(ctx, a))
	require.NoError(t, db.SaveTrace(ctx, b))

	page, err := db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 10, UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, page.Traces, 1)
	require.Equal(t, "t1", page.Traces[0].ID)

	page, err = db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 10, SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, page.Traces, 1)
	require.Equal(t, "t2", page.Traces[0].ID)

	page, err = db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 10, Tags: []string{"prod", "unused"}})
	require.NoError(t, err)
	require.Len(t, page.Traces, 1)
	require.Equal(t, "t1", page.Traces[0].ID)
}

func TestCompleteTrace(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	require.NoError(t, db.SaveTrace(ctx, newTrace("t1", "alpha", 0)))

	end := tracer.NewTimestamp(base.Add(2500 * time.Millisecond))
	require.NoError(t, db.CompleteTrace(ctx, "t1", tracer.TraceCompletion{
		EndTime: end,
		Output:  "done",
	}))

	trace, err := db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
	require.True(t, trace.Completed())
	require.NotNil(t, trace.DurationMS)
	require.Equal(t, int64(2500), *trace.DurationMS)
	require.Equal(t, "done", trace.Output)
}

func TestSpanRollups(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	require.NoError(t, db.SaveTrace(ctx, newTrace("t1", "alpha", 0)))

	cost1, err := tracer.NewCost("0.001")
	require.NoError(t, err)
	require.NoError(t, db.SaveSpan(ctx, &tracer.Span{
		ID: "s1", TraceID: "t1", Name: "llm", SpanType: tracer.SpanKindLLM,
		StartTime: tracer.NewTimestamp(base), CostUSD: &cost1,
	}))
	require.NoError(t, db.SaveSpan(ctx, &tracer.Span{
		ID: "s2", TraceID: "t1", Name: "tool", SpanType: tracer.SpanKindTool,
		StartTime: tracer.NewTimestamp(base.Add(time.Second)),
	}))

	trace, err := db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
	require.Equal(t, int64(2), trace.SpanCount)
	require.Equal(t, "0.001", trace.TotalCost.String())

	// a completion cost replaces the creation cost, not adds to it
	cost2, err := tracer.NewCost("0.005")
	require.NoError(t, err)
	require.NoError(t, db.CompleteSpan(ctx, "s1", tracer.SpanCompletion{
		EndTime: tracer.NewTimestamp(base.Add(time.Second)),
		CostUSD: &cost2,
	}))

	trace, err = db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
	require.Equal(t, "0.005", trace.TotalCost.String())
}

func TestListSpansOrdered(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	require.NoError(t, db.SaveTrace(ctx, newTrace("t1", "alpha", 0)))
	for i := 3; i >= 1; i-- {
		require.NoError(t, db.SaveSpan(ctx, &tracer.Span{
			ID: fmt.Sprintf("s%d", i), TraceID: "t1", Name: "step",
			SpanType:  tracer.SpanKindOther,
			StartTime: tracer.NewTimestamp(base.Add(time.Duration(i) * time.Second)),
		}))
	}

	spans, err := db.ListSpans(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, spans, 3)
	require.Equal(t, "s1", spans[0].ID)
	require.Equal(t, "s3", spans[2].ID)
}

func TestForcedErrorDegrades(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	require.NoError(t, db.SaveTrace(ctx, newTrace("t1", "alpha", 0)))
	db.SetError(errors.New("store down"))

	// reads degrade
	_, err := db.GetTrace(ctx, "t1", "alpha")
	require.True(t, tracer.ErrNotFound.Has(err))
	page, err := db.ListTraces(ctx, tracer.ListOptions{ProjectID: "alpha", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, page.Traces)

	// writes surface the failure
	require.Error(t, db.SaveTrace(ctx, newTrace("t2", "alpha", 0)))

	db.SetError(nil)
	_, err = db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
}

func TestStoredCopiesIsolated(t *testing.T) {
	ctx := testcontext.New(t)
	db := teststore.New()

	trace := newTrace("t1", "alpha", 0)
	trace.Metadata = map[string]interface{}{"env": "prod"}
	require.NoError(t, db.SaveTrace(ctx, trace))

	trace.Metadata["env"] = "mutated"

	stored, err := db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
	require.Equal(t, "prod", stored.Metadata["env"])

	stored.Metadata["env"] = "mutated again"
	stored2, err := db.GetTrace(ctx, "t1", "alpha")
	require.NoError(t, err)
	require.Equal(t, "prod", stored2.Metadata["env"])
}
