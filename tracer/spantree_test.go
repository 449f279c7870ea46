// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/llmtrace/tracer"
)

func span(id, parent string, offset time.Duration) tracer.Span {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return tracer.Span{
		ID:           id,
		TraceID:      "trace-1",
		ParentSpanID: parent,
		Name:         id,
		SpanType:     tracer.SpanKindOther,
		StartTime:    tracer.NewTimestamp(base.Add(offset)),
	}
}

func ids(nodes []*tracer.SpanNode) []string {
	var out []string
	for _, node := range nodes {
		out = append(out, node.Span.ID)
	}
	return out
}

func TestBuildSpanTree(t *testing.T) {
	tree := tracer.BuildSpanTree([]tracer.Span{
		span("root", "", 0),
		span("child-b", "root", 2*time.Second),
		span("child-a", "root", time.Second),
		span("grandchild", "child-a", 3*time.Second),
	})

	require.Equal(t, []string{"root"}, ids(tree))
	require.Equal(t, []string{"child-a", "child-b"}, ids(tree[0].Children))
	require.Equal(t, []string{"grandchild"}, ids(tree[0].Children[0].Children))
}

func TestBuildSpanTreeOrphans(t *testing.T) {
	tree := tracer.BuildSpanTree([]tracer.Span{
		span("root", "", 0),
		span("orphan", "never-arrived", time.Second),
		span("narcissist", "narcissist", 2*time.Second),
	})

	require.Equal(t, []string{"root", "orphan", "narcissist"}, ids(tree))
}

func TestBuildSpanTreeCycle(t *testing.T) {
	tree := tracer.BuildSpanTree([]tracer.Span{
		span("root", "", 0),
		span("a", "b", time.Second),
		span("b", "a", 2*time.Second),
	})

	// the edge into a is cut, b stays attached underneath it
	require.Equal(t, []string{"root", "a"}, ids(tree))
	require.Equal(t, []string{"b"}, ids(tree[1].Children))
}

func TestBuildSpanTreeCycleKeepsSubtrees(t *testing.T) {
	tree := tracer.BuildSpanTree([]tracer.Span{
		span("a", "b", time.Second),
		span("b", "a", 2*time.Second),
		span("leaf", "b", 3*time.Second),
	})

	// only the cycle-closing edge is severed, leaf keeps its parent
	require.Equal(t, []string{"a"}, ids(tree))
	require.Equal(t, []string{"b"}, ids(tree[0].Children))
	require.Equal(t, []string{"leaf"}, ids(tree[0].Children[0].Children))
}

func TestBuildSpanTreeEmpty(t *testing.T) {
	require.Empty(t, tracer.BuildSpanTree(nil))
}
