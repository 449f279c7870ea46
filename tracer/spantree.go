// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import "sort"

// SpanNode is a span with its resolved children, ordered by start time.
type SpanNode struct {
	Span     *Span       `json:"span"`
	Children []*SpanNode `json:"children,omitempty"`
}

// BuildSpanTree assembles the display forest of a trace in a single pass
// over the flat span list. Spans whose parent is missing are promoted to
// roots. The storage layer does not enforce acyclicity, so reference cycles
// are cut here: the edge into the first cycle member is severed and that
// member surfaces as a root with the rest of its subtree intact.
func BuildSpanTree(spans []Span) []*SpanNode {
	nodes := make(map[string]*SpanNode, len(spans))
	for i := range spans {
		nodes[spans[i].ID] = &SpanNode{Span: &spans[i]}
	}

	var roots []*SpanNode
	for i := range spans {
		span := &spans[i]
		if span.ParentSpanID == "" {
			roots = append(roots, nodes[span.ID])
			continue
		}
		parent, ok := nodes[span.ParentSpanID]
		if !ok || span.ParentSpanID == span.ID {
			// orphan, render at the top level
			roots = append(roots, nodes[span.ID])
			continue
		}
		parent.Children = append(parent.Children, nodes[span.ID])
	}

	// A cycle of spans referencing each other never reaches a root. Find
	// the ones unreachable from any root and surface them instead of
	// silently dropping them.
	reachable := make(map[*SpanNode]bool, len(nodes))
	var walk func(node *SpanNode)
	walk = func(node *SpanNode) {
		if reachable[node] {
			return
		}
		reachable[node] = true
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	for i := range spans {
		node := nodes[spans[i].ID]
		if !reachable[node] {
			// sever only the edge closing the cycle, the legitimate
			// children below stay attached
			if parent, ok := nodes[spans[i].ParentSpanID]; ok {
				parent.Children = removeNode(parent.Children, node)
			}
			roots = append(roots, node)
			walk(node)
		}
	}

	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return roots
}

func removeNode(nodes []*SpanNode, target *SpanNode) []*SpanNode {
	for i, node := range nodes {
		if node == target {
			return append(nodes[:i], nodes[i+1:]...)
		}
	}
	return nodes
}

func sortNodes(nodes []*SpanNode) {
	sort.SliceStable(nodes, func(i, k int) bool {
		left, right := nodes[i].Span, nodes[k].Span
		if left.StartTime.Valid() && right.StartTime.Valid() {
			return left.StartTime.Time().Before(right.StartTime.Time())
		}
		return left.ID < right.ID
	})
}
