// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package client

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

// Trace is a handle on an open trace. An inert handle, one whose creation
// failed, keeps accepting calls and sends nothing.
type Trace struct {
	client *Client
	ID     string

	mu     sync.Mutex
	output string
	once   sync.Once
}

// Inert reports whether the handle is disconnected from the backend.
func (trace *Trace) Inert() bool { return trace.ID == "" }

// SetOutput buffers the final output, sent when the trace finishes.
func (trace *Trace) SetOutput(output string) {
	trace.mu.Lock()
	defer trace.mu.Unlock()
	trace.output = output
}

// SpanOptions are the optional fields of a new span.
type SpanOptions struct {
	InputData map[string]interface{}
	Metadata  map[string]interface{}
	Model     string
}

// Span starts a new top-level span inside the trace.
func (trace *Trace) Span(ctx context.Context, name string, kind tracer.SpanKind, opts SpanOptions) *Span {
	return trace.client.openSpan(ctx, trace, "", name, kind, opts)
}

// Finish closes the trace. Repeated calls are no-ops.
func (trace *Trace) Finish(ctx context.Context) {
	if trace.Inert() {
		return
	}
	trace.once.Do(func() {
		trace.mu.Lock()
		req := tracer.CompleteTraceRequest{Output: trace.output}
		trace.mu.Unlock()

		err := trace.client.send(ctx, http.MethodPatch, "/api/traces/"+trace.ID+"/complete", req, nil)
		if err != nil {
			trace.client.log.Warn("failed to finish trace", zap.String("trace_id", trace.ID), zap.Error(err))
		}
	})
}

// Span is a handle on an open span. Output, error and usage set on the
// handle are buffered and sent with Finish.
type Span struct {
	client  *Client
	trace   *Trace
	ID      string
	TraceID string

	mu      sync.Mutex
	pending tracer.CompleteSpanRequest
	once    sync.Once
}

// Inert reports whether the handle is disconnected from the backend.
func (span *Span) Inert() bool { return span.ID == "" }

func (client *Client) openSpan(ctx context.Context, trace *Trace, parentID, name string, kind tracer.SpanKind, opts SpanOptions) *Span {
	span := &Span{client: client, trace: trace}
	if trace.Inert() {
		return span
	}

	var created struct {
		SpanID string `json:"span_id"`
	}
	err := client.send(ctx, http.MethodPost, "/api/traces/"+trace.ID+"/spans", tracer.CreateSpanRequest{
		Name:         name,
		SpanType:     kind,
		ParentSpanID: parentID,
		InputData:    opts.InputData,
		Metadata:     opts.Metadata,
		Model:        opts.Model,
	}, &created)
	if err != nil {
		client.log.Warn("failed to open span",
			zap.String("trace_id", trace.ID),
			zap.String("name", name),
			zap.Error(err))
		return span
	}
	span.ID = created.SpanID
	span.TraceID = trace.ID
	return span
}

// Span starts a nested span.
func (span *Span) Span(ctx context.Context, name string, kind tracer.SpanKind, opts SpanOptions) *Span {
	return span.client.openSpan(ctx, span.trace, span.ID, name, kind, opts)
}

// SetOutput buffers the span's output payload.
func (span *Span) SetOutput(output map[string]interface{}) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.pending.OutputData = output
}

// SetError buffers a failure message.
func (span *Span) SetError(message string) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.pending.Error = message
}

// SetUsage buffers token counts.
func (span *Span) SetUsage(tokensInput, tokensOutput int64) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.pending.TokensInput = &tokensInput
	span.pending.TokensOutput = &tokensOutput
}

// SetCost buffers the cost of the operation.
func (span *Span) SetCost(cost tracer.Cost) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.pending.CostUSD = &cost
}

// Finish closes the span, sending everything buffered. Repeated calls are
// no-ops.
func (span *Span) Finish(ctx context.Context) {
	if span.Inert() {
		return
	}
	span.once.Do(func() {
		span.mu.Lock()
		req := span.pending
		span.mu.Unlock()

		err := span.client.send(ctx, http.MethodPatch, "/api/spans/"+span.ID+"/complete", req, nil)
		if err != nil {
			span.client.log.Warn("failed to finish span", zap.String("span_id", span.ID), zap.Error(err))
		}
	})
}
