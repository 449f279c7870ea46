// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import (
	"storj.io/llmtrace/truncate"
)

// SpanKind classifies what a span measured.
type SpanKind string

// All accepted span kinds.
const (
	SpanKindLLM       SpanKind = "llm"
	SpanKindTool      SpanKind = "tool"
	SpanKindAgent     SpanKind = "agent"
	SpanKindFunction  SpanKind = "function"
	SpanKindRetrieval SpanKind = "retrieval"
	SpanKindEmbedding SpanKind = "embedding"
	SpanKindChain     SpanKind = "chain"
	SpanKindOther     SpanKind = "other"
)

var spanKinds = map[SpanKind]bool{
	SpanKindLLM:       true,
	SpanKindTool:      true,
	SpanKindAgent:     true,
	SpanKindFunction:  true,
	SpanKindRetrieval: true,
	SpanKindEmbedding: true,
	SpanKindChain:     true,
	SpanKindOther:     true,
}

// Valid reports whether the kind is part of the accepted set.
func (kind SpanKind) Valid() bool { return spanKinds[kind] }

// Span is a sub-operation inside a trace: an LLM call, a tool invocation, a
// retrieval step. Spans reference their trace and optionally a parent span
// in the same trace; the relations form a forest that is only assembled at
// display time.
type Span struct {
	ID           string                 `json:"span_id"`
	TraceID      string                 `json:"trace_id"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	Name         string                 `json:"name"`
	SpanType     SpanKind               `json:"span_type"`
	StartTime    Timestamp              `json:"start_time"`
	EndTime      *Timestamp             `json:"end_time,omitempty"`
	DurationMS   *int64                 `json:"duration_ms,omitempty"`
	InputData    map[string]interface{} `json:"input_data,omitempty"`
	OutputData   map[string]interface{} `json:"output_data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Model        string                 `json:"model,omitempty"`
	TokensInput  *int64                 `json:"tokens_input,omitempty"`
	TokensOutput *int64                 `json:"tokens_output,omitempty"`
	CostUSD      *Cost                  `json:"cost_usd,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Completed reports whether the span has been closed.
func (s *Span) Completed() bool { return s.EndTime != nil && !s.EndTime.IsZero() }

// CreateSpanRequest is the body of a span creation call.
type CreateSpanRequest struct {
	Name         string                 `json:"name"`
	SpanType     SpanKind               `json:"span_type"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	InputData    map[string]interface{} `json:"input_data,omitempty"`
	OutputData   map[string]interface{} `json:"output_data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Model        string                 `json:"model,omitempty"`
	TokensInput  *int64                 `json:"tokens_input,omitempty"`
	TokensOutput *int64                 `json:"tokens_output,omitempty"`
	CostUSD      *Cost                  `json:"cost_usd,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Normalize validates the request and shrinks its payloads to their
// ceilings.
func (req *CreateSpanRequest) Normalize() error {
	if err := validateName(req.Name); err != nil {
		return err
	}
	if !req.SpanType.Valid() {
		return ErrValidation.New("unknown span_type %q", req.SpanType)
	}
	if len(req.ParentSpanID) > maxProjectIDLength {
		return ErrValidation.New("parent_span_id exceeds %d characters", maxProjectIDLength)
	}
	if len(req.Model) > maxIdentityLength {
		return ErrValidation.New("model exceeds %d characters", maxIdentityLength)
	}
	if err := validateCounters(req.TokensInput, req.TokensOutput, req.CostUSD); err != nil {
		return err
	}

	req.InputData = truncate.Map(req.InputData, truncate.MaxPayloadSize)
	req.OutputData = truncate.Map(req.OutputData, truncate.MaxPayloadSize)
	req.Metadata = NormalizeMetadata(req.Metadata)
	req.Error = truncate.String(req.Error, truncate.MaxStringLength)
	return nil
}

// CompleteSpanRequest is the body of a span completion call. Nil fields are
// left untouched on the stored record.
type CompleteSpanRequest struct {
	OutputData   map[string]interface{} `json:"output_data,omitempty"`
	Error        string                 `json:"error,omitempty"`
	TokensInput  *int64                 `json:"tokens_input,omitempty"`
	TokensOutput *int64                 `json:"tokens_output,omitempty"`
	CostUSD      *Cost                  `json:"cost_usd,omitempty"`
}

// Normalize validates counters and shrinks the supplied fields.
func (req *CompleteSpanRequest) Normalize() error {
	if err := validateCounters(req.TokensInput, req.TokensOutput, req.CostUSD); err != nil {
		return err
	}
	req.OutputData = truncate.Map(req.OutputData, truncate.MaxPayloadSize)
	req.Error = truncate.String(req.Error, truncate.MaxStringLength)
	return nil
}

func validateCounters(tokensInput, tokensOutput *int64, cost *Cost) error {
	if tokensInput != nil && *tokensInput < 0 {
		return ErrValidation.New("tokens_input must not be negative")
	}
	if tokensOutput != nil && *tokensOutput < 0 {
		return ErrValidation.New("tokens_output must not be negative")
	}
	if cost != nil && cost.IsNegative() {
		return ErrValidation.New("cost_usd must not be negative")
	}
	return nil
}
