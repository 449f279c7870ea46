// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracedb

import (
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"storj.io/llmtrace/tracer"
)

// traceItem is the stored shape of a trace. Cost and TTL attributes are
// handled outside of the struct: cost must be a DynamoDB number built from
// the decimal's exact string form, and TTL is write-only.
type traceItem struct {
	TraceID    string                 `dynamodbav:"trace_id"`
	Name       string                 `dynamodbav:"name"`
	ProjectID  string                 `dynamodbav:"project_id"`
	StartTime  string                 `dynamodbav:"start_time"`
	EndTime    string                 `dynamodbav:"end_time,omitempty"`
	DurationMS *int64                 `dynamodbav:"duration_ms,omitempty"`
	Metadata   map[string]interface{} `dynamodbav:"metadata,omitempty"`
	Tags       []string               `dynamodbav:"tags,omitempty"`
	UserID     string                 `dynamodbav:"user_id,omitempty"`
	SessionID  string                 `dynamodbav:"session_id,omitempty"`
	Output     string                 `dynamodbav:"output,omitempty"`
	SpanCount  int64                  `dynamodbav:"span_count"`
}

type spanItem struct {
	SpanID       string                 `dynamodbav:"span_id"`
	TraceID      string                 `dynamodbav:"trace_id"`
	ParentSpanID string                 `dynamodbav:"parent_span_id,omitempty"`
	Name         string                 `dynamodbav:"name"`
	SpanType     string                 `dynamodbav:"span_type"`
	StartTime    string                 `dynamodbav:"start_time"`
	EndTime      string                 `dynamodbav:"end_time,omitempty"`
	DurationMS   *int64                 `dynamodbav:"duration_ms,omitempty"`
	InputData    map[string]interface{} `dynamodbav:"input_data,omitempty"`
	OutputData   map[string]interface{} `dynamodbav:"output_data,omitempty"`
	Metadata     map[string]interface{} `dynamodbav:"metadata,omitempty"`
	Model        string                 `dynamodbav:"model,omitempty"`
	TokensInput  *int64                 `dynamodbav:"tokens_input,omitempty"`
	TokensOutput *int64                 `dynamodbav:"tokens_output,omitempty"`
	Error        string                 `dynamodbav:"error,omitempty"`
}

func marshalTrace(trace *tracer.Trace, ttl int64) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(traceItem{
		TraceID:    trace.ID,
		Name:       trace.Name,
		ProjectID:  trace.ProjectID,
		StartTime:  trace.StartTime.String(),
		EndTime:    timestampString(trace.EndTime),
		DurationMS: trace.DurationMS,
		Metadata:   sanitizePayload(trace.Metadata),
		Tags:       trace.Tags,
		UserID:     trace.UserID,
		SessionID:  trace.SessionID,
		Output:     trace.Output,
		SpanCount:  trace.SpanCount,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	item["total_cost"] = numberValue(trace.TotalCost.Decimal)
	item[ttlAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)}
	return item, nil
}

func unmarshalTrace(item map[string]types.AttributeValue) (*tracer.Trace, error) {
	var stored traceItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, Error.Wrap(err)
	}

	trace := &tracer.Trace{
		ID:         stored.TraceID,
		Name:       stored.Name,
		ProjectID:  stored.ProjectID,
		StartTime:  tracer.ParseTimestamp(stored.StartTime),
		DurationMS: stored.DurationMS,
		Metadata:   stored.Metadata,
		Tags:       stored.Tags,
		UserID:     stored.UserID,
		SessionID:  stored.SessionID,
		Output:     stored.Output,
		SpanCount:  stored.SpanCount,
	}
	if stored.EndTime != "" {
		end := tracer.ParseTimestamp(stored.EndTime)
		trace.EndTime = &end
	}
	if cost, ok := numberAttribute(item, "total_cost"); ok {
		trace.TotalCost = tracer.CostFromDecimal(cost)
	}
	return trace, nil
}

func marshalSpan(span *tracer.Span, ttl int64) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(spanItem{
		SpanID:       span.ID,
		TraceID:      span.TraceID,
		ParentSpanID: span.ParentSpanID,
		Name:         span.Name,
		SpanType:     string(span.SpanType),
		StartTime:    span.StartTime.String(),
		EndTime:      timestampString(span.EndTime),
		DurationMS:   span.DurationMS,
		InputData:    sanitizePayload(span.InputData),
		OutputData:   sanitizePayload(span.OutputData),
		Metadata:     sanitizePayload(span.Metadata),
		Model:        span.Model,
		TokensInput:  span.TokensInput,
		TokensOutput: span.TokensOutput,
		Error:        span.Error,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if span.CostUSD != nil {
		item["cost_usd"] = numberValue(span.CostUSD.Decimal)
	}
	item[ttlAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)}
	return item, nil
}

func unmarshalSpan(item map[string]types.AttributeValue) (*tracer.Span, error) {
	var stored spanItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, Error.Wrap(err)
	}

	span := &tracer.Span{
		ID:           stored.SpanID,
		TraceID:      stored.TraceID,
		ParentSpanID: stored.ParentSpanID,
		Name:         stored.Name,
		SpanType:     tracer.SpanKind(stored.SpanType),
		StartTime:    tracer.ParseTimestamp(stored.StartTime),
		DurationMS:   stored.DurationMS,
		InputData:    stored.InputData,
		OutputData:   stored.OutputData,
		Metadata:     stored.Metadata,
		Model:        stored.Model,
		TokensInput:  stored.TokensInput,
		TokensOutput: stored.TokensOutput,
		Error:        stored.Error,
	}
	if stored.EndTime != "" {
		end := tracer.ParseTimestamp(stored.EndTime)
		span.EndTime = &end
	}
	if cost, ok := numberAttribute(item, "cost_usd"); ok {
		c := tracer.CostFromDecimal(cost)
		span.CostUSD = &c
	}
	return span, nil
}

// marshalPayloadAttribute converts a payload map into a single map
// attribute, for use inside update expressions.
func marshalPayloadAttribute(payload map[string]interface{}) (types.AttributeValue, error) {
	attr, err := attributevalue.Marshal(sanitizePayload(payload))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return attr, nil
}

func timestampString(ts *tracer.Timestamp) string {
	if ts == nil {
		return ""
	}
	return ts.String()
}

// numberValue builds a DynamoDB number from the decimal's exact string form,
// never going through a binary float.
func numberValue(d decimal.Decimal) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: d.String()}
}

func numberAttribute(item map[string]types.AttributeValue, name string) (decimal.Decimal, bool) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(attr.Value)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// sanitizePayload rewrites numbers inside a payload into their decimal
// string form. Handlers decode request bodies with json.Number, so values
// arrive as json.Number rather than float64; both are covered for payloads
// built in-process.
func sanitizePayload(payload map[string]interface{}) map[string]interface{} {
	if len(payload) == 0 {
		return payload
	}
	clean := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		clean[key] = sanitizeValue(value)
	}
	return clean
}

func sanitizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case map[string]interface{}:
		return sanitizePayload(value)
	case []interface{}:
		clean := make([]interface{}, len(value))
		for i, elem := range value {
			clean[i] = sanitizeValue(elem)
		}
		return clean
	default:
		return v
	}
}
