// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracedb

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

// SaveSpan implements tracer.DB. After the span is stored the owning
// trace's span_count and total_cost rollups are bumped; the rollup update is
// best effort and never fails the span write.
func (db *DB) SaveSpan(ctx context.Context, span *tracer.Span) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !span.StartTime.Valid() {
		return Error.New("start_time must be a timezone-aware instant")
	}

	item, err := marshalSpan(span, db.ttl())
	if err != nil {
		return err
	}
	_, err = db.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(db.config.SpansTable),
		Item:      item,
	})
	if err != nil {
		return Error.Wrap(err)
	}

	var cost decimal.Decimal
	if span.CostUSD != nil {
		cost = span.CostUSD.Decimal
	}
	db.bumpTraceRollups(ctx, span.TraceID, 1, cost)
	return nil
}

// GetSpan implements tracer.DB.
func (db *DB) GetSpan(ctx context.Context, spanID string) (_ *tracer.Span, err error) {
	defer mon.Task()(&ctx)(&err)

	out, err := db.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(db.config.SpansTable),
		Key: map[string]types.AttributeValue{
			"span_id": &types.AttributeValueMemberS{Value: spanID},
		},
	})
	if err != nil {
		db.log.Warn("span lookup failed", zap.String("span_id", spanID), zap.Error(err))
		return nil, tracer.ErrNotFound.New("span %s", spanID)
	}
	if out.Item == nil {
		return nil, tracer.ErrNotFound.New("span %s", spanID)
	}

	span, err := unmarshalSpan(out.Item)
	if err != nil {
		db.log.Warn("span unmarshal failed", zap.String("span_id", spanID), zap.Error(err))
		return nil, tracer.ErrNotFound.New("span %s", spanID)
	}
	return span, nil
}

// ListSpans implements tracer.DB. All pages of the trace index are fetched;
// traces stay small enough that a full listing is the useful unit.
func (db *DB) ListSpans(ctx context.Context, traceID string) (_ []tracer.Span, err error) {
	defer mon.Task()(&ctx)(&err)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(db.config.SpansTable),
		IndexName:              aws.String(traceIndex),
		KeyConditionExpression: aws.String("trace_id = :trace_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":trace_id": &types.AttributeValueMemberS{Value: traceID},
		},
	}

	var spans []tracer.Span
	for {
		out, err := db.client.Query(ctx, input)
		if err != nil {
			db.log.Warn("span listing failed", zap.String("trace_id", traceID), zap.Error(err))
			return []tracer.Span{}, nil
		}
		for _, item := range out.Items {
			span, err := unmarshalSpan(item)
			if err != nil {
				db.log.Warn("span unmarshal failed", zap.Error(err))
				continue
			}
			spans = append(spans, *span)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return spans, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// CompleteSpan implements tracer.DB. The attribute holding the failure
// message is named "error", which is a DynamoDB reserved word and must go
// through an expression attribute name.
func (db *DB) CompleteSpan(ctx context.Context, spanID string, done tracer.SpanCompletion) (err error) {
	defer mon.Task()(&ctx)(&err)

	span, err := db.GetSpan(ctx, spanID)
	if err != nil {
		return err
	}

	names := map[string]string{"#end_time": "end_time"}
	values := map[string]types.AttributeValue{
		":end_time": &types.AttributeValueMemberS{Value: done.EndTime.String()},
	}
	expr := "SET #end_time = :end_time"

	if ms, ok := tracer.DurationMS(span.StartTime, done.EndTime); ok {
		names["#duration_ms"] = "duration_ms"
		values[":duration_ms"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ms, 10)}
		expr += ", #duration_ms = :duration_ms"
	} else {
		db.log.Warn("span start time unusable, storing completion without duration",
			zap.String("span_id", spanID),
			zap.String("start_time", span.StartTime.String()))
	}
	if len(done.OutputData) > 0 {
		output, err := marshalPayloadAttribute(done.OutputData)
		if err != nil {
			return err
		}
		names["#output_data"] = "output_data"
		values[":output_data"] = output
		expr += ", #output_data = :output_data"
	}
	if done.Error != "" {
		names["#error"] = "error"
		values[":error"] = &types.AttributeValueMemberS{Value: done.Error}
		expr += ", #error = :error"
	}
	if done.TokensInput != nil {
		names["#tokens_input"] = "tokens_input"
		values[":tokens_input"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*done.TokensInput, 10)}
		expr += ", #tokens_input = :tokens_input"
	}
	if done.TokensOutput != nil {
		names["#tokens_output"] = "tokens_output"
		values[":tokens_output"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*done.TokensOutput, 10)}
		expr += ", #tokens_output = :tokens_output"
	}
	if done.CostUSD != nil {
		names["#cost_usd"] = "cost_usd"
		values[":cost_usd"] = numberValue(done.CostUSD.Decimal)
		expr += ", #cost_usd = :cost_usd"
	}

	_, err = db.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(db.config.SpansTable),
		Key: map[string]types.AttributeValue{
			"span_id": &types.AttributeValueMemberS{Value: spanID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return Error.Wrap(err)
	}

	// a cost set at completion replaces the one counted at creation
	if done.CostUSD != nil {
		delta := done.CostUSD.Decimal
		if span.CostUSD != nil {
			delta = delta.Sub(span.CostUSD.Decimal)
		}
		db.bumpTraceRollups(ctx, span.TraceID, 0, delta)
	}
	return nil
}

// bumpTraceRollups adjusts the denormalized counters on the owning trace.
// Failures are logged and swallowed: the rollups are a convenience and must
// never break span ingestion.
func (db *DB) bumpTraceRollups(ctx context.Context, traceID string, spanDelta int64, costDelta decimal.Decimal) {
	expr := ""
	values := map[string]types.AttributeValue{}
	if spanDelta != 0 {
		expr = "ADD span_count :span_delta"
		values[":span_delta"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(spanDelta, 10)}
	}
	if !costDelta.IsZero() {
		if expr == "" {
			expr = "ADD total_cost :cost_delta"
		} else {
			expr += ", total_cost :cost_delta"
		}
		values[":cost_delta"] = numberValue(costDelta)
	}
	if expr == "" {
		return
	}

	_, err := db.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(db.config.TracesTable),
		Key: map[string]types.AttributeValue{
			"trace_id": &types.AttributeValueMemberS{Value: traceID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(trace_id)"),
	})
	if err != nil {
		db.log.Warn("trace rollup update failed", zap.String("trace_id", traceID), zap.Error(err))
	}
}
