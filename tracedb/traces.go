// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracedb

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

// SaveTrace implements tracer.DB.
func (db *DB) SaveTrace(ctx context.Context, trace *tracer.Trace) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !trace.StartTime.Valid() {
		return Error.New("start_time must be a timezone-aware instant")
	}

	item, err := marshalTrace(trace, db.ttl())
	if err != nil {
		return err
	}
	_, err = db.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(db.config.TracesTable),
		Item:      item,
	})
	return Error.Wrap(err)
}

// GetTrace implements tracer.DB. Store failures are reported as not found:
// readers cannot distinguish a briefly unreachable store from a missing
// record, and neither should leak backend errors to them.
func (db *DB) GetTrace(ctx context.Context, traceID, projectID string) (_ *tracer.Trace, err error) {
	defer mon.Task()(&ctx)(&err)

	out, err := db.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(db.config.TracesTable),
		Key: map[string]types.AttributeValue{
			"trace_id": &types.AttributeValueMemberS{Value: traceID},
		},
	})
	if err != nil {
		db.log.Warn("trace lookup failed", zap.String("trace_id", traceID), zap.Error(err))
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}
	if out.Item == nil {
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}

	trace, err := unmarshalTrace(out.Item)
	if err != nil {
		db.log.Warn("trace unmarshal failed", zap.String("trace_id", traceID), zap.Error(err))
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}
	if projectID != "" && trace.ProjectID != projectID {
		// foreign traces do not exist for the caller
		return nil, tracer.ErrNotFound.New("trace %s", traceID)
	}
	return trace, nil
}

// ListTraces implements tracer.DB. It queries the project timeline index
// newest first; user, session and tag filters are applied to the fetched
// page after the query, so a filtered page may come back short while more
// pages remain.
func (db *DB) ListTraces(ctx context.Context, opts tracer.ListOptions) (_ *tracer.TracePage, err error) {
	defer mon.Task()(&ctx)(&err)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(db.config.TracesTable),
		IndexName:              aws.String(projectTimeIndex),
		KeyConditionExpression: aws.String("project_id = :project_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":project_id": &types.AttributeValueMemberS{Value: opts.ProjectID},
		},
		ScanIndexForward:  aws.Bool(false),
		Limit:             aws.Int32(int32(opts.Limit)),
		ExclusiveStartKey: decodeCursor(opts.Cursor),
	}

	out, err := db.client.Query(ctx, input)
	if err != nil {
		db.log.Warn("trace listing failed", zap.String("project_id", opts.ProjectID), zap.Error(err))
		return &tracer.TracePage{Traces: []tracer.Trace{}}, nil
	}

	traces := make([]tracer.Trace, 0, len(out.Items))
	for _, item := range out.Items {
		trace, err := unmarshalTrace(item)
		if err != nil {
			db.log.Warn("trace unmarshal failed", zap.Error(err))
			continue
		}
		if !matchesFilters(trace, opts) {
			continue
		}
		traces = append(traces, *trace)
	}

	cursor, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		db.log.Warn("cursor encoding failed", zap.Error(err))
		cursor = ""
	}
	return &tracer.TracePage{Traces: traces, NextCursor: cursor}, nil
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
		// any requested tag matches
		found := false
		for _, tag := range opts.Tags {
			if tagged[tag] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CompleteTrace implements tracer.DB.
func (db *DB) CompleteTrace(ctx context.Context, traceID string, done tracer.TraceCompletion) (err error) {
	defer mon.Task()(&ctx)(&err)

	trace, err := db.GetTrace(ctx, traceID, "")
	if err != nil {
		return err
	}

	names := map[string]string{"#end_time": "end_time"}
	values := map[string]types.AttributeValue{
		":end_time": &types.AttributeValueMemberS{Value: done.EndTime.String()},
	}
	expr := "SET #end_time = :end_time"

	if ms, ok := tracer.DurationMS(trace.StartTime, done.EndTime); ok {
		names["#duration_ms"] = "duration_ms"
		values[":duration_ms"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ms, 10)}
		expr += ", #duration_ms = :duration_ms"
	} else {
		db.log.Warn("trace start time unusable, storing completion without duration",
			zap.String("trace_id", traceID),
			zap.String("start_time", trace.StartTime.String()))
	}
	if done.Output != "" {
		names["#output"] = "output"
		values[":output"] = &types.AttributeValueMemberS{Value: done.Output}
		expr += ", #output = :output"
	}
	if len(done.Metadata) > 0 {
		metadata, err := marshalPayloadAttribute(done.Metadata)
		if err != nil {
			return err
		}
		names["#metadata"] = "metadata"
		values[":metadata"] = metadata
		expr += ", #metadata = :metadata"
	}

	_, err = db.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(db.config.TracesTable),
		Key: map[string]types.AttributeValue{
			"trace_id": &types.AttributeValueMemberS{Value: traceID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return Error.Wrap(err)
}

// CountTraces implements tracer.DB. The count pages through the whole
// timeline index, counting server-side without fetching items.
func (db *DB) CountTraces(ctx context.Context, projectID string) (total int64, err error) {
	defer mon.Task()(&ctx)(&err)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(db.config.TracesTable),
		IndexName:              aws.String(projectTimeIndex),
		KeyConditionExpression: aws.String("project_id = :project_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":project_id": &types.AttributeValueMemberS{Value: projectID},
		},
		Select: types.SelectCount,
	}
	for {
		out, err := db.client.Query(ctx, input)
		if err != nil {
			return 0, Error.Wrap(err)
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
