// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracedb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// EnsureTables creates both tables, their indexes and the TTL setting.
// Existing tables are left alone, so the call is safe on every startup.
// Meant for local development; production tables come from infrastructure
// tooling.
func (db *DB) EnsureTables(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.createTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(db.config.TracesTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("trace_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("project_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("start_time"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("trace_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(projectTimeIndex),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("project_id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("start_time"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	if err != nil {
		return err
	}

	err = db.createTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(db.config.SpansTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("span_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("trace_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("start_time"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("span_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(traceIndex),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("trace_id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("start_time"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	if err != nil {
		return err
	}

	for _, table := range []string{db.config.TracesTable, db.config.SpansTable} {
		if err := db.enableTTL(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) createTable(ctx context.Context, input *dynamodb.CreateTableInput) error {
	_, err := db.client.CreateTable(ctx, input)
	if err != nil {
		var exists *types.ResourceInUseException
		if errors.As(err, &exists) {
			return nil
		}
		return Error.Wrap(err)
	}
	db.log.Info("created table", zap.String("table", *input.TableName))
	return nil
}

func (db *DB) enableTTL(ctx context.Context, table string) error {
	_, err := db.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(ttlAttribute),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		// dynamodb-local accepts the call, aws rejects a repeat enable
		var validation *types.TableNotFoundException
		if errors.As(err, &validation) {
			return Error.Wrap(err)
		}
		db.log.Warn("ttl enable skipped", zap.String("table", table), zap.Error(err))
	}
	return nil
}

// Ping verifies the store is reachable by describing the traces table.
func (db *DB) Ping(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(db.config.TracesTable),
	})
	return Error.Wrap(err)
}
