// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tracedb implements trace storage on DynamoDB. Traces and spans
// live in two tables with global secondary indexes for the project timeline
// and the per-trace span listing.
package tracedb

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

var (
	mon = monkit.Package()

	// Error is the default error class of the package.
	Error = errs.Class("tracedb")
)

const (
	projectTimeIndex = "project-time-index"
	traceIndex       = "trace-index"

	ttlAttribute = "ttl"
)

// Config is the storage configuration.
type Config struct {
	TracesTable string        `help:"dynamodb table holding traces" default:"llm-tracer-traces"`
	SpansTable  string        `help:"dynamodb table holding spans" default:"llm-tracer-spans"`
	Endpoint    string        `help:"dynamodb endpoint override for local development, empty for aws" default:""`
	Region      string        `help:"aws region" default:"eu-central-1"`
	TTL         time.Duration `help:"retention of trace and span records" default:"2160h"`
}

// client is the slice of the DynamoDB API the store uses. Tests implement it
// with fakes.
type client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DB implements tracer.DB on DynamoDB.
type DB struct {
	log    *zap.Logger
	client client
	config Config

	nowFn func() time.Time
}

// Open connects to DynamoDB. A non-empty Endpoint switches to a local
// instance with static throwaway credentials, the way dynamodb-local and
// LocalStack expect.
func Open(ctx context.Context, log *zap.Logger, config Config) (*DB, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(config.Region))
	if config.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}

	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	client := dynamodb.NewFromConfig(awscfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = &config.Endpoint
		}
	})

	return New(log, client, config), nil
}

// New creates a DB on an existing client.
func New(log *zap.Logger, client client, config Config) *DB {
	return &DB{
		log:    log,
		client: client,
		config: config,
		nowFn:  time.Now,
	}
}

// TestSetNow overrides the clock used for TTL stamping. Only for tests.
func (db *DB) TestSetNow(now func() time.Time) { db.nowFn = now }

// Type implements tracer.DB.
func (db *DB) Type() string { return "dynamodb" }

// Close implements tracer.DB. The underlying HTTP client needs no teardown.
func (db *DB) Close() error { return nil }

// ttl returns the expiry epoch for records written now.
func (db *DB) ttl() int64 {
	return db.nowFn().Add(db.config.TTL).Unix()
}

var _ tracer.DB = (*DB)(nil)
