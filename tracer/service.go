// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storj.io/common/uuid"
)

// statsTraceLimit caps the per-call work of the statistics rollup: only the
// most recent traces are scanned, so the endpoint stays responsive no
// matter how large a project grows. The result is an estimate, not an
// exact aggregate.
const statsTraceLimit = 50

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Service implements the trace lifecycle: creation, completion, listing and
// statistics, with a project ownership check in front of every record
// access.
//
// architecture: Service
type Service struct {
	log *zap.Logger
	db  DB

	nowFn func() time.Time
}

// NewService creates a new trace service.
func NewService(log *zap.Logger, db DB) *Service {
	return &Service{
		log:   log,
		db:    db,
		nowFn: time.Now,
	}
}

// TestSetNow overrides the clock. Only for tests.
func (service *Service) TestSetNow(now func() time.Time) { service.nowFn = now }

// StorageType identifies the backing store, e.g. "dynamodb".
func (service *Service) StorageType() string { return service.db.Type() }

func (service *Service) now() Timestamp {
	return NewTimestamp(service.nowFn().UTC())
}

// CreateTrace opens a new trace for the calling project. The project
// declared in the request must match the authenticated one.
func (service *Service) CreateTrace(ctx context.Context, projectID string, req CreateTraceRequest) (_ *Trace, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if req.ProjectID != projectID {
		return nil, ErrProjectMismatch.New("api key is for %q but request is for %q", projectID, req.ProjectID)
	}

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	trace := &Trace{
		ID:        id.String(),
		Name:      req.Name,
		ProjectID: projectID,
		StartTime: service.now(),
		Metadata:  req.Metadata,
		Tags:      req.Tags,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}
	if err := service.db.SaveTrace(ctx, trace); err != nil {
		return nil, Error.Wrap(err)
	}

	service.log.Info("created trace",
		zap.String("trace_id", trace.ID),
		zap.String("name", trace.Name),
		zap.String("project_id", trace.ProjectID))
	return trace, nil
}

// CreateSpan opens a new span inside an owned trace.
func (service *Service) CreateSpan(ctx context.Context, projectID, traceID string, req CreateSpanRequest) (_ *Span, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if _, err := service.db.GetTrace(ctx, traceID, projectID); err != nil {
		return nil, err
	}

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	span := &Span{
		ID:           id.String(),
		TraceID:      traceID,
		ParentSpanID: req.ParentSpanID,
		Name:         req.Name,
		SpanType:     req.SpanType,
		StartTime:    service.now(),
		InputData:    req.InputData,
		OutputData:   req.OutputData,
		Metadata:     req.Metadata,
		Model:        req.Model,
		TokensInput:  req.TokensInput,
		TokensOutput: req.TokensOutput,
		CostUSD:      req.CostUSD,
		Error:        req.Error,
	}
	if err := service.db.SaveSpan(ctx, span); err != nil {
		return nil, Error.Wrap(err)
	}

	service.log.Info("created span",
		zap.String("span_id", span.ID),
		zap.String("trace_id", traceID),
		zap.String("name", span.Name))
	return span, nil
}

// CompleteSpan closes a span, stamping the end time and derived duration
// and updating the supplied final fields. The span is authorized through
// its owning trace; a span of a foreign trace does not exist for the
// caller.
func (service *Service) CompleteSpan(ctx context.Context, projectID, spanID string, req CompleteSpanRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := req.Normalize(); err != nil {
		return err
	}

	span, err := service.db.GetSpan(ctx, spanID)
	if err != nil {
		return err
	}
	if _, err := service.db.GetTrace(ctx, span.TraceID, projectID); err != nil {
		return err
	}

	err = service.db.CompleteSpan(ctx, spanID, SpanCompletion{
		EndTime:      service.now(),
		OutputData:   req.OutputData,
		Error:        req.Error,
		TokensInput:  req.TokensInput,
		TokensOutput: req.TokensOutput,
		CostUSD:      req.CostUSD,
	})
	if err != nil {
		return Error.Wrap(err)
	}

	service.log.Info("completed span", zap.String("span_id", spanID))
	return nil
}

// CompleteTrace closes an owned trace.
func (service *Service) CompleteTrace(ctx context.Context, projectID, traceID string, req CompleteTraceRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := req.Normalize(); err != nil {
		return err
	}
	if _, err := service.db.GetTrace(ctx, traceID, projectID); err != nil {
		return err
	}

	err = service.db.CompleteTrace(ctx, traceID, TraceCompletion{
		EndTime:  service.now(),
		Output:   req.Output,
		Metadata: req.Metadata,
	})
	if err != nil {
		return Error.Wrap(err)
	}

	service.log.Info("completed trace", zap.String("trace_id", traceID))
	return nil
}

// ListTraces returns a page of the project's traces, newest first.
func (service *Service) ListTraces(ctx context.Context, opts ListOptions) (_ *TracePage, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	return service.db.ListTraces(ctx, opts)
}

// TraceDetail is a trace together with all of its spans.
type TraceDetail struct {
	Trace     *Trace `json:"trace"`
	Spans     []Span `json:"spans"`
	SpanCount int    `json:"span_count"`
}

// GetTrace returns an owned trace with its spans.
func (service *Service) GetTrace(ctx context.Context, projectID, traceID string) (_ *TraceDetail, err error) {
	defer mon.Task()(&ctx)(&err)

	trace, err := service.db.GetTrace(ctx, traceID, projectID)
	if err != nil {
		return nil, err
	}
	spans, err := service.db.ListSpans(ctx, traceID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if spans == nil {
		spans = []Span{}
	}
	return &TraceDetail{
		Trace:     trace,
		Spans:     spans,
		SpanCount: len(spans),
	}, nil
}

// ProjectStats are per-project rollups over recent activity.
type ProjectStats struct {
	TotalTraces int64 `json:"total_traces"`
	TotalSpans  int64 `json:"total_spans"`
	TotalTokens int64 `json:"total_tokens"`
	TotalCost   Cost  `json:"total_cost"`
}

// Stats estimates project totals: the trace count is exact, span, token and
// cost totals are summed over the most recent traces only.
func (service *Service) Stats(ctx context.Context, projectID string) (_ *ProjectStats, err error) {
	defer mon.Task()(&ctx)(&err)

	stats := &ProjectStats{}
	stats.TotalTraces, err = service.db.CountTraces(ctx, projectID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	page, err := service.db.ListTraces(ctx, ListOptions{
		ProjectID: projectID,
		Limit:     statsTraceLimit,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	totalCost := decimal.Zero
	for _, trace := range page.Traces {
		spans, err := service.db.ListSpans(ctx, trace.ID)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		stats.TotalSpans += int64(len(spans))
		for _, span := range spans {
			if span.TokensInput != nil {
				stats.TotalTokens += *span.TokensInput
			}
			if span.TokensOutput != nil {
				stats.TotalTokens += *span.TokensOutput
			}
			if span.CostUSD != nil {
				totalCost = totalCost.Add(span.CostUSD.Decimal)
			}
		}
	}
	stats.TotalCost = CostFromDecimal(totalCost.Round(4))
	return stats, nil
}
