// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

// Traces handles the trace lifecycle endpoints.
type Traces struct {
	log     *zap.Logger
	service *tracer.Service
}

// NewTraces creates a Traces controller.
func NewTraces(log *zap.Logger, service *tracer.Service) *Traces {
	return &Traces{log: log, service: service}
}

// Create opens a new trace.
func (controller *Traces) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var req tracer.CreateTraceRequest
	if err = decodeJSON(r, &req); err != nil {
		serveError(controller.log, w, err)
		return
	}

	trace, err := controller.service.CreateTrace(ctx, projectID(ctx), req)
	if err != nil {
		serveError(controller.log, w, err)
		return
	}

	serveJSON(controller.log, w, http.StatusOK, map[string]string{
		"trace_id": trace.ID,
		"status":   "created",
	})
}

// ListResponse is one page of traces.
type ListResponse struct {
	Traces     []tracer.Trace `json:"traces"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
	Count      int            `json:"count"`
}

// List returns a page of the project's traces, newest first.
func (controller *Traces) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	query := r.URL.Query()
	opts := tracer.ListOptions{
		ProjectID: projectID(ctx),
		Cursor:    query.Get("cursor"),
		UserID:    query.Get("user_id"),
		SessionID: query.Get("session_id"),
	}
	if tags := query.Get("tags"); tags != "" {
		opts.Tags = strings.Split(tags, ",")
	}
	if limit := query.Get("limit"); limit != "" {
		opts.Limit, err = strconv.Atoi(limit)
		if err != nil || opts.Limit < 1 || opts.Limit > 1000 {
			serveError(controller.log, w, tracer.ErrValidation.New("limit must be between 1 and 1000, got %q", limit))
			return
		}
	}

	page, err := controller.service.ListTraces(ctx, opts)
	if err != nil {
		serveError(controller.log, w, err)
		return
	}

	serveJSON(controller.log, w, http.StatusOK, ListResponse{
		Traces:     page.Traces,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore(),
		Count:      len(page.Traces),
	})
}

// Get returns a single trace with all of its spans.
func (controller *Traces) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	detail, err := controller.service.GetTrace(ctx, projectID(ctx), mux.Vars(r)["trace_id"])
	if err != nil {
		serveError(controller.log, w, err)
		return
	}
	serveJSON(controller.log, w, http.StatusOK, detail)
}

// Complete closes a trace.
func (controller *Traces) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var req tracer.CompleteTraceRequest
	if err = decodeJSON(r, &req); err != nil {
		serveError(controller.log, w, err)
		return
	}

	traceID := mux.Vars(r)["trace_id"]
	if err = controller.service.CompleteTrace(ctx, projectID(ctx), traceID, req); err != nil {
		serveError(controller.log, w, err)
		return
	}

	serveJSON(controller.log, w, http.StatusOK, map[string]string{
		"trace_id": traceID,
		"status":   "completed",
	})
}
