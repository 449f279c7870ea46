// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

// Spans handles the span lifecycle endpoints.
type Spans struct {
	log     *zap.Logger
	service *tracer.Service
}

// NewSpans creates a Spans controller.
func NewSpans(log *zap.Logger, service *tracer.Service) *Spans {
	return &Spans{log: log, service: service}
}

// Create opens a new span inside a trace.
func (controller *Spans) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var req tracer.CreateSpanRequest
	if err = decodeJSON(r, &req); err != nil {
		serveError(controller.log, w, err)
		return
	}

	span, err := controller.service.CreateSpan(ctx, projectID(ctx), mux.Vars(r)["trace_id"], req)
	if err != nil {
		serveError(controller.log, w, err)
		return
	}

	serveJSON(controller.log, w, http.StatusOK, map[string]string{
		"span_id": span.ID,
		"status":  "created",
	})
}

// Complete closes a span.
func (controller *Spans) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var req tracer.CompleteSpanRequest
	if err = decodeJSON(r, &req); err != nil {
		serveError(controller.log, w, err)
		return
	}

	spanID := mux.Vars(r)["span_id"]
	if err = controller.service.CompleteSpan(ctx, projectID(ctx), spanID, req); err != nil {
		serveError(controller.log, w, err)
		return
	}

	serveJSON(controller.log, w, http.StatusOK, map[string]string{
		"span_id": spanID,
		"status":  "completed",
	})
}
