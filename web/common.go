// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package web exposes the trace lifecycle over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/llmtrace/traceauth"
	"storj.io/llmtrace/tracer"
)

var (
	mon = monkit.Package()

	// Error is the default error class of the package.
	Error = errs.Class("web")
)

type contextKey int

const projectIDKey contextKey = iota

// withProject stores the authenticated project on the request context.
func withProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

// projectID returns the authenticated project stored by the auth middleware.
func projectID(ctx context.Context) string {
	id, _ := ctx.Value(projectIDKey).(string)
	return id
}

// serveJSON writes v with the given status.
func serveJSON(log *zap.Logger, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write json response", zap.Error(err))
	}
}

// serveError maps a service error onto a status code and writes the body the
// clients expect, {"detail": message}.
func serveError(log *zap.Logger, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case tracer.ErrValidation.Has(err), traceauth.ErrKeyFormat.Has(err):
		status = http.StatusBadRequest
	case traceauth.ErrUnauthorized.Has(err):
		status = http.StatusUnauthorized
	case tracer.ErrProjectMismatch.Has(err):
		status = http.StatusForbidden
	case tracer.ErrNotFound.Has(err):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	serveJSON(log, w, status, map[string]string{"detail": err.Error()})
}

// decodeJSON decodes a request body. Numbers stay json.Number so amounts
// never pass through a binary float on their way to storage.
func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return tracer.ErrValidation.New("invalid request body: %v", err)
	}
	return nil
}
