// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"net/http"

	"go.uber.org/zap"

	"storj.io/llmtrace/tracer"
)

// Stats handles the statistics endpoint.
type Stats struct {
	log     *zap.Logger
	service *tracer.Service
}

// NewStats creates a Stats controller.
func NewStats(log *zap.Logger, service *tracer.Service) *Stats {
	return &Stats{log: log, service: service}
}

// Project returns the rollups of the authenticated project.
func (controller *Stats) Project(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	stats, err := controller.service.Stats(ctx, projectID(ctx))
	if err != nil {
		serveError(controller.log, w, err)
		return
	}
	serveJSON(controller.log, w, http.StatusOK, stats)
}
