// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tracer implements the domain model and lifecycle service of the
// LLM trace backend: traces, spans, request validation, project ownership
// checks and the bounded statistics rollup.
package tracer

import (
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// Error is the default tracer error class.
	Error = errs.Class("tracer")

	// ErrValidation is returned for malformed create or complete requests.
	ErrValidation = errs.Class("validation")

	// ErrNotFound is returned when a record does not exist or is owned by
	// another project. The two cases are deliberately indistinguishable.
	ErrNotFound = errs.Class("not found")

	// ErrProjectMismatch is returned when a create request declares a
	// project different from the one the API key authenticates.
	ErrProjectMismatch = errs.Class("project mismatch")
)
