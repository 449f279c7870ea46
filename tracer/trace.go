// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"storj.io/llmtrace/truncate"
)

const (
	maxNameLength      = 255
	maxProjectIDLength = 100
	maxIdentityLength  = 255
	maxTagLength       = 100
	maxTagCount        = 50
)

var projectIDRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Trace is one top-level observed operation, e.g. a full agent run. It owns
// a flat set of spans and belongs to exactly one project.
type Trace struct {
	ID         string                 `json:"trace_id"`
	Name       string                 `json:"name"`
	ProjectID  string                 `json:"project_id"`
	StartTime  Timestamp              `json:"start_time"`
	EndTime    *Timestamp             `json:"end_time,omitempty"`
	DurationMS *int64                 `json:"duration_ms,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Output     string                 `json:"output,omitempty"`

	// SpanCount and TotalCost are denormalized rollups maintained by the
	// storage layer on span writes.
	SpanCount int64 `json:"span_count"`
	TotalCost Cost  `json:"total_cost"`
}

// Completed reports whether the trace has been closed.
func (t *Trace) Completed() bool { return t.EndTime != nil && !t.EndTime.IsZero() }

// CreateTraceRequest is the body of a trace creation call.
type CreateTraceRequest struct {
	Name      string                 `json:"name"`
	ProjectID string                 `json:"project_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// Normalize validates the request and rewrites it into its storable form:
// tags are stripped and capped, metadata values are coerced to strings and
// shrunk to the metadata ceiling.
func (req *CreateTraceRequest) Normalize() error {
	if err := validateName(req.Name); err != nil {
		return err
	}
	if err := ValidateProjectID(req.ProjectID); err != nil {
		return err
	}
	if len(req.UserID) > maxIdentityLength {
		return ErrValidation.New("user_id exceeds %d characters", maxIdentityLength)
	}
	if len(req.SessionID) > maxIdentityLength {
		return ErrValidation.New("session_id exceeds %d characters", maxIdentityLength)
	}

	tags, err := NormalizeTags(req.Tags)
	if err != nil {
		return err
	}
	req.Tags = tags
	req.Metadata = NormalizeMetadata(req.Metadata)
	return nil
}

// CompleteTraceRequest is the body of a trace completion call. Empty fields
// are left untouched on the stored record.
type CompleteTraceRequest struct {
	Output   string                 `json:"output,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Normalize shrinks the supplied fields to their ceilings.
func (req *CompleteTraceRequest) Normalize() error {
	req.Output = truncate.String(req.Output, truncate.MaxStringLength)
	req.Metadata = NormalizeMetadata(req.Metadata)
	return nil
}

// ValidateProjectID checks length and character class of a project
// identifier.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return ErrValidation.New("project_id is required")
	}
	if len(projectID) > maxProjectIDLength {
		return ErrValidation.New("project_id exceeds %d characters", maxProjectIDLength)
	}
	if !projectIDRegexp.MatchString(projectID) {
		return ErrValidation.New("project_id may only contain letters, digits, underscore and dash")
	}
	return nil
}

// NormalizeTags drops empty and whitespace-only tags, truncates each tag to
// the tag length cap and rejects lists above the count cap.
func NormalizeTags(tags []string) ([]string, error) {
	if len(tags) > maxTagCount {
		return nil, ErrValidation.New("too many tags: %d, at most %d allowed", len(tags), maxTagCount)
	}
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if len(tag) > maxTagLength {
			tag = tag[:maxTagLength]
		}
		result = append(result, tag)
	}
	return result, nil
}

// NormalizeMetadata coerces every metadata value to a string and shrinks the
// mapping to the metadata ceiling. The store rejects binary floats inside
// nested structures, string coercion sidesteps the whole class of problems.
func NormalizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(metadata) == 0 {
		return metadata
	}
	coerced := make(map[string]interface{}, len(metadata))
	for key, value := range metadata {
		coerced[key] = coerceString(value)
	}
	return truncate.Map(coerced, truncate.MaxMetadataSize)
}

func coerceString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	case nil:
		return ""
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	default:
		return fmt.Sprint(value)
	}
}

func validateName(name string) error {
	if name == "" {
		return ErrValidation.New("name is required")
	}
	if len(name) > maxNameLength {
		return ErrValidation.New("name exceeds %d characters", maxNameLength)
	}
	return nil
}
