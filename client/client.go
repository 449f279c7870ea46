// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package client is the instrumentation SDK for applications reporting
// traces. It is built to stay out of the way: every reporting failure is
// logged and swallowed, handles stay usable, and the instrumented
// application never sees a tracing error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/llmtrace/traceauth"
	"storj.io/llmtrace/tracer"
)

var (
	mon = monkit.Package()

	// Error is the default error class of the package.
	Error = errs.Class("client")
)

// Config is the client configuration.
type Config struct {
	Address string        `help:"base url of the tracing service, empty disables tracing" default:"http://localhost:8080"`
	APIKey  string        `help:"api key in the form project-<project_id>" default:""`
	Timeout time.Duration `help:"timeout of reporting requests" default:"3s"`
}

// defaultTimeout bounds every reporting request when the configuration does
// not set one. A zero http.Client timeout would let a hung backend block the
// instrumented application.
const defaultTimeout = 3 * time.Second

// Client reports traces to the backend. A client without an API key is
// disabled: every call succeeds and nothing is sent.
type Client struct {
	log       *zap.Logger
	config    Config
	http      http.Client
	projectID string
	enabled   bool
}

// New creates a Client. A missing API key or address disables reporting
// instead of failing, so applications run unchanged without a backend.
func New(log *zap.Logger, config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	client := &Client{
		log:    log,
		config: config,
		http:   http.Client{Timeout: config.Timeout},
	}
	client.config.Address = strings.TrimRight(config.Address, "/")

	if client.config.Address == "" || config.APIKey == "" {
		log.Info("tracing disabled: no address or api key configured")
		return client
	}
	projectID, err := traceauth.ProjectID(config.APIKey)
	if err != nil {
		log.Warn("tracing disabled: invalid api key", zap.Error(err))
		return client
	}
	client.projectID = projectID
	client.enabled = true
	return client
}

// Enabled reports whether the client sends anything.
func (client *Client) Enabled() bool { return client.enabled }

// TraceOptions are the optional fields of a new trace.
type TraceOptions struct {
	Metadata  map[string]interface{}
	Tags      []string
	UserID    string
	SessionID string
}

// OpenTrace starts a new trace. The returned handle is always usable; if
// the backend rejected the trace or the client is disabled the handle is
// inert and all operations on it are no-ops.
func (client *Client) OpenTrace(ctx context.Context, name string, opts TraceOptions) *Trace {
	trace := &Trace{client: client}
	if !client.enabled {
		return trace
	}

	var created struct {
		TraceID string `json:"trace_id"`
	}
	err := client.send(ctx, http.MethodPost, "/api/traces", tracer.CreateTraceRequest{
		Name:      name,
		ProjectID: client.projectID,
		Metadata:  opts.Metadata,
		Tags:      opts.Tags,
		UserID:    opts.UserID,
		SessionID: opts.SessionID,
	}, &created)
	if err != nil {
		client.log.Warn("failed to open trace", zap.String("name", name), zap.Error(err))
		return trace
	}
	trace.ID = created.TraceID
	return trace
}

// send issues one JSON request and decodes the response into out.
func (client *Client) send(ctx context.Context, method, path string, body, out interface{}) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := json.Marshal(body)
	if err != nil {
		return Error.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, method, client.config.Address+path, bytes.NewReader(data))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(traceauth.Header, client.config.APIKey)

	resp, err := client.http.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return Error.New("unexpected status %d: %s", resp.StatusCode, failure.Detail)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}
