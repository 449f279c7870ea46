// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"storj.io/llmtrace/client"
	"storj.io/llmtrace/tracer"
)

type recordedRequest struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]interface{}
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	fail     bool
}

func (backend *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backend.mu.Lock()
		defer backend.mu.Unlock()

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		backend.requests = append(backend.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			APIKey: r.Header.Get("X-API-Key"),
			Body:   body,
		})

		if backend.fail {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/traces":
			_ = json.NewEncoder(w).Encode(map[string]string{"trace_id": "trace-1", "status": "created"})
		case r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"span_id": "span-" + string(rune('0'+len(backend.requests))), "status": "created"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
		}
	})
}

func (backend *fakeBackend) recorded() []recordedRequest {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return append([]recordedRequest(nil), backend.requests...)
}

func newTestClient(t *testing.T, backend *fakeBackend) *client.Client {
	ts := httptest.NewServer(backend.handler())
	t.Cleanup(ts.Close)
	return client.New(zaptest.NewLogger(t), client.Config{
		Address: ts.URL,
		APIKey:  "project-demo",
	})
}

func TestDisabledWithoutKey(t *testing.T) {
	ctx := testcontext.New(t)
	c := client.New(zaptest.NewLogger(t), client.Config{Address: "http://localhost:1"})
	require.False(t, c.Enabled())

	// everything is a no-op and nothing panics
	trace := c.OpenTrace(ctx, "run", client.TraceOptions{})
	require.True(t, trace.Inert())
	span := trace.Span(ctx, "llm", tracer.SpanKindLLM, client.SpanOptions{})
	require.True(t, span.Inert())
	span.SetError("ignored")
	span.Finish(ctx)
	trace.SetOutput("ignored")
	trace.Finish(ctx)
}

func TestDisabledWithBadKey(t *testing.T) {
	c := client.New(zaptest.NewLogger(t), client.Config{
		Address: "http://localhost:1",
		APIKey:  "not-a-project-key",
	})
	require.False(t, c.Enabled())
}

func TestTraceFlow(t *testing.T) {
	ctx := testcontext.New(t)
	backend := &fakeBackend{}
	c := newTestClient(t, backend)
	require.True(t, c.Enabled())

	trace := c.OpenTrace(ctx, "agent-run", client.TraceOptions{
		Tags:   []string{"prod"},
		UserID: "u1",
	})
	require.Equal(t, "trace-1", trace.ID)

	agent := trace.Span(ctx, "agent", tracer.SpanKindAgent, client.SpanOptions{})
	require.False(t, agent.Inert())

	llm := agent.Span(ctx, "completion", tracer.SpanKindLLM, client.SpanOptions{
		Model:     "gpt-4o",
		InputData: map[string]interface{}{"prompt": "hello"},
	})
	require.False(t, llm.Inert())

	cost, err := tracer.NewCost("0.004")
	require.NoError(t, err)
	llm.SetOutput(map[string]interface{}{"content": "hi"})
	llm.SetUsage(12, 5)
	llm.SetCost(cost)
	llm.Finish(ctx)
	llm.Finish(ctx) // second finish is swallowed

	trace.SetOutput("all done")
	trace.Finish(ctx)

	requests := backend.recorded()
	require.Len(t, requests, 5)

	create := requests[0]
	require.Equal(t, http.MethodPost, create.Method)
	require.Equal(t, "/api/traces", create.Path)
	require.Equal(t, "project-demo", create.APIKey)
	require.Equal(t, "agent-run", create.Body["name"])
	require.Equal(t, "demo", create.Body["project_id"])

	nested := requests[2]
	require.Equal(t, "/api/traces/trace-1/spans", nested.Path)
	require.Equal(t, "completion", nested.Body["name"])
	require.NotEmpty(t, nested.Body["parent_span_id"])
	require.Equal(t, "gpt-4o", nested.Body["model"])

	finish := requests[3]
	require.Equal(t, http.MethodPatch, finish.Method)
	require.Equal(t, float64(12), finish.Body["tokens_input"])
	require.Equal(t, float64(5), finish.Body["tokens_output"])
	require.Equal(t, 0.004, finish.Body["cost_usd"])

	done := requests[4]
	require.Equal(t, http.MethodPatch, done.Method)
	require.Equal(t, "/api/traces/trace-1/complete", done.Path)
	require.Equal(t, "all done", done.Body["output"])
}

func TestHungBackendTimesOut(t *testing.T) {
	ctx := testcontext.New(t)

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := client.New(zaptest.NewLogger(t), client.Config{
		Address: ts.URL,
		APIKey:  "project-demo",
		Timeout: 100 * time.Millisecond,
	})

	start := time.Now()
	trace := c.OpenTrace(ctx, "run", client.TraceOptions{})
	require.True(t, trace.Inert())
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestBackendFailureSwallowed(t *testing.T) {
	ctx := testcontext.New(t)
	backend := &fakeBackend{fail: true}
	c := newTestClient(t, backend)

	trace := c.OpenTrace(ctx, "run", client.TraceOptions{})
	require.True(t, trace.Inert())

	// spans of an inert trace never hit the wire
	span := trace.Span(ctx, "llm", tracer.SpanKindLLM, client.SpanOptions{})
	require.True(t, span.Inert())
	span.Finish(ctx)
	trace.Finish(ctx)

	require.Len(t, backend.recorded(), 1)
}
