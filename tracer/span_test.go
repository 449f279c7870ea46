// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/llmtrace/tracer"
)

func int64p(v int64) *int64 { return &v }

func costp(t *testing.T, s string) *tracer.Cost {
	t.Helper()
	cost, err := tracer.NewCost(s)
	require.NoError(t, err)
	return &cost
}

func TestSpanKindValid(t *testing.T) {
	for _, kind := range []tracer.SpanKind{
		tracer.SpanKindLLM, tracer.SpanKindTool, tracer.SpanKindAgent,
		tracer.SpanKindFunction, tracer.SpanKindRetrieval,
		tracer.SpanKindEmbedding, tracer.SpanKindChain, tracer.SpanKindOther,
	} {
		require.True(t, kind.Valid(), kind)
	}
	require.False(t, tracer.SpanKind("database").Valid())
	require.False(t, tracer.SpanKind("").Valid())
}

func TestCreateSpanRequestNormalize(t *testing.T) {
	req := tracer.CreateSpanRequest{
		Name:     "completion",
		SpanType: tracer.SpanKindLLM,
		Model:    "gpt-4o",
		InputData: map[string]interface{}{
			"prompt": strings.Repeat("p", 60_000),
		},
		TokensInput: int64p(120),
		CostUSD:     costp(t, "0.003"),
	}
	require.NoError(t, req.Normalize())

	prompt, ok := req.InputData["prompt"].(string)
	require.True(t, ok)
	require.Less(t, len(prompt), 60_000)
	require.Contains(t, prompt, "[truncated, was 60000 chars]")
}

func TestCreateSpanRequestRejects(t *testing.T) {
	valid := func() tracer.CreateSpanRequest {
		return tracer.CreateSpanRequest{Name: "step", SpanType: tracer.SpanKindTool}
	}

	req := valid()
	req.Name = ""
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))

	req = valid()
	req.SpanType = "database"
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))

	req = valid()
	req.TokensInput = int64p(-1)
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))

	req = valid()
	req.TokensOutput = int64p(-5)
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))

	req = valid()
	req.CostUSD = costp(t, "-0.01")
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))

	req = valid()
	req.Model = strings.Repeat("m", 256)
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))
}

func TestCompleteSpanRequestNormalize(t *testing.T) {
	req := tracer.CompleteSpanRequest{
		Error:        strings.Repeat("e", 12_000),
		TokensOutput: int64p(256),
	}
	require.NoError(t, req.Normalize())
	require.Less(t, len(req.Error), 12_000)
	require.Contains(t, req.Error, "[truncated, was 12000 chars]")

	req = tracer.CompleteSpanRequest{TokensOutput: int64p(-1)}
	require.True(t, tracer.ErrValidation.Has(req.Normalize()))
}
