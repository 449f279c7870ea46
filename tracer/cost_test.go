// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/llmtrace/tracer"
)

func TestCostJSON(t *testing.T) {
	cost, err := tracer.NewCost("0.0042")
	require.NoError(t, err)

	data, err := json.Marshal(cost)
	require.NoError(t, err)
	require.Equal(t, `0.0042`, string(data))

	var decoded tracer.Cost
	require.NoError(t, json.Unmarshal([]byte(`0.0042`), &decoded))
	require.True(t, decoded.Equal(cost.Decimal))

	// string form as some clients send it
	require.NoError(t, json.Unmarshal([]byte(`"0.0042"`), &decoded))
	require.True(t, decoded.Equal(cost.Decimal))

	require.Error(t, json.Unmarshal([]byte(`"lots"`), &decoded))
}

func TestCostMalformedJSON(t *testing.T) {
	// mismatched quoting and non-scalar values are not silently repaired
	for _, input := range []string{`"0.5`, `0.5"`, `""`, `true`, `[0.5]`} {
		var decoded tracer.Cost
		require.Error(t, decoded.UnmarshalJSON([]byte(input)), "input %s", input)
	}
}

func TestCostExact(t *testing.T) {
	// 0.1 + 0.2 is where binary floats fall over
	a, err := tracer.NewCost("0.1")
	require.NoError(t, err)
	b, err := tracer.NewCost("0.2")
	require.NoError(t, err)

	sum := tracer.CostFromDecimal(a.Add(b.Decimal))
	data, err := json.Marshal(sum)
	require.NoError(t, err)
	require.Equal(t, `0.3`, string(data))
}
