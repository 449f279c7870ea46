// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package truncate_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/llmtrace/truncate"
)

func TestMapPassThrough(t *testing.T) {
	payload := map[string]interface{}{"prompt": "hello", "n": "3"}
	result := truncate.Map(payload, truncate.MaxMetadataSize)
	require.Equal(t, payload, result)
	require.NotContains(t, result, "_truncated")
}

func TestMapEmpty(t *testing.T) {
	require.Nil(t, truncate.Map(nil, 100))
	empty := map[string]interface{}{}
	require.Equal(t, empty, truncate.Map(empty, 100))
}

func TestMapStringTruncation(t *testing.T) {
	long := strings.Repeat("x", 5000)
	payload := map[string]interface{}{"prompt": long, "keep": "small"}

	result := truncate.Map(payload, 3000)

	require.Equal(t, true, result["_truncated"])
	require.Equal(t, "small", result["keep"])

	prompt, ok := result["prompt"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(prompt, strings.Repeat("x", 1000)))
	require.True(t, strings.HasSuffix(prompt, "... [truncated, was 5000 chars]"))

	// the input payload stays untouched
	require.Equal(t, long, payload["prompt"])
}

func TestMapNestedStrings(t *testing.T) {
	payload := map[string]interface{}{
		"request": map[string]interface{}{
			"messages": []interface{}{
				map[string]interface{}{"content": strings.Repeat("a", 2000)},
				strings.Repeat("b", 1500),
			},
		},
	}

	result := truncate.Map(payload, 2200)
	require.Equal(t, true, result["_truncated"])

	request := result["request"].(map[string]interface{})
	messages := request["messages"].([]interface{})

	content := messages[0].(map[string]interface{})["content"].(string)
	require.True(t, strings.HasSuffix(content, "... [truncated, was 2000 chars]"))

	element := messages[1].(string)
	require.True(t, strings.HasSuffix(element, "... [truncated, was 1500 chars]"))
}

func TestMapDropLargeKeys(t *testing.T) {
	// every value is under the per-string cap, so only dropping helps
	payload := map[string]interface{}{}
	for i := 0; i < 40; i++ {
		payload[fmt.Sprintf("key%02d", i)] = strings.Repeat("v", 900)
	}
	originalSize := truncate.Size(payload)

	result := truncate.Map(payload, 10_000)

	require.Equal(t, true, result["_truncated"])
	require.Equal(t, originalSize, result["_original_size"])
	require.LessOrEqual(t, truncate.Size(result), 10_000+100) // markers are added after fitting

	droppedCount := 0
	for key, value := range result {
		if key == "_truncated" || key == "_original_size" {
			continue
		}
		if s, ok := value.(string); ok && strings.HasPrefix(s, "[dropped: ") {
			droppedCount++
		}
	}
	require.NotZero(t, droppedCount)
}

func TestMapDropIsDeterministic(t *testing.T) {
	build := func() map[string]interface{} {
		payload := map[string]interface{}{}
		for i := 0; i < 20; i++ {
			payload[fmt.Sprintf("key%02d", i)] = strings.Repeat("v", 800)
		}
		return payload
	}

	first := truncate.Map(build(), 8000)
	second := truncate.Map(build(), 8000)
	require.Equal(t, first, second)
}

func TestMapNoDroppableKeysLeft(t *testing.T) {
	// a single huge key that even after dropping leaves the marker text,
	// the loop must terminate without fitting
	payload := map[string]interface{}{"a": strings.Repeat("x", 500)}
	result := truncate.Map(payload, 10)
	require.Equal(t, true, result["_truncated"])
	value := result["a"].(string)
	require.True(t, strings.HasPrefix(value, "[dropped: "))
}

func TestMapBoundary(t *testing.T) {
	payload := map[string]interface{}{"k": strings.Repeat("a", 100)}
	exact := truncate.Size(payload)

	require.Equal(t, payload, truncate.Map(payload, exact))

	over := truncate.Map(map[string]interface{}{"k": strings.Repeat("a", 1200)}, 1000)
	require.Equal(t, true, over["_truncated"])
}

func TestString(t *testing.T) {
	require.Equal(t, "short", truncate.String("short", truncate.MaxStringLength))

	exact := strings.Repeat("a", 200)
	require.Equal(t, exact, truncate.String(exact, 200))

	long := strings.Repeat("a", 300)
	cut := truncate.String(long, 200)
	require.True(t, strings.HasPrefix(cut, strings.Repeat("a", 150)))
	require.True(t, strings.HasSuffix(cut, "\n... [truncated, was 300 chars]"))
}

func TestStringEmpty(t *testing.T) {
	require.Equal(t, "", truncate.String("", 100))
}
