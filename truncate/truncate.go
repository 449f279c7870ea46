// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package truncate shrinks client supplied payloads so that every stored
// record fits the backing store's item size limit. The shrinking is lossy
// but always labeled: a payload that was modified carries a "_truncated"
// marker and, when keys had to be dropped, an "_original_size" attribute
// with the pre-truncation byte count.
package truncate

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Byte ceilings for the different payload classes. The backing store
// rejects items above roughly 400 KB, these stay well below that.
const (
	MaxMetadataSize = 10_000
	MaxPayloadSize  = 50_000
	MaxStringLength = 10_000
	MaxItemSize     = 350_000
)

// maxInnerStringLength is the per-value cap applied by the string
// truncation strategy before any keys are dropped.
const maxInnerStringLength = 1000

// markerTruncated is set on every payload the pipeline modified.
// Downstream readers detect lossy records by its presence.
const markerTruncated = "_truncated"

// markerOriginalSize records the pre-truncation serialized size when the
// key dropping strategy ran.
const markerOriginalSize = "_original_size"

// Map returns m shrunk to fit maxSize bytes of JSON.
//
// Three strategies run in order until the payload fits:
//  1. return the payload unchanged if it already fits,
//  2. truncate long string values recursively,
//  3. replace the largest remaining values with "[dropped: K bytes]".
//
// The input map is never modified.
func Map(m map[string]interface{}, maxSize int) map[string]interface{} {
	if len(m) == 0 {
		return m
	}

	original := Size(m)
	if original <= maxSize {
		return m
	}

	shortened, ok := truncateValue(m, maxInnerStringLength).(map[string]interface{})
	if !ok {
		// cannot happen, truncateValue preserves the value shape
		shortened = m
	}
	if Size(shortened) <= maxSize {
		shortened[markerTruncated] = true
		return shortened
	}

	dropped := dropLargeKeys(shortened, maxSize)
	dropped[markerTruncated] = true
	dropped[markerOriginalSize] = original
	return dropped
}

// String returns s cut down to maxLength characters. Strings that fit are
// returned unchanged; longer ones keep the first maxLength-50 characters
// followed by a marker naming the original length.
func String(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	keep := maxLength - 50
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + fmt.Sprintf("\n... [truncated, was %d chars]", len(runes))
}

// Size measures v against its canonical JSON serialization. Values that
// cannot be serialized fall back to their default string form.
func Size(v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return len(fmt.Sprint(v))
	}
	return len(data)
}

// truncateValue rebuilds v with every string longer than maxLen replaced by
// its prefix plus a truncation marker. Maps and slices are walked
// recursively, everything else passes through untouched.
func truncateValue(v interface{}, maxLen int) interface{} {
	switch value := v.(type) {
	case string:
		runes := []rune(value)
		if len(runes) <= maxLen {
			return value
		}
		return string(runes[:maxLen]) + fmt.Sprintf("... [truncated, was %d chars]", len(runes))
	case map[string]interface{}:
		result := make(map[string]interface{}, len(value))
		for key, inner := range value {
			result[key] = truncateValue(inner, maxLen)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(value))
		for i, inner := range value {
			result[i] = truncateValue(inner, maxLen)
		}
		return result
	default:
		return v
	}
}

// dropLargeKeys repeatedly replaces the value of the key with the largest
// serialized value by a small placeholder until the map fits maxSize or no
// droppable keys remain. Ties break on the lexically smaller key so the
// result is deterministic.
func dropLargeKeys(m map[string]interface{}, maxSize int) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		result[key] = value
	}

	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dropped := make(map[string]bool, len(result))
	for Size(result) > maxSize {
		largestKey := ""
		largestSize := -1
		for _, key := range keys {
			if dropped[key] {
				continue
			}
			if size := Size(result[key]); size > largestSize {
				largestKey, largestSize = key, size
			}
		}
		if largestSize < 0 {
			// nothing left to drop
			break
		}
		result[largestKey] = fmt.Sprintf("[dropped: %d bytes]", largestSize)
		dropped[largestKey] = true
	}
	return result
}
