// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracedb

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundtrip(t *testing.T) {
	key := map[string]types.AttributeValue{
		"trace_id":   &types.AttributeValueMemberS{Value: "abc-123"},
		"project_id": &types.AttributeValueMemberS{Value: "demo"},
		"start_time": &types.AttributeValueMemberS{Value: "2025-06-01T12:00:00Z"},
	}

	cursor, err := encodeCursor(key)
	require.NoError(t, err)
	require.NotEmpty(t, cursor)

	decoded := decodeCursor(cursor)
	require.Equal(t, key, decoded)
}

func TestCursorEmpty(t *testing.T) {
	cursor, err := encodeCursor(nil)
	require.NoError(t, err)
	require.Empty(t, cursor)

	require.Nil(t, decodeCursor(""))
}

func TestCursorGarbage(t *testing.T) {
	require.Nil(t, decodeCursor("%%%not-base64%%%"))
	// valid base64, invalid payload
	require.Nil(t, decodeCursor("bm90IGpzb24="))
}
