// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracedb

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// encodeCursor packs a LastEvaluatedKey into an opaque token. The key of the
// timeline index consists of string attributes only, so a flat string map
// survives the round trip.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	var flat map[string]string
	if err := attributevalue.UnmarshalMap(key, &flat); err != nil {
		return "", Error.Wrap(err)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodeCursor unpacks a client-supplied token. Tokens are opaque and
// clients mangle them; an undecodable token restarts the listing from the
// top instead of failing the request.
func decodeCursor(cursor string) map[string]types.AttributeValue {
	if cursor == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil
	}
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil
	}
	key, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return nil
	}
	return key
}
