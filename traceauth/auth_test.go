// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package traceauth_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/llmtrace/traceauth"
)

func TestProjectID(t *testing.T) {
	projectID, err := traceauth.ProjectID("project-dev")
	require.NoError(t, err)
	require.Equal(t, "dev", projectID)

	// the prefix is stripped once
	projectID, err = traceauth.ProjectID("project-project-a")
	require.NoError(t, err)
	require.Equal(t, "project-a", projectID)

	_, err = traceauth.ProjectID("apikey-dev")
	require.True(t, traceauth.ErrKeyFormat.Has(err))

	_, err = traceauth.ProjectID("project-")
	require.True(t, traceauth.ErrKeyFormat.Has(err))

	_, err = traceauth.ProjectID("")
	require.True(t, traceauth.ErrKeyFormat.Has(err))
}

func TestAuthenticateRequired(t *testing.T) {
	auth := traceauth.New(traceauth.Config{
		Required: true,
		Keys:     "project-a, project-b",
	})

	r := httptest.NewRequest("GET", "/api/traces", nil)
	r.Header.Set(traceauth.Header, "project-a")
	projectID, err := auth.Authenticate(r)
	require.NoError(t, err)
	require.Equal(t, "a", projectID)

	r.Header.Set(traceauth.Header, "project-unknown")
	_, err = auth.Authenticate(r)
	require.True(t, traceauth.ErrUnauthorized.Has(err))

	r.Header.Del(traceauth.Header)
	_, err = auth.Authenticate(r)
	require.True(t, traceauth.ErrUnauthorized.Has(err))
}

func TestAuthenticateDisabled(t *testing.T) {
	auth := traceauth.New(traceauth.Config{
		Required:   false,
		DefaultKey: "project-public",
	})

	r := httptest.NewRequest("GET", "/api/traces", nil)
	projectID, err := auth.Authenticate(r)
	require.NoError(t, err)
	require.Equal(t, "public", projectID)

	// a provided key wins over the default, without allow-list checks
	r.Header.Set(traceauth.Header, "project-dev")
	projectID, err = auth.Authenticate(r)
	require.NoError(t, err)
	require.Equal(t, "dev", projectID)

	// malformed keys still fail
	r.Header.Set(traceauth.Header, "garbage")
	_, err = auth.Authenticate(r)
	require.True(t, traceauth.ErrKeyFormat.Has(err))
}
