// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package traceauth resolves API keys to project identities. Keys have the
// form "project-<project_id>"; the project is the tenant boundary for every
// read and write.
package traceauth

import (
	"net/http"
	"strings"

	"github.com/zeebo/errs"
)

// Header carries the API key on every authenticated request.
const Header = "X-API-Key"

const keyPrefix = "project-"

var (
	// ErrUnauthorized is returned for a missing or unknown key.
	ErrUnauthorized = errs.Class("unauthorized")

	// ErrKeyFormat is returned for a key that does not follow the
	// project-<id> form.
	ErrKeyFormat = errs.Class("api key format")
)

// Config is the authentication configuration.
type Config struct {
	Required   bool   `help:"require a known api key on every request" default:"false"`
	Keys       string `help:"comma separated list of accepted api keys" default:""`
	DefaultKey string `help:"api key assumed when authentication is not required and no key is sent" default:"project-public"`
}

// Authenticator checks API keys against the configured allow-list and
// extracts the project identity.
type Authenticator struct {
	required   bool
	keys       map[string]bool
	defaultKey string
}

// New creates an Authenticator from config.
func New(config Config) *Authenticator {
	keys := make(map[string]bool)
	for _, key := range strings.Split(config.Keys, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys[key] = true
		}
	}
	return &Authenticator{
		required:   config.Required,
		keys:       keys,
		defaultKey: config.DefaultKey,
	}
}

// Authenticate resolves the request's API key to a project identity.
//
// With authentication disabled the default key stands in for a missing
// header, which gives local development a working single-project setup
// without any key handling.
func (auth *Authenticator) Authenticate(r *http.Request) (projectID string, err error) {
	key := r.Header.Get(Header)

	if !auth.required {
		if key == "" {
			key = auth.defaultKey
		}
		return ProjectID(key)
	}

	if key == "" || !auth.keys[key] {
		return "", ErrUnauthorized.New("invalid or missing api key")
	}
	return ProjectID(key)
}

// ProjectID extracts the project identity from an API key of the form
// project-<project_id>.
func ProjectID(key string) (string, error) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", ErrKeyFormat.New("expected project-<project_id>")
	}
	projectID := strings.TrimPrefix(key, keyPrefix)
	if projectID == "" {
		return "", ErrKeyFormat.New("empty project id")
	}
	return projectID, nil
}
