// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package stores picks the backend.Store implementation serving a tracking endpoint.
package stores

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/backend/filestore"
	"github.com/mia-platform/mltrack/pkg/backend/rest"
)

var _ backend.Opener = Open

// Open returns a REST store for http(s) endpoints and a file store for
// file:// URIs and plain paths. An empty endpoint opens the default local directory.
func Open(_ context.Context, endpoint string) (backend.Store, error) {
	if endpoint == "" {
		endpoint = backend.DefaultTrackingEndpoint
	}

	if !strings.Contains(endpoint, "://") {
		return openFileStore(endpoint)
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrUnsupportedEndpoint, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		store, err := rest.New(endpoint)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "file":
		return openFileStore(parsed.Path)
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedEndpoint, endpoint)
	}
}

func openFileStore(root string) (backend.Store, error) {
	store, err := filestore.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewClient returns a backend.Client opening stores with Open.
func NewClient(opts ...backend.ClientOption) *backend.Client {
	return backend.NewClient(Open, opts...)
}
