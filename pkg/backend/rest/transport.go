// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package rest

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// newTransport creates an HTTP transport configured with either a static token or a client-credentials flow.
func newTransport(ctx context.Context, cfg *config) http.RoundTripper {
	var source oauth2.TokenSource
	switch {
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		credentials := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthEndpoint,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		source = credentials.TokenSource(ctx)
	case cfg.Token != "":
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	}

	if source == nil {
		return http.DefaultTransport
	}

	return &oauth2.Transport{
		Source: source,
	}
}
