// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package rest

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
)

const defaultAuthPath = "/oauth/token"

var (
	errMissingClientID     = errors.New("MLFLOW_CLIENT_ID is required when MLFLOW_CLIENT_SECRET is set")
	errMissingClientSecret = errors.New("MLFLOW_CLIENT_SECRET is required when MLFLOW_CLIENT_ID is set")
	errMultipleAuthMethods = errors.New("only one of MLFLOW_TRACKING_TOKEN, MLFLOW_TRACKING_USERNAME or MLFLOW_CLIENT_ID can be set")
)

// config holds the authentication settings of the REST store.
type config struct {
	Token        string `env:"MLFLOW_TRACKING_TOKEN"`
	Username     string `env:"MLFLOW_TRACKING_USERNAME"`
	Password     string `env:"MLFLOW_TRACKING_PASSWORD"`
	ClientID     string `env:"MLFLOW_CLIENT_ID"`
	ClientSecret string `env:"MLFLOW_CLIENT_SECRET"`
	AuthEndpoint string `env:"MLFLOW_AUTH_ENDPOINT"`
}

// loadConfigFromEnv parses and validates the authentication settings, the auth
// endpoint defaults to /oauth/token on the tracking host.
func loadConfigFromEnv(endpoint *url.URL) (*config, error) {
	cfg := new(config)
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	methods := 0
	for _, value := range []string{cfg.Token, cfg.Username, cfg.ClientID + cfg.ClientSecret} {
		if value != "" {
			methods++
		}
	}

	switch {
	case methods > 1:
		return nil, errMultipleAuthMethods
	case cfg.ClientID != "" && cfg.ClientSecret == "":
		return nil, errMissingClientSecret
	case cfg.ClientID == "" && cfg.ClientSecret != "":
		return nil, errMissingClientID
	}

	if cfg.AuthEndpoint == "" {
		authURL := *endpoint
		authURL.Path = defaultAuthPath
		authURL.RawQuery = ""
		cfg.AuthEndpoint = authURL.String()
	} else if _, err := url.Parse(cfg.AuthEndpoint); err != nil {
		return nil, fmt.Errorf("invalid MLFLOW_AUTH_ENDPOINT: %w", err)
	}

	return cfg, nil
}
