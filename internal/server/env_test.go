// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentVariables(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		envVars, err := loadServerConfig()
		require.NoError(t, err)
		assert.Equal(t, &config{DisableStartupMessage: true, HTTPHost: "0.0.0.0", HTTPPort: 5000}, envVars)
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "3000")
		t.Setenv("HTTP_HOST", "127.0.0.1")
		t.Setenv("DISABLE_STARTUP_MESSAGE", "false")
		envVars, err := loadServerConfig()
		require.NoError(t, err)
		assert.Equal(t, &config{HTTPHost: "127.0.0.1", HTTPPort: 3000}, envVars)
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "655350")
		_, err := loadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})

	t.Run("port not a number", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "http")
		_, err := loadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})
}

func TestLoadValidateEnvironmentVariables(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		port        int
		expectedErr bool
	}{
		"negative port": {port: -1, expectedErr: true},
		"port too big":  {port: 655350, expectedErr: true},
		"valid port":    {port: 3000},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := validateEnvironmentVariables(&config{HTTPPort: test.port})
			if test.expectedErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
