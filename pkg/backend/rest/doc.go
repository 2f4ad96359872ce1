// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package rest implements backend.Store against the MLflow tracking REST API 2.0.
// Authentication is read from the environment: a static MLFLOW_TRACKING_TOKEN,
// basic auth with MLFLOW_TRACKING_USERNAME and MLFLOW_TRACKING_PASSWORD, or the
// OAuth2 client credentials flow with MLFLOW_CLIENT_ID and MLFLOW_CLIENT_SECRET.
package rest
