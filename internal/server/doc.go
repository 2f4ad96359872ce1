// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package server contains a small tracking server for the mltrack application.
// It exposes the subset of the MLflow REST API used by mltrack on top of a
// backend.Store, together with the status and prometheus metrics routes.
package server
