// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logger wraps hclog behind the small interface used across mltrack.
// Loggers travel inside a context.Context so library code never needs a global.
package logger
