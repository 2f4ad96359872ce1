// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package teleport propagates the active Destination to every tracked call.
//
// A Destination can travel explicitly inside a context.Context with
// WithDestination, be installed process wide with SetDestination (last writer
// wins) or for a bounded scope with Use, or be read from the MLFLOW_* environment
// variables. Resolve looks in that order.
package teleport
