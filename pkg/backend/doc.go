// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package backend defines the records exchanged with an MLflow compatible tracking
// backend, the Store contract every backend implementation satisfies and the
// Client that keeps the current experiment and the active run of a process.
package backend
