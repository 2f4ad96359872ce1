// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package render renders run tags from go templates evaluated against the training run metadata.
package render
