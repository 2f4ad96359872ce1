// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package artifact uploads run artifacts to the storage pointed by an artifact URI.
// Local directories, Amazon S3, Google Cloud Storage and Azure Blob Storage are supported.
package artifact
