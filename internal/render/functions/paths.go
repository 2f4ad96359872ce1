// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package functions

import (
	"path/filepath"
	"strings"
)

// Base returns the last element of a work dir or config path.
func Base(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// Dir returns all but the last element of path.
func Dir(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

// Stem returns the file name of path without its extension, "configs/resnet50.py" becomes "resnet50".
func Stem(path string) string {
	base := Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
