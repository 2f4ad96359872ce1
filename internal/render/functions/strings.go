// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package functions

import (
	"fmt"
	"strings"
)

// Quote returns s formatted as a double quoted go string.
func Quote(s any) string {
	return fmt.Sprintf("%q", castToString(s))
}

// TrimSpace removes leading and trailing white space from s.
func TrimSpace(s string) string {
	return strings.TrimSpace(s)
}

// TrimPrefix removes prefix from the beginning of s if present.
func TrimPrefix(prefix, s string) string {
	return strings.TrimPrefix(s, prefix)
}

// TrimSuffix removes suffix from the end of s if present.
func TrimSuffix(suffix, s string) string {
	return strings.TrimSuffix(s, suffix)
}

// Replace substitutes every occurrence of toChange in s with toBe.
func Replace(toChange, toBe, s string) string {
	return strings.ReplaceAll(s, toChange, toBe)
}

// ToUpper returns s with all letters mapped to upper case.
func ToUpper(s string) string {
	return strings.ToUpper(s)
}

// ToLower returns s with all letters mapped to lower case.
func ToLower(s string) string {
	return strings.ToLower(s)
}

// Truncate keeps the first length bytes of s, or the last -length bytes when length is negative.
func Truncate(length int, s string) string {
	if length < 0 && len(s)+length > 0 {
		return s[len(s)+length:]
	}

	if length >= 0 && len(s) > length {
		return s[:length]
	}

	return s
}

// Split slices s into all substrings separated by sep.
func Split(sep, s string) []string {
	return strings.Split(s, sep)
}

func castToString(obj any) string {
	switch v := obj.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
