// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package functions

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

const shortHashLength = 8

var nowFn = time.Now

// Sha256Sum returns the hex encoded sha256 digest of input.
func Sha256Sum(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// ShortHash returns the first characters of the sha256 of input, handy to fingerprint a config.
func ShortHash(input string) string {
	return Sha256Sum(input)[:shortHashLength]
}

// UUIDV7 returns a new time ordered version 7 UUID.
func UUIDV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Now returns the current UTC time formatted as RFC3339.
func Now() string {
	return nowFn().UTC().Format(time.RFC3339)
}
