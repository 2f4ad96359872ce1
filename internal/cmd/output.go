// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// printJSON writes value as indented JSON under a title line.
func printJSON(w io.Writer, title string, value any) {
	builder := new(strings.Builder)
	builder.WriteString(title + ":\n\t")

	encoder := json.NewEncoder(builder)
	encoder.SetIndent("\t", "\t")
	_ = encoder.Encode(value)

	fmt.Fprint(w, builder.String())
}
