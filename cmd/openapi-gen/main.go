// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Command openapi-gen writes the REST API description to api/openapi/spec.json.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/semdex/internal/server"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec extracts the OpenAPI document huma derives from the route
// types.
func generateSpec() ([]byte, error) {
	doc, err := server.Document("dev")
	if err != nil {
		return nil, semerr.Errorf(semerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	return json.MarshalIndent(doc, "", "  ")
}
