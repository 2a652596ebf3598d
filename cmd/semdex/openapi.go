// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/semdex/internal/server"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func newOpenAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI description of the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")

			doc, err := server.Document(version)
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return semerr.Wrapf(err, semerr.CodeCLISetupFailure, "encoding openapi document")
			}

			switch format {
			case formatJSON:
				raw = append(raw, '\n')
			case formatYAML:
				if raw, err = jsonToYAML(raw); err != nil {
					return err
				}
			default:
				return semerr.Errorf(semerr.CodeCLIInputInvalid, "unknown format %q (want json or yaml)", format)
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}

	cmd.Flags().StringP("format", "f", formatJSON, "document format: json or yaml")
	return cmd
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping key
// order.
func jsonToYAML(raw []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeCLISetupFailure, "parsing openapi document")
	}
	clearStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeCLISetupFailure, "encoding openapi yaml")
	}
	return out, nil
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
