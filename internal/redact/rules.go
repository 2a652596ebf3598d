// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package redact

import "regexp"

// DefaultRules returns the built-in credential patterns.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "aws_access_key", Pattern: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{Name: "openai_api_key", Pattern: regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`)},
		{Name: "openai_legacy_key", Pattern: regexp.MustCompile(`sk-[A-Za-z0-9]{40,}`)},
		{Name: "anthropic_api_key", Pattern: regexp.MustCompile(`sk-ant-api\d{2}-[A-Za-z0-9_-]{20,}`)},
		{Name: "google_api_key", Pattern: regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
		{Name: "github_pat", Pattern: regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`)},
		{Name: "github_fine_grained_pat", Pattern: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`)},
		{Name: "slack_token", Pattern: regexp.MustCompile(`xox[bpas]-[A-Za-z0-9-]+`)},
		{Name: "bearer_token", Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`)},
		{Name: "pem_private_key", Pattern: regexp.MustCompile(`-----BEGIN\s+(RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
		{Name: "database_connection_string", Pattern: regexp.MustCompile(`(?i)(postgres|mysql|mongodb|redis|jdbc:[a-z]+)://[^\s]+:[^\s]+@[^\s]+`)},
		{Name: "mssql_connection_string", Pattern: regexp.MustCompile(`(?i)(?:Server|Data Source)\s*=\s*[^;]+;\s*(?:Password|Pwd)\s*=\s*[^;]+`)},
		{Name: "keyring_uri", Pattern: regexp.MustCompile(`keyring://[^\s]+`)},
	}
}
