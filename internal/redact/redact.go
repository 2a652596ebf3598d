// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package redact finds credentials in text before it is sent to a hosted
// embedding API, and redacts, flags or blocks it according to a Mode.
package redact

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Mode selects what happens to text that contains a credential.
type Mode string

const (
	// ModeOff disables scanning.
	ModeOff Mode = "off"
	// ModeFlag logs matches and passes the text through unchanged.
	ModeFlag Mode = "flag"
	// ModeRedact replaces every match with Placeholder.
	ModeRedact Mode = "redact"
	// ModeBlock rejects the text.
	ModeBlock Mode = "block"
)

// Placeholder replaces redacted regions.
const Placeholder = "[REDACTED]"

// Valid reports whether the mode is known.
func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeFlag, ModeRedact, ModeBlock:
		return true
	default:
		return false
	}
}

// ParseMode parses a mode string (case-insensitive).
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", semerr.Errorf(semerr.CodeRedactConfigInvalid,
			"invalid redaction mode %q (want off, flag, redact or block)", s)
	}
	return m, nil
}

// Rule is a named credential pattern.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match is one detected credential. Location and Length are byte offsets
// into Result.Content.
type Match struct {
	Rule     string
	Location int
	Length   int
}

// Result holds the outcome of a scan.
type Result struct {
	Matches []Match
	// Content is the normalized text the offsets refer to.
	Content string
}

// Found reports whether anything matched.
func (r Result) Found() bool { return len(r.Matches) > 0 }

// Scanner applies a rule set in one Mode.
type Scanner struct {
	mode  Mode
	rules []Rule
}

// New creates a Scanner. With no rules it uses DefaultRules.
func New(mode Mode, rules ...Rule) (*Scanner, error) {
	if !mode.Valid() {
		return nil, semerr.Errorf(semerr.CodeRedactConfigInvalid, "invalid redaction mode %q", mode)
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, r := range rules {
		if r.Name == "" {
			return nil, semerr.Errorf(semerr.CodeRedactConfigInvalid, "rule %d has empty name", i)
		}
		if r.Pattern == nil {
			return nil, semerr.Errorf(semerr.CodeRedactConfigInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
	}
	return &Scanner{mode: mode, rules: rules}, nil
}

// Mode returns the scanner's mode.
func (s *Scanner) Mode() Mode { return s.mode }

// invisibleChars strips zero-width and other invisible characters that
// would otherwise split a credential and hide it from the patterns.
var invisibleChars = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // zero-width no-break space / BOM
	"\u00ad", "", // soft hyphen
	"\u034f", "", // combining grapheme joiner
	"\u2060", "", // word joiner
	"\u2061", "", // invisible function application
	"\u2062", "", // invisible times
	"\u2063", "", // invisible separator
	"\u2064", "", // invisible plus
)

// normalize strips invisible characters and applies NFKC.
func normalize(s string) string {
	return norm.NFKC.String(invisibleChars.Replace(s))
}

// Scan reports every rule match in text. It never alters text beyond
// normalization.
func (s *Scanner) Scan(text string) Result {
	content := normalize(text)
	res := Result{Content: content}
	for _, rule := range s.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			res.Matches = append(res.Matches, Match{Rule: rule.Name, Location: loc[0], Length: loc[1] - loc[0]})
		}
	}
	return res
}

// Filter applies the mode to text. Clean text is returned unchanged, as is
// everything in ModeOff. ModeBlock fails with CodeRedactContentBlocked.
func (s *Scanner) Filter(text string) (string, error) {
	if s.mode == ModeOff {
		return text, nil
	}

	res := s.Scan(text)
	if !res.Found() {
		return text, nil
	}

	switch s.mode {
	case ModeFlag:
		slog.Warn("credential found in embedding text", "matches", len(res.Matches), "first_rule", res.Matches[0].Rule)
		return text, nil
	case ModeRedact:
		return redact(res.Content, res.Matches), nil
	default:
		return "", semerr.New(semerr.CodeRedactContentBlocked, "text contains a credential",
			semerr.Field("matches", len(res.Matches)),
			semerr.Field("first_rule", res.Matches[0].Rule),
		)
	}
}

// redact replaces matched regions of content with Placeholder, merging
// overlapping matches.
func redact(content string, matches []Match) string {
	sorted := slices.Clone(matches)
	slices.SortFunc(sorted, func(a, b Match) int { return a.Location - b.Location })

	type span struct{ start, end int }
	spans := []span{{sorted[0].Location, sorted[0].Location + sorted[0].Length}}
	for _, m := range sorted[1:] {
		last := &spans[len(spans)-1]
		end := m.Location + m.Length
		if m.Location <= last.end {
			last.end = max(last.end, end)
			continue
		}
		spans = append(spans, span{m.Location, end})
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, sp := range spans {
		b.WriteString(content[pos:sp.start])
		b.WriteString(Placeholder)
		pos = min(sp.end, len(content))
	}
	b.WriteString(content[pos:])
	return b.String()
}
