// Package searchterm prepares free-text terms for the MusicBrainz (Lucene) query grammar.
//
// Sanitize is applied once, by the query builders, to raw user or tag text. It is not
// idempotent: sanitizing an already escaped term escapes the backslashes again.
package searchterm

import (
	"regexp"
	"strings"
)

// reserved holds every character with meaning in the Lucene query grammar.
const reserved = `+-&|!(){}[]^"~*?:\/`

var (
	qualifierPattern  = regexp.MustCompile(`\s*\([^()]*\)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Sanitize strips parenthesized qualifiers such as "(Remastered)" and escapes the
// reserved characters of the query grammar with a backslash.
// If removing qualifiers would leave nothing, the qualifier text is kept.
func Sanitize(term string) string {
	stripped := term
	for qualifierPattern.MatchString(stripped) {
		stripped = qualifierPattern.ReplaceAllString(stripped, " ")
	}
	stripped = collapse(stripped)
	if stripped == "" {
		stripped = collapse(term)
	}
	return Escape(stripped)
}

// Escape prefixes each reserved character with a backslash. No other change is made.
func Escape(term string) string {
	var sb strings.Builder
	sb.Grow(len(term) + 8)
	for _, r := range term {
		if strings.ContainsRune(reserved, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// StripLeadingArticle drops a leading "The " from an artist name for searching.
// Names that are only the article ("The", "The  ") are returned unchanged.
func StripLeadingArticle(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 4 || !strings.EqualFold(trimmed[:4], "the ") {
		return name
	}
	rest := strings.TrimSpace(trimmed[4:])
	if rest == "" {
		return name
	}
	return rest
}

// Field builds a fielded clause, e.g. Field("artist", "AC/DC") -> `artist:(AC\/DC)`.
// An empty term yields an empty clause.
func Field(name, term string) string {
	escaped := Sanitize(term)
	if escaped == "" {
		return ""
	}
	return name + ":(" + escaped + ")"
}

// And joins non-empty clauses with the AND operator.
func And(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		if clause != "" {
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " AND ")
}

func collapse(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
