// Package security cleans user-supplied catalog text before it is stored.
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips every HTML element from plain-text fields. It is safe
// for concurrent use.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer builds a sanitizer backed by bluemonday's strict policy.
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean removes markup from s and trims surrounding whitespace. Entities the
// policy escapes are decoded again, so "Tom & Jerry" stays readable; the
// browser client inserts these values as text, never as HTML.
func (s *TextSanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}
