package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	notesPolicy  = bluemonday.UGCPolicy()
)

// SanitizeText strips all markup from user supplied plain text.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// SanitizeHTML keeps basic formatting for internal notes.
func SanitizeHTML(s string) string {
	return strings.TrimSpace(notesPolicy.Sanitize(s))
}
