// Package sanitize provides text sanitization utilities for user-provided
// message content.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// htmlTagRegex matches HTML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
// Channel payloads occasionally smuggle markup in message bodies.
func StripHTML(s string) string {
	// Remove HTML tags
	result := htmlTagRegex.ReplaceAllString(s, "")
	// Decode common HTML entities
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// MessageBody sanitizes an inbound message body for storage: strips HTML,
// drops control characters and caps the length so one message cannot bloat
// rows or logs.
func MessageBody(s string) string {
	const maxLen = 8192

	cleaned := StripHTML(s)
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, cleaned)

	if len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
	}
	return strings.TrimSpace(cleaned)
}
