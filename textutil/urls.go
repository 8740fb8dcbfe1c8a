package textutil

import (
	"net/url"
	"strings"
)

// IsURL reports whether s parses as an absolute http(s) URL.
func IsURL(s string) bool {
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		return true
	default:
		return false
	}
}

// ExtractURLs returns the http(s) URLs found among the whitespace-separated
// tokens of text, in order of appearance.
func ExtractURLs(text string) []string {
	var out []string
	for _, token := range strings.Fields(text) {
		if IsURL(token) {
			out = append(out, token)
		}
	}
	return out
}
