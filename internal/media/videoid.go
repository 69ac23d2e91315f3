package media

import (
	"regexp"
	"strings"
)

// videoIDPatterns match the 11-character video identifier embedded in
// the common YouTube-style URL shapes. Extraction is purely lexical so
// callers can derive cache keys without a network round-trip.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`embed/([0-9A-Za-z_-]{11})`),
}

// ExtractVideoID attempts to pull the video identifier out of the URL
// without contacting the engine. The second return is false when no
// pattern matched; callers must fall back to the engine-reported ID.
func ExtractVideoID(mediaURL string) (string, bool) {
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(mediaURL); match != nil {
			return match[1], true
		}
	}

	return "", false
}

var unsafeTitleChars = regexp.MustCompile(`[^\w\s-]`)

// SanitizeTitle reduces a media title to a filesystem- and header-safe
// form: unsafe characters stripped, capped at 50 characters, surrounding
// whitespace trimmed. An empty result falls back to "video".
func SanitizeTitle(title string) string {
	safe := unsafeTitleChars.ReplaceAllString(title, "")
	if len(safe) > 50 {
		safe = safe[:50]
	}

	safe = strings.TrimSpace(safe)
	if safe == "" {
		return "video"
	}

	return safe
}
