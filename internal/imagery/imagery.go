// Package imagery classifies free-text imagery descriptors from the
// Tasking Manager API into a small fixed set of provider categories.
package imagery

import (
	"regexp"
	"strings"
)

const (
	// NotSpecified is returned for empty or whitespace-only input.
	NotSpecified = "Not specified"
	// Other is returned for any input no known provider pattern matches,
	// including raw tile URLs and tms[] specs.
	Other = "Other"
)

type providerPattern struct {
	re       *regexp.Regexp
	category string
}

// Patterns are tried in order and the first match wins, so a label
// containing both "custom" and "bing" classifies as Bing.
var providerPatterns = []providerPattern{
	{regexp.MustCompile(`(?i)bing`), "Bing"},
	{regexp.MustCompile(`(?i)esri|arcgis|world.imagery`), "Esri"},
	{regexp.MustCompile(`(?i)mapbox`), "Mapbox"},
	{regexp.MustCompile(`(?i)maxar|digitalglobe|vivid|securewatch`), "Maxar"},
	{regexp.MustCompile(`(?i)openaerialmap|oam|open.aerial`), "Custom"},
}

// customPattern is tried after the URL check: a tile URL that merely
// contains "custom" in its hostname is Other, not Custom.
var customPattern = regexp.MustCompile(`(?i)custom`)

func looksLikeTileSpec(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "tms[")
}

// Normalize maps a raw imagery value to a standard category.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NotSpecified
	}
	for _, p := range providerPatterns {
		if p.re.MatchString(trimmed) {
			return p.category
		}
	}
	if looksLikeTileSpec(trimmed) {
		return Other
	}
	if customPattern.MatchString(trimmed) {
		return "Custom"
	}
	return Other
}
