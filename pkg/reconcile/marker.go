package reconcile

import (
	"regexp"
	"strings"
)

// MarkerKey names the Source id in destination back-reference markers.
const MarkerKey = "anytype_id"

// Marker returns the back-reference marker "#<key>:<id>".
func Marker(key, id string) string {
	return "#" + key + ":" + id
}

// BuildNotes appends the marker to the description, separated by a blank
// line. Without a description the notes are just the marker.
func BuildNotes(description *string, key, id string) string {
	marker := Marker(key, id)
	if description == nil || strings.TrimSpace(*description) == "" {
		return marker
	}
	return *description + "\n\n" + marker
}

// ExtractMarker returns the id of the first marker for key in text, or "".
func ExtractMarker(text, key string) string {
	m := markerPattern(key).FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractMarkerFromTags is ExtractMarker over a list of tags.
func ExtractMarkerFromTags(tags []string, key string) string {
	for _, tag := range tags {
		if id := ExtractMarker(tag, key); id != "" {
			return id
		}
	}
	return ""
}

var markerPatterns = map[string]*regexp.Regexp{
	MarkerKey: regexp.MustCompile(`#` + MarkerKey + `:(\S+)`),
}

func markerPattern(key string) *regexp.Regexp {
	if re, ok := markerPatterns[key]; ok {
		return re
	}
	return regexp.MustCompile(`#` + regexp.QuoteMeta(key) + `:(\S+)`)
}
