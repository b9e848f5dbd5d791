package harvest

import "unicode/utf8"

// MaxPreviewBytes caps the converted-content preview carried on progress
// messages and surfaced through the session view.
const MaxPreviewBytes = 40960

const truncatedMarker = "\n.[truncated]"

// Preview caps markdown at MaxPreviewBytes. Truncation backs up to a rune
// boundary before appending the marker so the view never shows a torn rune.
func Preview(markdown string) string {
	if len(markdown) <= MaxPreviewBytes {
		return markdown
	}
	end := MaxPreviewBytes
	for end > 0 && !utf8.RuneStart(markdown[end]) {
		end--
	}
	return markdown[:end] + truncatedMarker
}
