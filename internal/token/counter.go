// Package token counts tokens in converted documents. The scheme name is
// recorded alongside counts so a future change in counting stays detectable.
package token

import "strings"

// WhitespaceScheme identifies the whitespace-splitting counter.
const WhitespaceScheme = "whitespace-v1"

// WhitespaceCounter counts whitespace-delimited fields.
type WhitespaceCounter struct{}

// NewWhitespace constructs a WhitespaceCounter.
func NewWhitespace() WhitespaceCounter {
	return WhitespaceCounter{}
}

// Scheme returns the scheme identifier persisted with counts.
func (WhitespaceCounter) Scheme() string {
	return WhitespaceScheme
}

// Count returns the number of whitespace-separated fields in text.
func (WhitespaceCounter) Count(text string) int {
	return len(strings.Fields(text))
}
