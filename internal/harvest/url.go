package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// URLNormalizer produces the canonical form of a URL used as the
// deduplication key. Normalization policy is pluggable; DefaultNormalizer is
// the documented default.
type URLNormalizer interface {
	Normalize(rawURL string) (string, error)
}

// DefaultNormalizer trims surrounding whitespace, lowercases the scheme and
// host, removes default ports, strips the fragment, and sorts query
// parameters. Paths and trailing slashes are preserved as-is.
type DefaultNormalizer struct{}

// Normalize standardizes a URL to avoid duplicates.
func (DefaultNormalizer) Normalize(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("empty url")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", trimmed)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	// Encode() sorts query parameters by key.
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// ParseSubmission splits raw submitted text into URL candidates, one per
// line, trimming whitespace and dropping empty lines.
func ParseSubmission(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
