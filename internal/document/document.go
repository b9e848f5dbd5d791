// Package document renders persisted markdown documents and writes them
// atomically to the output directory.
package document

import (
	"fmt"
	"strings"
	"time"
)

// Meta carries the frontmatter fields of one persisted document.
type Meta struct {
	URL         string
	Title       string
	FetchedAt   time.Time
	Encoding    string
	TokenCount  int
	TokenScheme string
}

// Render produces the on-disk document: YAML-ish frontmatter followed by
// the markdown body.
func Render(meta Meta, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "url: %s\n", meta.URL)
	fmt.Fprintf(&b, "title: %s\n", sanitizeField(meta.Title))
	fmt.Fprintf(&b, "fetched_utc: %s\n", meta.FetchedAt.UTC().Format(time.RFC3339))
	encoding := meta.Encoding
	if encoding == "" {
		encoding = "utf-8"
	}
	fmt.Fprintf(&b, "encoding: %s\n", sanitizeField(encoding))
	fmt.Fprintf(&b, "token_count: %d\n", meta.TokenCount)
	if meta.TokenScheme != "" {
		fmt.Fprintf(&b, "token_scheme: %s\n", meta.TokenScheme)
	}
	b.WriteString("---\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

// sanitizeField keeps frontmatter line-oriented: embedded newlines would
// corrupt the header block.
func sanitizeField(v string) string {
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}
