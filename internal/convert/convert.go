// Package convert turns sanitized HTML into markdown and collects outbound
// links in encounter order.
package convert

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// DefaultMaxLinks caps how many links a single document may contribute.
const DefaultMaxLinks = 5000

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Converter implements harvest.Converter using html-to-markdown.
type Converter struct {
	maxLinks   int
	normalizer harvest.URLNormalizer
	conv       *md.Converter
}

// New constructs a Converter. maxLinks <= 0 selects DefaultMaxLinks.
func New(maxLinks int, normalizer harvest.URLNormalizer) *Converter {
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}
	if normalizer == nil {
		normalizer = harvest.DefaultNormalizer{}
	}
	return &Converter{
		maxLinks:   maxLinks,
		normalizer: normalizer,
		conv:       md.NewConverter("", true, nil),
	}
}

// Convert renders markdown and walks the document for links. Relative
// targets resolve against baseURL, the final fetch URL.
func (c *Converter) Convert(html string, baseURL string) (harvest.Conversion, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.Conversion{}, fmt.Errorf("parse content: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return harvest.Conversion{}, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	links, truncated := c.collectLinks(doc, base)

	markdown, err := c.conv.ConvertString(html)
	if err != nil {
		return harvest.Conversion{}, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = blankRuns.ReplaceAllString(markdown, "\n\n")
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return harvest.Conversion{}, fmt.Errorf("conversion produced no text")
	}

	return harvest.Conversion{
		Markdown:       markdown,
		Links:          links,
		LinksTruncated: truncated,
	}, nil
}

func (c *Converter) collectLinks(doc *goquery.Document, base *url.URL) ([]harvest.Link, bool) {
	var links []harvest.Link
	truncated := false
	seen := make(map[string]struct{})

	add := func(raw string, kind harvest.LinkKind) {
		if truncated {
			return
		}
		resolved, key, ok := c.resolve(raw, base, kind)
		if !ok {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		if len(links) >= c.maxLinks {
			truncated = true
			return
		}
		seen[key] = struct{}{}
		links = append(links, harvest.Link{URL: resolved, Kind: kind})
	}

	// Single pass in document order so anchors and images interleave the way
	// they appear on the page.
	doc.Find("a[href], img[src]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && goquery.NodeName(s) == "a" {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "mailto:") {
				add(strings.TrimSpace(href), harvest.LinkEmail)
			} else {
				add(href, harvest.LinkHyperlink)
			}
			return
		}
		if src, ok := s.Attr("src"); ok {
			add(src, harvest.LinkImage)
		}
	})

	return links, truncated
}

// resolve validates and canonicalizes one link target. Fragment-only,
// query-only, and javascript: targets are skipped.
func (c *Converter) resolve(raw string, base *url.URL, kind harvest.LinkKind) (resolved, key string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "?") {
		return "", "", false
	}
	if strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return "", "", false
	}

	if kind == harvest.LinkEmail {
		addr := strings.TrimPrefix(raw, "mailto:")
		addr = strings.TrimPrefix(addr, "MAILTO:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
		if addr == "" || !strings.Contains(addr, "@") {
			return "", "", false
		}
		return "mailto:" + addr, "mailto:" + strings.ToLower(addr), true
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", "", false
	}
	resolved = abs.String()
	if normalized, err := c.normalizer.Normalize(resolved); err == nil {
		key = normalized
	} else {
		key = resolved
	}
	return resolved, key, true
}
