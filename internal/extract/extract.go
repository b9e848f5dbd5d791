// Package extract parses fetched HTML and isolates the primary textual
// content, dropping navigation, script, and style chrome.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// mainSelectors are tried in order; the first match wins, otherwise the
// whole body is used.
var mainSelectors = []string{"main", `[role="main"]`, "article", "#content", "#main"}

const boilerplateSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, button, input"

var boilerplateKeywords = []string{
	"cookie", "consent", "banner", "navbar", "nav-", "menu-",
	"pagination", "share", "signup", "signin", "login",
	"advert", "promo", "modal", "popup", "breadcrumb", "sidebar",
}

// Extractor implements harvest.Extractor using goquery.
type Extractor struct{}

// New constructs an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses the decoded document, picks the main content region, and
// strips boilerplate. The returned HTML is the input to conversion.
func (e *Extractor) Extract(html string) (harvest.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.ExtractedContent{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	title = strings.Join(strings.Fields(title), " ")

	var content *goquery.Selection
	for _, sel := range mainSelectors {
		if doc.Find(sel).Length() > 0 {
			content = doc.Find(sel).First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}
	if content.Length() == 0 {
		return harvest.ExtractedContent{}, fmt.Errorf("document has no body")
	}

	content.Find(boilerplateSelectors).Each(func(_ int, s *goquery.Selection) { s.Remove() })
	content.Find(`[role="navigation"], [role="banner"], [role="contentinfo"], [aria-modal]`).Each(
		func(_ int, s *goquery.Selection) { s.Remove() })
	content.Find("[class], [id]").Each(func(_ int, sel *goquery.Selection) {
		classVal, _ := sel.Attr("class")
		idVal, _ := sel.Attr("id")
		lower := strings.ToLower(classVal + " " + idVal)
		for _, kw := range boilerplateKeywords {
			if strings.Contains(lower, kw) {
				sel.Remove()
				break
			}
		}
	})

	html, err = content.Html()
	if err != nil {
		return harvest.ExtractedContent{}, fmt.Errorf("serialize content: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return harvest.ExtractedContent{}, fmt.Errorf("no textual content after sanitization")
	}

	return harvest.ExtractedContent{Title: title, ContentHTML: html}, nil
}
