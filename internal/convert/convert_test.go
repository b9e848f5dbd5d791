package convert

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

const base = "http://site.test/docs/page"

func TestConvertProducesMarkdown(t *testing.T) {
	t.Parallel()

	html := `<h1>Heading</h1><p>Some <strong>bold</strong> prose.</p>`
	got, err := New(0, nil).Convert(html, base)
	require.NoError(t, err)
	require.Contains(t, got.Markdown, "# Heading")
	require.Contains(t, got.Markdown, "**bold**")
	require.False(t, got.LinksTruncated)
}

func TestConvertCollectsLinksInEncounterOrder(t *testing.T) {
	t.Parallel()

	html := `<p>
<a href="http://a.test/one">one</a>
<img src="/images/pic.png">
<a href="relative/two">two</a>
<a href="mailto:Person@Example.com?subject=hi">mail</a>
</p>`

	got, err := New(0, nil).Convert(html, base)
	require.NoError(t, err)
	require.Equal(t, []harvest.Link{
		{URL: "http://a.test/one", Kind: harvest.LinkHyperlink},
		{URL: "http://site.test/images/pic.png", Kind: harvest.LinkImage},
		{URL: "http://site.test/docs/relative/two", Kind: harvest.LinkHyperlink},
		{URL: "mailto:Person@Example.com", Kind: harvest.LinkEmail},
	}, got.Links)
}

func TestConvertSkipsFragmentQueryAndJavascript(t *testing.T) {
	t.Parallel()

	html := `<p>
<a href="#top">top</a>
<a href="?page=2">next</a>
<a href="javascript:void(0)">noop</a>
<a href="http://a.test/real">real</a>
</p>`

	got, err := New(0, nil).Convert(html, base)
	require.NoError(t, err)
	require.Len(t, got.Links, 1)
	require.Equal(t, "http://a.test/real", got.Links[0].URL)
}

func TestConvertDeduplicatesByNormalizedURL(t *testing.T) {
	t.Parallel()

	html := `<p>
<a href="http://a.test/x">first</a>
<a href="HTTP://A.TEST:80/x#section">same</a>
<a href="http://a.test/y">other</a>
</p>`

	got, err := New(0, nil).Convert(html, base)
	require.NoError(t, err)
	require.Len(t, got.Links, 2)
	require.Equal(t, "http://a.test/x", got.Links[0].URL)
	require.Equal(t, "http://a.test/y", got.Links[1].URL)
}

func TestConvertEnforcesLinkCap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 10 {
		fmt.Fprintf(&b, `<a href="http://a.test/%d">l</a>`, i)
	}
	b.WriteString("<p>text</p>")

	got, err := New(3, nil).Convert(b.String(), base)
	require.NoError(t, err)
	require.Len(t, got.Links, 3)
	require.True(t, got.LinksTruncated)
}

func TestConvertEmptyContentFails(t *testing.T) {
	t.Parallel()

	_, err := New(0, nil).Convert("<div></div>", base)
	require.Error(t, err)
}

func TestConvertInvalidBaseURLFails(t *testing.T) {
	t.Parallel()

	_, err := New(0, nil).Convert("<p>x</p>", "http://bad url with spaces")
	require.Error(t, err)
}
