package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var htmlTag = regexp.MustCompile(`(?i)<(p|div|br|li|ul|ol|h[1-6]|html|body|span|strong|em|b|i|table)[\s/>]`)

// LooksLikeHTML reports whether pasted text carries HTML markup
func LooksLikeHTML(text string) bool {
	return htmlTag.MatchString(text)
}

// blockSelectors become line breaks so paragraph structure survives extraction
const blockSelectors = "p, div, li, h1, h2, h3, h4, h5, h6, tr, section, article"

// StripHTML reduces an HTML fragment to text. Scripts, styles and page chrome
// are removed; list items become "- " bullets and headings become markdown headings.
func StripHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, footer, header").Remove()

	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("# ")
	})
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return CleanText(doc.Text()), nil
}
