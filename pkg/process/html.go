package process

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"sitemirror/pkg/models"
)

// Elements whose legacy background attribute names an image
var backgroundTags = map[string]bool{
	"table": true,
	"tr":    true,
	"td":    true,
	"th":    true,
}

// ScrapeHTML rewrites src, href and table background attributes plus inline CSS
// (style elements and style attributes). Paths are reported in document order.
// When nothing was rewritten the input text is returned byte for byte.
func (s *Scraper) ScrapeHTML(text, currentPath string) models.RewriteResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return models.RewriteResult{Body: text}
	}

	var (
		paths   []string
		changed bool
	)
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		node := sel.Get(0)
		for i := range node.Attr {
			attr := &node.Attr[i]
			if attr.Namespace != "" {
				continue
			}
			switch attr.Key {
			case "src", "href":
			case "background":
				if !backgroundTags[node.Data] {
					continue
				}
			case "style":
				body, found := s.rewriteCSS(attr.Val, currentPath)
				paths = append(paths, found...)
				if body != attr.Val {
					attr.Val = body
					changed = true
				}
				continue
			default:
				continue
			}

			discovered, replacement, ok := s.rewrite(currentPath, attr.Val)
			if !ok {
				continue
			}
			paths = append(paths, discovered)
			if replacement != attr.Val {
				attr.Val = replacement
				changed = true
			}
		}

		if node.Data == "style" {
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.TextNode {
					continue
				}
				body, found := s.rewriteCSS(c.Data, currentPath)
				paths = append(paths, found...)
				if body != c.Data {
					c.Data = body
					changed = true
				}
			}
		}
	})

	if !changed {
		return models.RewriteResult{Body: text, Paths: paths}
	}
	rendered, err := doc.Html()
	if err != nil {
		return models.RewriteResult{Body: text, Paths: paths}
	}
	return models.RewriteResult{Body: rendered, Paths: paths}
}
