package epub

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NavDocument returns the first manifest item declaring the "nav" property.
func (p *Package) NavDocument() (ManifestItem, bool) {
	for _, item := range p.ItemsInOrder() {
		if item.HasProperty("nav") && item.Path != "" {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// extractNav reads the EPUB 3 navigation document. The toc nav is preferred,
// then the first nav, then every anchor in the document.
func extractNav(pkg *Package, cache *ContentCache) TOC {
	toc := TOC{Source: TOCSourceNav}
	item, ok := pkg.NavDocument()
	if !ok {
		return toc
	}

	view, err := cache.Open(item.Path)
	if err != nil {
		toc.Diagnostics = append(toc.Diagnostics, fmt.Sprintf("navigation document: %v", err))
		return toc
	}

	navs := view.Document.Find("nav")
	var chosen *goquery.Selection
	navs.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		epubType, _ := s.Attr("epub:type")
		id, _ := s.Attr("id")
		if containsToken(epubType, "toc") || strings.Contains(strings.ToLower(id), "toc") {
			chosen = s
			return false
		}
		return true
	})
	if chosen == nil && navs.Length() > 0 {
		chosen = navs.First()
	}

	toc.addAll(item.Path, view.Anchors(chosen))
	return toc
}
