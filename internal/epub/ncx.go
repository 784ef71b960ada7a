package epub

import (
	"fmt"
	"strings"
)

const ncxMediaType = "application/x-dtbncx+xml"

// NCXDocument returns the manifest item named by the spine toc attribute,
// else the first item with the NCX media type.
func (p *Package) NCXDocument() (ManifestItem, bool) {
	if p.TocID != "" {
		if item, ok := p.Manifest[p.TocID]; ok && item.Path != "" {
			return item, true
		}
	}
	for _, item := range p.ItemsInOrder() {
		if strings.EqualFold(item.MediaType, ncxMediaType) && item.Path != "" {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// extractNCX reads content@src targets under navMap, or every content
// element when navMap yields none.
func extractNCX(pkg *Package, cache *ContentCache) TOC {
	toc := TOC{Source: TOCSourceNCX}
	item, ok := pkg.NCXDocument()
	if !ok {
		return toc
	}

	data, err := cache.Archive().ReadFile(item.Path)
	if err != nil {
		toc.Diagnostics = append(toc.Diagnostics, fmt.Sprintf("ncx: %v", err))
		return toc
	}

	doc, perr := parseLenientXML(data)
	if perr != nil {
		toc.Diagnostics = append(toc.Diagnostics, fmt.Sprintf("ncx recovered from parse error: %v", perr))
	}

	var contents []*xnode
	if navMap := doc.find("", "navMap"); navMap != nil {
		contents = navMap.findAll("", "content")
	}
	if len(contents) == 0 {
		contents = doc.findAll("", "content")
	}

	hrefs := make([]string, 0, len(contents))
	for _, c := range contents {
		if src := strings.TrimSpace(c.attr("src")); src != "" {
			hrefs = append(hrefs, src)
		}
	}
	toc.addAll(item.Path, hrefs)
	return toc
}
