package epub

import (
	"fmt"
	"path"
	"strings"
)

// TOCSource names where a table of contents was taken from.
type TOCSource string

const (
	TOCSourceNone  TOCSource = ""
	TOCSourceNav   TOCSource = "nav"   // EPUB 3 navigation document
	TOCSourceNCX   TOCSource = "ncx"   // EPUB 2 NCX
	TOCSourceHuman TOCSource = "human" // contents page in the spine
)

// TocEntry is one navigation target.
type TocEntry struct {
	Href   string // raw href as written
	Source string // archive path of the document the href was found in
	Path   string // resolved, fragment-free target
}

// TOC is the table of contents extracted from one source.
type TOC struct {
	Source      TOCSource
	Entries     []TocEntry
	Diagnostics []string
}

// Empty reports whether the TOC has no entries.
func (t TOC) Empty() bool {
	return len(t.Entries) == 0
}

// Targets returns the distinct target paths in first-seen order.
func (t TOC) Targets() []string {
	seen := make(map[string]bool, len(t.Entries))
	var out []string
	for _, e := range t.Entries {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		out = append(out, e.Path)
	}
	return out
}

// Contains reports whether any entry targets archivePath.
func (t TOC) Contains(archivePath string) bool {
	for _, e := range t.Entries {
		if e.Path == archivePath {
			return true
		}
	}
	return false
}

// TOCSources holds the result of every extraction strategy.
type TOCSources struct {
	Nav   TOC
	NCX   TOC
	Human TOC
}

// All returns the three sources in priority order.
func (s TOCSources) All() []TOC {
	return []TOC{s.Nav, s.NCX, s.Human}
}

// Primary returns the first non-empty source in priority order, or an
// empty TOC with TOCSourceNone.
func (s TOCSources) Primary() TOC {
	for _, toc := range s.All() {
		if !toc.Empty() {
			return toc
		}
	}
	return TOC{}
}

// ExtractTOC returns the first non-empty table of contents in priority
// order: navigation document, NCX, human-readable contents page. The result
// has TOCSourceNone when every strategy comes up empty.
func ExtractTOC(pkg *Package, cache *ContentCache) TOC {
	var diags []string
	for _, extract := range []func(*Package, *ContentCache) TOC{extractNav, extractNCX, extractHumanTOC} {
		toc := extract(pkg, cache)
		diags = append(diags, toc.Diagnostics...)
		if !toc.Empty() {
			toc.Diagnostics = diags
			return toc
		}
	}
	return TOC{Diagnostics: diags}
}

// ExtractTOCSources runs every strategy independently.
func ExtractTOCSources(pkg *Package, cache *ContentCache) TOCSources {
	return TOCSources{
		Nav:   extractNav(pkg, cache),
		NCX:   extractNCX(pkg, cache),
		Human: extractHumanTOC(pkg, cache),
	}
}

// extractHumanTOC collects anchors from spine documents named like a
// contents page.
func extractHumanTOC(pkg *Package, cache *ContentCache) TOC {
	toc := TOC{Source: TOCSourceHuman}
	for _, d := range pkg.ContentDocuments() {
		name := strings.ToLower(path.Base(d.Item.Path))
		if !strings.Contains(name, "toc") && !strings.Contains(name, "contents") {
			continue
		}
		view, err := cache.Open(d.Item.Path)
		if err != nil {
			toc.Diagnostics = append(toc.Diagnostics, fmt.Sprintf("contents page %s: %v", d.Item.Path, err))
			continue
		}
		toc.addAll(d.Item.Path, view.Anchors(nil))
	}
	return toc
}

// addAll resolves hrefs found in source and appends them as entries.
// Rejected or external hrefs are skipped with a diagnostic.
func (t *TOC) addAll(source string, hrefs []string) {
	for _, href := range hrefs {
		target, _, err := ResolveTargetFrom(source, href)
		if err != nil {
			t.Diagnostics = append(t.Diagnostics, fmt.Sprintf("%s: skipped %q: %v", source, href, err))
			continue
		}
		t.Entries = append(t.Entries, TocEntry{Href: href, Source: source, Path: target})
	}
}
