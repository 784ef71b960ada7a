package detect

import (
	"log/slog"
	"strings"

	"github.com/yuanying/epubscan/internal/epub"
	"github.com/yuanying/epubscan/internal/scoring"
)

// LegalPhrases are boilerplate phrases typical of copyright pages.
var LegalPhrases = []string{
	"all rights reserved",
	"published by",
	"library of congress",
	"isbn",
	"printed in",
	"first published",
	"first edition",
	"cataloging-in-publication",
	"cataloguing in publication",
	"no part of this",
	"reproduction prohibited",
	"without written permission",
	"imprint of",
	"division of",
	"trade paperback",
	"hardcover",
	"originally published",
}

var copyrightFilenameTokens = []string{"copyright", "copyrights", "legal", "rights", "colophon"}

// CopyrightTable returns the default copyright-page table.
func CopyrightTable() scoring.Table[*Page] {
	signals := []scoring.Signal[*Page]{
		{Name: "filename", Weight: 5, Match: func(p *Page) bool { return containsAny(p.Stem, copyrightFilenameTokens) }},
		{Name: "glyph", Weight: 4, Match: func(p *Page) bool { return strings.Contains(p.Text, "©") }},
		{Name: "word", Weight: 3, Match: func(p *Page) bool { return strings.Contains(p.Lower, "copyright") }},
	}
	for _, phrase := range LegalPhrases {
		signals = append(signals, scoring.Signal[*Page]{
			Name:   "phrase:" + phrase,
			Weight: 2,
			Match:  func(p *Page) bool { return strings.Contains(p.Lower, phrase) },
		})
	}
	signals = append(signals, scoring.Signal[*Page]{Name: "density", Weight: 3, Match: denseLegalText})

	return scoring.Table[*Page]{
		Name:      "copyright",
		Signals:   signals,
		Threshold: 8,
		Margin:    1.5,
	}
}

// denseLegalText reports whether legal phrases are packed into little text:
// matched / max(words/50, 1) >= 1.5.
func denseLegalText(p *Page) bool {
	matched := 0
	for _, phrase := range LegalPhrases {
		if strings.Contains(p.Lower, phrase) {
			matched++
		}
	}
	if p.Words == 0 || matched == 0 {
		return false
	}
	return float64(matched)/max(float64(p.Words)/50, 1) >= 1.5
}

// CopyrightCandidates returns the spine documents with an XHTML/HTML media
// type that exist in the archive. Documents that fail to parse stay in the
// list with empty text so their filename can still score.
func CopyrightCandidates(pkg *epub.Package, cache *epub.ContentCache, logger *slog.Logger) []*Page {
	var pages []*Page
	for _, d := range pkg.SpineDocuments() {
		if !d.Item.IsContent() || !cache.Archive().Has(d.Item.Path) {
			continue
		}
		view, err := cache.Open(d.Item.Path)
		if err != nil {
			logger.Debug("copyright candidate unreadable", "path", d.Item.Path, "error", err)
		}
		pages = append(pages, newPage(len(pages)+1, d.Item.Path, view))
	}
	return pages
}

// Finding is a classification result tied back to its candidates.
type Finding struct {
	scoring.Result
	Path       string // winning document, "" unless Found
	Position   int    // 1-based candidate position of Path
	Candidates []string
}

// Total returns the number of candidates considered.
func (f Finding) Total() int {
	return len(f.Candidates)
}

// Classify runs table over pages and resolves the winner.
func Classify(pages []*Page, table scoring.Table[*Page]) Finding {
	res := scoring.Classify(pages, table)
	f := Finding{Result: res, Candidates: Paths(pages)}
	if res.Outcome == scoring.Found {
		f.Path = pages[res.Index].Path
		f.Position = pages[res.Index].Position
	}
	return f
}

// FindCopyright locates the copyright page.
func FindCopyright(pkg *epub.Package, cache *epub.ContentCache, table scoring.Table[*Page], logger *slog.Logger) Finding {
	return Classify(CopyrightCandidates(pkg, cache, logger), table)
}

// CopyrightInTOC lists the TOC sources whose targets include the page at
// archivePath, in priority order.
func CopyrightInTOC(sources epub.TOCSources, archivePath string) []epub.TOCSource {
	var found []epub.TOCSource
	for _, toc := range sources.All() {
		if toc.Contains(archivePath) {
			found = append(found, toc.Source)
		}
	}
	return found
}
