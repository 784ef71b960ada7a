package anomaly

import (
	"errors"
	"log/slog"
	"path"
	"strings"

	"github.com/yuanying/epubscan/internal/epub"
)

// Segmentation verdicts.
const (
	VerdictNoSegmentation  = "no_toc_and_no_segmentation_signal"
	VerdictTOCCollapse     = "toc_collapses_to_single_file"
	VerdictNoSpineDocument = "no_spine_xhtml_files"
	VerdictRepetitiveDOM   = "repetitive_dom"
)

// Segmentation is the outcome of ScanSegmentation.
type Segmentation struct {
	SpineFiles []string
	Sizes      []int64 // entry sizes aligned with SpineFiles, 0 when missing
	Flat       bool
	TOCSource  epub.TOCSource
	MachineTOC bool // the TOC came from a nav document or NCX
	Collapse   bool
	Middle     string // document checked for headings
	Headings   bool
	Largest    string // document checked for repetition
	Repetition Repetition
	Verdicts   []string
}

// ScanSegmentation decides whether chapter boundaries can be recovered
// from the spine, the TOC, or headings.
func ScanSegmentation(pkg *epub.Package, cache *epub.ContentCache, toc epub.TOC, cfg Config, logger *slog.Logger) Segmentation {
	var s Segmentation
	for _, d := range pkg.ContentDocuments() {
		size, _ := cache.Archive().Size(d.Item.Path)
		s.SpineFiles = append(s.SpineFiles, d.Item.Path)
		s.Sizes = append(s.Sizes, size)
	}
	if len(s.SpineFiles) == 0 {
		s.Verdicts = []string{VerdictNoSpineDocument}
		return s
	}

	s.Flat = FlatSpine(s.Sizes, cfg)
	s.TOCSource = toc.Source
	s.MachineTOC = toc.Source == epub.TOCSourceNav || toc.Source == epub.TOCSourceNCX
	s.Collapse = TOCCollapse(toc.Targets(), s.SpineFiles, cfg)

	s.Middle = s.SpineFiles[len(s.SpineFiles)/2]
	if view, err := cache.Open(s.Middle); err == nil {
		s.Headings = HasHeadings(view)
	} else {
		logger.Debug("middle document unreadable", "path", s.Middle, "error", err)
	}

	largest := 0
	for i, size := range s.Sizes {
		if size > s.Sizes[largest] {
			largest = i
		}
	}
	s.Largest = s.SpineFiles[largest]
	if view, err := cache.Open(s.Largest); err == nil {
		s.Repetition = DOMRepetition(view.Blocks(), cfg)
	} else {
		logger.Debug("largest document unreadable", "path", s.Largest, "error", err)
	}

	if !s.MachineTOC && s.Flat && !s.Headings {
		s.Verdicts = append(s.Verdicts, VerdictNoSegmentation)
	}
	if s.Collapse && s.Flat {
		s.Verdicts = append(s.Verdicts, VerdictTOCCollapse)
	}
	if s.Repetition.Fired {
		s.Verdicts = append(s.Verdicts, VerdictRepetitiveDOM)
	}
	return s
}

// EmptyBlockFinding is one document flagged by ScanEmptyBlocks.
type EmptyBlockFinding struct {
	Path string
	EmptyRuns
}

// ScanEmptyBlocks runs EmptyBlockRuns over every spine content document and
// returns the ones that fired.
func ScanEmptyBlocks(pkg *epub.Package, cache *epub.ContentCache, cfg Config, logger *slog.Logger) []EmptyBlockFinding {
	var findings []EmptyBlockFinding
	for _, d := range pkg.ContentDocuments() {
		view, err := cache.Open(d.Item.Path)
		if err != nil {
			logger.Debug("skipping unreadable document", "path", d.Item.Path, "error", err)
			continue
		}
		if r := EmptyBlockRuns(view.Blocks(), cfg); r.Fired {
			findings = append(findings, EmptyBlockFinding{Path: d.Item.Path, EmptyRuns: r})
		}
	}
	return findings
}

// DeclaresCSS reports whether the manifest lists a stylesheet.
func DeclaresCSS(pkg *epub.Package) bool {
	for _, item := range pkg.ItemsInOrder() {
		if strings.EqualFold(item.MediaType, "text/css") || strings.HasSuffix(strings.ToLower(item.Href), ".css") {
			return true
		}
	}
	return false
}

// ScanStylesheets lists the spine content documents that link no
// stylesheet although the book ships one.
func ScanStylesheets(pkg *epub.Package, cache *epub.ContentCache, logger *slog.Logger) []string {
	if !DeclaresCSS(pkg) {
		return nil
	}
	var docs []string
	links := make(map[string][]string)
	for _, d := range pkg.ContentDocuments() {
		view, err := cache.Open(d.Item.Path)
		if err != nil {
			logger.Debug("skipping unreadable document", "path", d.Item.Path, "error", err)
			continue
		}
		docs = append(docs, d.Item.Path)
		links[d.Item.Path] = view.Stylesheets()
	}
	return MissingStylesheets(true, docs, links)
}

// CoverSize is the outcome of ScanCoverSize.
type CoverSize struct {
	Cover *epub.CoverInfo // nil when no cover was found
	Bytes int64
	Fired bool
}

// ScanCoverSize measures the detected cover image entry.
func ScanCoverSize(pkg *epub.Package, a *epub.Archive, cfg Config) CoverSize {
	c := CoverSize{Cover: pkg.DetectCover()}
	if c.Cover == nil {
		return c
	}
	c.Bytes, _ = a.Size(c.Cover.Path)
	c.Fired = OversizedCover(c.Bytes, cfg)
	return c
}

// textMediaType reports whether a manifest item is searched for watermarks.
func textMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.HasPrefix(mt, "text/") ||
		mt == "application/xhtml+xml" ||
		mt == "image/svg+xml" ||
		mt == "application/x-dtbncx+xml"
}

// WatermarkHit is one marker found by ScanWatermarks.
type WatermarkHit struct {
	Marker string `json:"marker" yaml:"marker"`
	Count  int    `json:"count" yaml:"count"`
}

// ScanWatermarks counts the configured markers over the text-like manifest
// documents. Documents that do not parse as markup are searched raw.
func ScanWatermarks(pkg *epub.Package, cache *epub.ContentCache, cfg Config, logger *slog.Logger) []WatermarkHit {
	if len(cfg.Watermarks) == 0 {
		return nil
	}
	var texts []string
	for _, item := range pkg.ItemsInOrder() {
		if item.Path == "" || !textMediaType(item.MediaType) {
			continue
		}
		view, err := cache.Open(item.Path)
		if err == nil {
			texts = append(texts, view.Text())
			continue
		}
		if !errors.Is(err, epub.ErrUnreadableContent) || !cache.Archive().Has(item.Path) {
			logger.Debug("skipping document", "path", item.Path, "error", err)
			continue
		}
		raw, err := cache.Archive().ReadFile(item.Path)
		if err != nil {
			logger.Debug("skipping document", "path", item.Path, "error", err)
			continue
		}
		texts = append(texts, string(raw))
	}

	found := Watermarks(texts, cfg.Watermarks)
	hits := make([]WatermarkHit, 0, len(found))
	for _, m := range sortedKeys(found) {
		hits = append(hits, WatermarkHit{Marker: m, Count: found[m]})
	}
	return hits
}

// ScanPNG measures the PNG entries of the archive.
func ScanPNG(a *epub.Archive, cfg Config) PNGUsage {
	sizes := make(map[string]int64)
	for _, name := range a.Names() {
		if strings.ToLower(path.Ext(name)) != ".png" {
			continue
		}
		sizes[name], _ = a.Size(name)
	}
	return PNGWeight(sizes, cfg)
}
