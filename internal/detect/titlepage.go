package detect

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/epubscan/internal/epub"
	"github.com/yuanying/epubscan/internal/scoring"
)

var titlepageFilenameTokens = []string{"titlepage", "title_page", "titlepg", "halftitle"}

// TitlepageOptions tunes candidate selection for titlepage detection.
type TitlepageOptions struct {
	Candidates     int // leading linear content documents considered
	LargeImageSide int // pixels; a longer side marks an image as large
	ShortText      int // characters; shorter bodies count as short

	// ImageSize reports the pixel size of an image entry. When nil, only
	// width/height attributes are consulted.
	ImageSize func(archivePath string) (width, height int, err error)
}

// DefaultTitlepageOptions returns the stock titlepage settings.
func DefaultTitlepageOptions() TitlepageOptions {
	return TitlepageOptions{Candidates: 4, LargeImageSide: 1200, ShortText: 300}
}

// TitlepageTable returns the default titlepage table.
func TitlepageTable(opts TitlepageOptions) scoring.Table[*Page] {
	short := opts.ShortText
	if short <= 0 {
		short = 300
	}
	return scoring.Table[*Page]{
		Name: "titlepage",
		Signals: []scoring.Signal[*Page]{
			{Name: "filename", Weight: 6, Match: func(p *Page) bool { return containsAny(p.Name, titlepageFilenameTokens) }},
			{Name: "epub-type", Weight: 6, Match: hasTitlepageType},
			{Name: "title-text", Weight: 5, Match: containsTitle},
			{Name: "title-heading", Weight: 2, Match: headingIsTitle},
			{Name: "author-text", Weight: 2, Match: containsCreator},
			{Name: "css-title", Weight: 3, Match: hasTitleClass},
			{Name: "svg-wrapper", Weight: 1, Match: isSVGWrapper},
			{Name: "short-text", Weight: 1, Match: func(p *Page) bool { n := p.TextLen(); return n > 0 && n < short }},
			{Name: "cover-like", Weight: -4, Match: func(p *Page) bool {
				return p.LargeImage && p.TextLen() < short && !containsTitle(p)
			}},
		},
		Threshold: 6,
		Margin:    1.5,
	}
}

func hasTitlepageType(p *Page) bool {
	if p.View == nil {
		return false
	}
	for _, t := range p.View.EpubTypes() {
		if strings.Contains(strings.ToLower(t), "titlepage") {
			return true
		}
	}
	return false
}

func containsTitle(p *Page) bool {
	return p.Title != "" && strings.Contains(p.Lower, p.Title)
}

func headingIsTitle(p *Page) bool {
	if p.View == nil || p.Title == "" {
		return false
	}
	for _, h := range p.View.Headings() {
		if strings.ToLower(h) == p.Title {
			return true
		}
	}
	return false
}

func containsCreator(p *Page) bool {
	for _, c := range p.Creators {
		if c != "" && strings.Contains(p.Lower, c) {
			return true
		}
	}
	return false
}

func hasTitleClass(p *Page) bool {
	if p.View == nil {
		return false
	}
	for _, t := range p.View.Tagged() {
		if strings.Contains(strings.ToLower(t.Class), "title") || strings.Contains(strings.ToLower(t.ID), "title") {
			return true
		}
	}
	return false
}

// isSVGWrapper reports a body whose only element is an svg, possibly
// inside a single wrapping div.
func isSVGWrapper(p *Page) bool {
	if p.View == nil {
		return false
	}
	children := p.View.Document.Find("body").Children()
	for children.Length() == 1 {
		if goquery.NodeName(children) == "svg" {
			return true
		}
		children = children.Children()
	}
	return false
}

// TitlepageCandidates returns the first opts.Candidates linear content
// documents with the book title, creators and image size attached.
func TitlepageCandidates(pkg *epub.Package, cache *epub.ContentCache, opts TitlepageOptions, logger *slog.Logger) []*Page {
	n := opts.Candidates
	if n <= 0 {
		n = 4
	}

	title := strings.ToLower(epub.NormalizeText(pkg.Metadata.Title))
	var creators []string
	for _, c := range pkg.Metadata.Creators {
		creators = append(creators, strings.ToLower(epub.NormalizeText(c)))
	}

	var pages []*Page
	for _, d := range pkg.LinearContent(n) {
		view, err := cache.Open(d.Item.Path)
		if err != nil {
			logger.Debug("titlepage candidate unreadable", "path", d.Item.Path, "error", err)
		}
		p := newPage(len(pages)+1, d.Item.Path, view)
		p.Title = title
		p.Creators = creators
		p.LargeImage = hasLargeImage(view, opts, logger)
		pages = append(pages, p)
	}
	return pages
}

func hasLargeImage(view *epub.ContentView, opts TitlepageOptions, logger *slog.Logger) bool {
	if view == nil {
		return false
	}
	limit := opts.LargeImageSide
	if limit <= 0 {
		limit = 1200
	}
	for _, img := range view.Images() {
		if img.MaxSide() > 0 {
			if img.MaxSide() > limit {
				return true
			}
			continue
		}
		if opts.ImageSize == nil || img.Src == "" {
			continue
		}
		w, h, err := opts.ImageSize(img.Src)
		if err != nil {
			logger.Debug("image size unavailable", "path", img.Src, "error", err)
			continue
		}
		if max(w, h) > limit {
			return true
		}
	}
	return false
}

// FindTitlepage locates the titlepage among the leading documents.
func FindTitlepage(pkg *epub.Package, cache *epub.ContentCache, table scoring.Table[*Page], opts TitlepageOptions, logger *slog.Logger) Finding {
	return Classify(TitlepageCandidates(pkg, cache, opts, logger), table)
}

// DoubleTitlepage describes the first two linear content documents.
type DoubleTitlepage struct {
	First, Second                 string
	FirstHasImage, SecondHasImage bool
	Skipped                       bool // fewer than two documents
}

// Fired reports whether both leading documents carry an image.
func (d DoubleTitlepage) Fired() bool {
	return !d.Skipped && d.FirstHasImage && d.SecondHasImage
}

// CheckDoubleTitlepage checks whether the first two linear content documents
// both contain an image or svg, which usually means a duplicated titlepage.
func CheckDoubleTitlepage(pkg *epub.Package, cache *epub.ContentCache) DoubleTitlepage {
	docs := pkg.LinearContent(2)
	if len(docs) < 2 {
		return DoubleTitlepage{Skipped: true}
	}
	return DoubleTitlepage{
		First:          docs[0].Item.Path,
		Second:         docs[1].Item.Path,
		FirstHasImage:  pageHasImage(cache, docs[0].Item.Path),
		SecondHasImage: pageHasImage(cache, docs[1].Item.Path),
	}
}

func pageHasImage(cache *epub.ContentCache, archivePath string) bool {
	view, err := cache.Open(archivePath)
	if err != nil {
		return false
	}
	return view.Document.Find("img, image, svg").Length() > 0
}
