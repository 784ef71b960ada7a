package epub

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// ContentView is a parsed XHTML/HTML content document. It is safe for
// concurrent readers once returned.
type ContentView struct {
	Path     string            // archive path of the document
	Document *goquery.Document // parsed document

	textOnce sync.Once
	text     string
}

// Block is a direct child element of the document body.
type Block struct {
	Tag      string
	Class    string
	ID       string
	Text     string // normalized visible text
	HasLink  bool
	HasImage bool
}

// Tagged is an element carrying a class, id or style attribute.
type Tagged struct {
	Tag   string
	Class string
	ID    string
	Style string
}

// Image is an image reference found in a content document.
type Image struct {
	Tag         string // img, image (SVG), object or embed
	Src         string // archive-absolute, "" when the reference was rejected
	Width       int    // 0 when unknown
	Height      int
	AspectRatio float64 // from an enclosing SVG viewBox, 0 when absent
}

// MaxSide returns the larger declared dimension.
func (img Image) MaxSide() int {
	return max(img.Width, img.Height)
}

// OpenContent reads and parses the content document at archivePath.
func (a *Archive) OpenContent(archivePath string) (*ContentView, error) {
	data, err := a.ReadFile(archivePath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, fmt.Errorf("failed to open content %s: %w", archivePath, ErrUnreadableContent)
		}
		return nil, fmt.Errorf("failed to read content %s: %w", archivePath, err)
	}
	return ParseContent(archivePath, data)
}

// ParseContent parses data as the content document at archivePath.
// Markup is decoded using the charset it declares, UTF-8 otherwise.
func ParseContent(archivePath string, data []byte) (*ContentView, error) {
	if bytes.IndexByte(data, '<') < 0 {
		return nil, fmt.Errorf("failed to parse %s: %w", archivePath, ErrUnreadableContent)
	}

	r, err := charset.NewReader(bytes.NewReader(stripBOM(data)), "")
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w: %v", archivePath, ErrUnreadableContent, err)
	}

	// Parse XHTML using goquery
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w: %v", archivePath, ErrUnreadableContent, err)
	}

	return &ContentView{Path: archivePath, Document: doc}, nil
}

// Text returns the visible body text: NBSP turned into spaces, whitespace
// runs collapsed, NFC-normalized.
func (v *ContentView) Text() string {
	v.textOnce.Do(func() {
		body := v.Document.Find("body").Clone()
		body.Find("script, style").Remove()
		v.text = NormalizeText(body.Text())
	})
	return v.text
}

// NormalizeText applies the text normalization used for all comparisons.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// Title returns the document's <title> text.
func (v *ContentView) Title() string {
	return NormalizeText(v.Document.Find("head title").First().Text())
}

// LinkCount returns the number of anchors with an href.
func (v *ContentView) LinkCount() int {
	return v.Document.Find("a[href]").Length()
}

// Blocks returns the direct children of body in document order.
func (v *ContentView) Blocks() []Block {
	var blocks []Block
	v.Document.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		blocks = append(blocks, Block{
			Tag:      goquery.NodeName(s),
			Class:    strings.TrimSpace(class),
			ID:       id,
			Text:     NormalizeText(s.Text()),
			HasLink:  s.Is("a") || s.Find("a").Length() > 0,
			HasImage: s.Is("img, svg, image, object, embed") || s.Find("img, svg, image, object, embed").Length() > 0,
		})
	})
	return blocks
}

// Tagged returns the elements inside body that carry class, id or style.
func (v *ContentView) Tagged() []Tagged {
	var out []Tagged
	v.Document.Find("body, body *").Each(func(_ int, s *goquery.Selection) {
		class, hasClass := s.Attr("class")
		id, hasID := s.Attr("id")
		style, hasStyle := s.Attr("style")
		if !hasClass && !hasID && !hasStyle {
			return
		}
		out = append(out, Tagged{Tag: goquery.NodeName(s), Class: class, ID: id, Style: style})
	})
	return out
}

// EpubTypes returns the epub:type tokens of body and its descendants.
func (v *ContentView) EpubTypes() []string {
	var types []string
	v.Document.Find("body, body *").Each(func(_ int, s *goquery.Selection) {
		if t, ok := s.Attr("epub:type"); ok {
			types = append(types, strings.Fields(t)...)
		}
	})
	return types
}

// Headings returns the normalized text of h1-h3 elements.
func (v *ContentView) Headings() []string {
	var out []string
	v.Document.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		out = append(out, NormalizeText(s.Text()))
	})
	return out
}

// Stylesheets returns the resolved targets of <link rel="stylesheet">.
func (v *ContentView) Stylesheets() []string {
	var out []string
	v.Document.Find("link").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !containsToken(rel, "stylesheet") {
			return
		}
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if target, _, err := ResolveTargetFrom(v.Path, href); err == nil {
			out = append(out, target)
		}
	})
	return out
}

// Anchors returns the href values of all anchors in document order.
func (v *ContentView) Anchors(sel *goquery.Selection) []string {
	if sel == nil {
		sel = v.Document.Selection
	}
	var out []string
	sel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href = strings.TrimSpace(href); href != "" {
			out = append(out, href)
		}
	})
	return out
}

// Images returns img, SVG image, object and embed references.
func (v *ContentView) Images() []Image {
	var out []Image
	v.Document.Find("img, image, object, embed").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		var src string
		switch tag {
		case "img", "embed":
			src, _ = s.Attr("src")
		case "object":
			typ, _ := s.Attr("type")
			if typ != "" && !strings.HasPrefix(typ, "image/") {
				return
			}
			src, _ = s.Attr("data")
		case "image":
			src = svgHref(s)
		}
		if src = strings.TrimSpace(src); src == "" {
			return
		}

		img := Image{Tag: tag}
		if target, _, err := ResolveTargetFrom(v.Path, src); err == nil {
			img.Src = target
		}
		img.Width, img.Height = dimensions(s)
		if tag == "image" {
			img.AspectRatio = viewBoxRatio(s.Closest("svg"))
		}
		out = append(out, img)
	})
	return out
}

// HasSVG reports whether the body contains an svg element.
func (v *ContentView) HasSVG() bool {
	return v.Document.Find("body svg").Length() > 0
}

// svgHref reads xlink:href (namespaced by the HTML parser) or a plain href.
func svgHref(s *goquery.Selection) string {
	for _, a := range s.Get(0).Attr {
		if a.Key == "href" && (a.Namespace == "xlink" || a.Namespace == "") {
			return a.Val
		}
		if a.Key == "xlink:href" {
			return a.Val
		}
	}
	return ""
}

var cssPx = regexp.MustCompile(`(?i)(?:^|;)\s*(width|height)\s*:\s*([0-9.]+)\s*px`)

func dimensions(s *goquery.Selection) (w, h int) {
	w = parseLength(s.AttrOr("width", ""))
	h = parseLength(s.AttrOr("height", ""))
	for _, m := range cssPx.FindAllStringSubmatch(s.AttrOr("style", ""), -1) {
		n := parseLength(m[2])
		if strings.EqualFold(m[1], "width") && w == 0 {
			w = n
		} else if strings.EqualFold(m[1], "height") && h == 0 {
			h = n
		}
	}
	return w, h
}

// parseLength accepts "1200" or "1200px"; percentages and other units yield 0.
func parseLength(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(s)), "px")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}

func viewBoxRatio(svg *goquery.Selection) float64 {
	if svg.Length() == 0 {
		return 0
	}
	vb, ok := svg.Attr("viewBox")
	if !ok {
		vb, ok = svg.Attr("viewbox")
	}
	if !ok {
		return 0
	}
	parts := strings.FieldsFunc(vb, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) != 4 {
		return 0
	}
	w, err1 := strconv.ParseFloat(parts[2], 64)
	h, err2 := strconv.ParseFloat(parts[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0
	}
	return w / h
}

func containsToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

// ContentCache memoizes parsed content documents of one archive.
type ContentCache struct {
	archive *Archive

	mu    sync.Mutex
	views map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	view *ContentView
	err  error
}

// NewContentCache returns an empty cache over a.
func NewContentCache(a *Archive) *ContentCache {
	return &ContentCache{archive: a, views: make(map[string]*cacheEntry)}
}

// Open returns the parsed view of archivePath, parsing it at most once.
func (c *ContentCache) Open(archivePath string) (*ContentView, error) {
	c.mu.Lock()
	e, ok := c.views[archivePath]
	if !ok {
		e = &cacheEntry{}
		c.views[archivePath] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.view, e.err = c.archive.OpenContent(archivePath)
	})
	return e.view, e.err
}

// Archive returns the archive the cache reads from.
func (c *ContentCache) Archive() *Archive {
	return c.archive
}
