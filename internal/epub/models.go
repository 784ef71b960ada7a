package epub

import (
	"path"
	"strings"
)

// Package represents the parsed package document (OPF) of one archive.
// It is built once by LoadPackage and must be treated as read-only afterwards.
type Package struct {
	Path           string                  // package document path within the archive
	BasePath       string                  // directory of the package document ("" for the root)
	Version        string                  // package version attribute, e.g. "2.0", "3.0"
	Namespace      string                  // detected package vocabulary namespace
	Metadata       Metadata                // subset of the metadata section
	Manifest       map[string]ManifestItem // id -> item
	ManifestOrder  []string                // manifest ids in document order
	Spine          []SpineItem
	TocID          string // spine toc attribute (EPUB 2 NCX id)
	Guide          []GuideReference
	GuideCoverHref string // href of the first guide reference with type="cover"
	Diagnostics    []string
}

// Metadata represents the parts of the metadata section the classifiers use
type Metadata struct {
	Title    string
	Creators []string
	CoverID  string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string // as written in the package document
	Path       string // archive-absolute, empty when the href was rejected
	MediaType  string
	Properties []string
}

// HasProperty reports whether the item carries the given properties token.
func (m ManifestItem) HasProperty(token string) bool {
	for _, p := range m.Properties {
		if p == token {
			return true
		}
	}
	return false
}

// IsContent reports whether the item is an XHTML/HTML content document.
func (m ManifestItem) IsContent() bool {
	return isContentMediaType(m.MediaType)
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference represents a reference in the EPUB 2 guide
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

// SpineDocument is a spine entry joined with its manifest item.
type SpineDocument struct {
	Index  int // position in Package.Spine
	Item   ManifestItem
	Linear bool
}

// SpineDocuments returns the spine entries that resolve to a manifest item
// with a usable archive path, in reading order. Non-linear entries are included.
func (p *Package) SpineDocuments() []SpineDocument {
	docs := make([]SpineDocument, 0, len(p.Spine))
	for i, ref := range p.Spine {
		item, ok := p.Manifest[ref.IDRef]
		if !ok || item.Path == "" {
			continue
		}
		docs = append(docs, SpineDocument{Index: i, Item: item, Linear: ref.Linear})
	}
	return docs
}

// ContentDocuments returns the spine documents that are XHTML/HTML. Items with an
// unhelpful media type are accepted when the file extension says they are markup.
func (p *Package) ContentDocuments() []SpineDocument {
	var docs []SpineDocument
	for _, d := range p.SpineDocuments() {
		if d.Item.IsContent() || hasContentExtension(d.Item.Path) {
			docs = append(docs, d)
		}
	}
	return docs
}

// LinearContent returns up to n linear XHTML/HTML spine documents from the start
// of the reading order. linear="no" entries are skipped only here.
func (p *Package) LinearContent(n int) []SpineDocument {
	var docs []SpineDocument
	for _, d := range p.SpineDocuments() {
		if !d.Linear || !d.Item.IsContent() {
			continue
		}
		docs = append(docs, d)
		if len(docs) == n {
			break
		}
	}
	return docs
}

// ItemsInOrder returns manifest items in document order.
func (p *Package) ItemsInOrder() []ManifestItem {
	items := make([]ManifestItem, 0, len(p.ManifestOrder))
	for _, id := range p.ManifestOrder {
		if item, ok := p.Manifest[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// ItemByPath finds the manifest item whose resolved path equals archivePath.
func (p *Package) ItemByPath(archivePath string) (ManifestItem, bool) {
	for _, id := range p.ManifestOrder {
		if item := p.Manifest[id]; item.Path == archivePath {
			return item, true
		}
	}
	return ManifestItem{}, false
}

func isContentMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	return mt == "application/xhtml+xml" || mt == "text/html"
}

func hasContentExtension(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
