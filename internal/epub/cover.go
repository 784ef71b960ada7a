package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Path            string // archive-absolute
	MediaType       string
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

// DetectCover detects the cover image from the package using multiple methods.
// Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" (matched to image manifest items)
//  4. filename pattern (basename contains "cover", case-insensitive, SVG excluded)
//
// Returns nil if no cover image is found.
func (p *Package) DetectCover() *CoverInfo {
	// Method 1: EPUB 3.0 - check for cover-image property
	for _, item := range p.ItemsInOrder() {
		if item.HasProperty("cover-image") && item.Path != "" {
			return newCoverInfo(item, "properties")
		}
	}

	// Method 2: EPUB 2.0 - check for meta name="cover"
	if p.Metadata.CoverID != "" {
		if item, ok := p.Manifest[p.Metadata.CoverID]; ok && item.Path != "" {
			return newCoverInfo(item, "meta")
		}
	}

	// Method 3: guide type="cover" → match to image manifest items
	if p.GuideCoverHref != "" {
		if target, _, err := ResolveTarget(p.BasePath, p.GuideCoverHref); err == nil {
			if item, ok := p.ItemByPath(target); ok && isImageMediaType(item.MediaType) {
				return newCoverInfo(item, "guide")
			}
		}
		// Guide points to a non-image → fall through to the filename pattern
	}

	// Method 4: filename pattern
	for _, item := range p.ItemsInOrder() {
		if !isImageMediaType(item.MediaType) || item.Path == "" {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Path)), "cover") {
			return newCoverInfo(item, "filename")
		}
	}

	return nil
}

func newCoverInfo(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Path:            item.Path,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}
