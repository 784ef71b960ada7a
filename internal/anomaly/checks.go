package anomaly

import (
	"path"
	"sort"
	"strings"
)

// stylesheetExempt are name fragments of documents that commonly carry no
// stylesheet on purpose.
var stylesheetExempt = []string{"titlepage", "titlingpage", "wrap", "cover"}

// StylesheetExempt reports whether a document may go without a stylesheet.
func StylesheetExempt(archivePath string) bool {
	lower := strings.ToLower(archivePath)
	for _, term := range stylesheetExempt {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// MissingStylesheets returns the documents that link no stylesheet, in
// order. links maps each document to its stylesheet targets. Nothing is
// reported when the book declares no CSS at all.
func MissingStylesheets(cssDeclared bool, docs []string, links map[string][]string) []string {
	if !cssDeclared {
		return nil
	}
	var missing []string
	for _, d := range docs {
		if len(links[d]) == 0 && !StylesheetExempt(d) {
			missing = append(missing, d)
		}
	}
	return missing
}

// OversizedCover reports whether a cover entry is larger than CoverMaxBytes.
func OversizedCover(size int64, cfg Config) bool {
	return size > cfg.CoverMaxBytes
}

// VersionClass is the package version bucket.
type VersionClass string

const (
	VersionEPUB3     VersionClass = "epub3"
	VersionEPUB2     VersionClass = "epub2"
	VersionIrregular VersionClass = "irregular"
)

// ClassifyVersion buckets a package version attribute. Anything other than
// 3.x, 2.0 or 2.0.1, including a missing attribute, is irregular.
func ClassifyVersion(version string) VersionClass {
	v := strings.TrimSpace(version)
	switch {
	case strings.HasPrefix(v, "3."):
		return VersionEPUB3
	case v == "2.0" || v == "2.0.1":
		return VersionEPUB2
	default:
		return VersionIrregular
	}
}

// Watermarks counts case-insensitive occurrences of each marker across
// texts. Only markers seen at least once appear in the result.
func Watermarks(texts []string, markers []string) map[string]int {
	found := make(map[string]int)
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, m := range markers {
			if m == "" {
				continue
			}
			if n := strings.Count(lower, strings.ToLower(m)); n > 0 {
				found[m] += n
			}
		}
	}
	return found
}

// PNGUsage summarizes the PNG entries of an archive.
type PNGUsage struct {
	Count int
	Bytes int64
	Fired bool
}

// PNGWeight sums the sizes of the .png entries among sizes (entry name to
// uncompressed size) and fires when the total exceeds PNGMaxBytes.
func PNGWeight(sizes map[string]int64, cfg Config) PNGUsage {
	var u PNGUsage
	for name, size := range sizes {
		if strings.ToLower(path.Ext(name)) != ".png" {
			continue
		}
		u.Count++
		u.Bytes += size
	}
	u.Fired = u.Count > 0 && u.Bytes > cfg.PNGMaxBytes
	return u
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
