package epub

import (
	"fmt"
	"strings"
)

const (
	containerPath      = "META-INF/container.xml"
	packageMediaType   = "application/oebps-package+xml"
	containerNamespace = "urn:oasis:names:tc:opendocument:xmlns:container"
)

// LocatePackage returns the archive path of the package document.
// It reads META-INF/container.xml leniently and falls back to the first
// entry ending in .opf when the descriptor is absent, malformed, or points
// to a missing entry.
func (a *Archive) LocatePackage() (string, error) {
	if p, ok := a.packageFromContainer(); ok {
		return p, nil
	}

	// Fallback: scan entries in archive order
	for _, name := range a.names {
		if strings.HasSuffix(strings.ToLower(name), ".opf") {
			a.Diagnostics = append(a.Diagnostics, fmt.Sprintf("package document found by scan: %s", name))
			return name, nil
		}
	}
	return "", ErrNoPackageDocument
}

func (a *Archive) packageFromContainer() (string, bool) {
	data, err := a.ReadFile(containerPath)
	if err != nil {
		a.Diagnostics = append(a.Diagnostics, "container.xml not found")
		return "", false
	}

	doc, perr := parseLenientXML(data)
	if perr != nil {
		a.Diagnostics = append(a.Diagnostics, fmt.Sprintf("container.xml recovered from parse error: %v", perr))
	}

	var first string
	for _, rf := range doc.findAll(containerNamespace, "rootfile") {
		fullPath := entryPath(strings.TrimSpace(rf.attr("full-path")))
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.attr("media-type")), packageMediaType) {
			if a.Has(fullPath) {
				return a.canonicalName(fullPath), true
			}
			a.Diagnostics = append(a.Diagnostics, fmt.Sprintf("rootfile %s missing from archive", fullPath))
			continue
		}
		if first == "" {
			first = fullPath
		}
	}

	if first != "" && a.Has(first) {
		return a.canonicalName(first), true
	}
	return "", false
}

// canonicalName maps a case-insensitive match back to the entry's real name.
func (a *Archive) canonicalName(p string) string {
	if f := a.lookup(p); f != nil {
		return entryPath(f.Name)
	}
	return p
}
