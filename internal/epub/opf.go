package epub

import (
	"fmt"
	"strings"
)

// DefaultPackageNamespace is assumed when the package document declares no
// binding that looks like the package vocabulary.
const DefaultPackageNamespace = "http://www.idpf.org/2007/opf"

// LoadPackage locates and parses the package document. Malformed markup is
// recovered rather than rejected; what recovery costs is recorded in
// Package.Diagnostics. A package without manifest items fails with
// ErrEmptyManifest.
func (a *Archive) LoadPackage() (*Package, error) {
	opfPath, err := a.LocatePackage()
	if err != nil {
		return nil, err
	}

	content, err := a.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package document: %w", err)
	}

	pkg := ParsePackage(content, opfPath)
	pkg.Diagnostics = append(append([]string(nil), a.Diagnostics...), pkg.Diagnostics...)
	if len(pkg.Manifest) == 0 {
		return pkg, fmt.Errorf("failed to load %s: %w", opfPath, ErrEmptyManifest)
	}
	return pkg, nil
}

// ParsePackage parses package document content found at opfPath.
// It never fails; callers check the manifest for emptiness.
func ParsePackage(content []byte, opfPath string) *Package {
	pkg := &Package{
		Path:     opfPath,
		BasePath: dirOf(opfPath),
		Manifest: make(map[string]ManifestItem),
	}

	doc, perr := parseLenientXML(content)
	if perr != nil {
		pkg.Diagnostics = append(pkg.Diagnostics, fmt.Sprintf("package document recovered from parse error: %v", perr))
	}

	root := doc.find("", "package")
	if root == nil {
		root = doc.firstElement()
	}
	if root == nil {
		pkg.Namespace = DefaultPackageNamespace
		return pkg
	}

	pkg.Namespace = detectNamespace(root)
	pkg.Version = strings.TrimSpace(root.attr("version"))

	// Parse metadata
	metadata := root.find(pkg.Namespace, "metadata")
	if metadata == nil {
		metadata = root
	}
	pkg.Metadata = parseMetadata(metadata, pkg.Namespace)

	// Parse manifest
	manifest := root.find(pkg.Namespace, "manifest")
	if manifest == nil {
		manifest = root
	}
	for _, el := range manifest.findAll(pkg.Namespace, "item") {
		pkg.addManifestItem(el)
	}

	// Parse spine
	if spine := root.find(pkg.Namespace, "spine"); spine != nil {
		pkg.TocID = strings.TrimSpace(spine.attr("toc"))
		for _, ref := range spine.findAll(pkg.Namespace, "itemref") {
			idref := strings.TrimSpace(ref.attr("idref"))
			if _, ok := pkg.Manifest[idref]; !ok {
				pkg.Diagnostics = append(pkg.Diagnostics, fmt.Sprintf("spine idref %q not in manifest", idref))
				continue
			}
			pkg.Spine = append(pkg.Spine, SpineItem{
				IDRef:  idref,
				Linear: !strings.EqualFold(strings.TrimSpace(ref.attr("linear")), "no"),
			})
		}
	} else {
		pkg.Diagnostics = append(pkg.Diagnostics, "package document has no spine")
	}

	// Parse guide (EPUB 2)
	if guide := root.find(pkg.Namespace, "guide"); guide != nil {
		for _, ref := range guide.findAll(pkg.Namespace, "reference") {
			gr := GuideReference{
				Type:  strings.TrimSpace(ref.attr("type")),
				Title: ref.attr("title"),
				Href:  strings.TrimSpace(ref.attr("href")),
			}
			pkg.Guide = append(pkg.Guide, gr)
			if pkg.GuideCoverHref == "" && strings.EqualFold(gr.Type, "cover") && gr.Href != "" {
				pkg.GuideCoverHref = gr.Href
			}
		}
	}

	return pkg
}

func (p *Package) addManifestItem(el *xnode) {
	id := strings.TrimSpace(el.attr("id"))
	if id == "" {
		p.Diagnostics = append(p.Diagnostics, "manifest item without id skipped")
		return
	}
	if _, dup := p.Manifest[id]; dup {
		p.Diagnostics = append(p.Diagnostics, fmt.Sprintf("duplicate manifest id %q ignored", id))
		return
	}

	item := ManifestItem{
		ID:         id,
		Href:       strings.TrimSpace(el.attr("href")),
		MediaType:  strings.TrimSpace(el.attr("media-type")),
		Properties: strings.Fields(el.attr("properties")),
	}
	if item.Href != "" {
		resolved, _, err := ResolveTarget(p.BasePath, item.Href)
		if err != nil {
			p.Diagnostics = append(p.Diagnostics, fmt.Sprintf("manifest item %q: %v", id, err))
		} else {
			item.Path = resolved
		}
	}

	p.Manifest[id] = item
	p.ManifestOrder = append(p.ManifestOrder, id)
}

// detectNamespace picks the package vocabulary namespace from the root
// element's bindings: the first URI containing "opf", else the default.
func detectNamespace(root *xnode) string {
	for _, a := range root.Attr {
		isBinding := a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
		if isBinding && strings.Contains(strings.ToLower(a.Value), "opf") {
			return a.Value
		}
	}
	if root.Name.Space != "" && strings.Contains(strings.ToLower(root.Name.Space), "opf") {
		return root.Name.Space
	}
	return DefaultPackageNamespace
}

// parseMetadata reads the title, creators and EPUB 2 cover meta
func parseMetadata(el *xnode, ns string) Metadata {
	var md Metadata

	// Title (use first non-empty one)
	for _, t := range el.findAll("", "title") {
		if s := collapseSpace(t.text()); s != "" {
			md.Title = s
			break
		}
	}

	for _, c := range el.findAll("", "creator") {
		if s := collapseSpace(c.text()); s != "" {
			md.Creators = append(md.Creators, s)
		}
	}

	for _, m := range el.findAll(ns, "meta") {
		if strings.EqualFold(m.attr("name"), "cover") && m.attr("content") != "" {
			md.CoverID = strings.TrimSpace(m.attr("content"))
			break
		}
	}

	return md
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
