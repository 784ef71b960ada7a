package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/epubscan/internal/epub/epubtest"
)

func TestParsePackage(t *testing.T) {
	opfXML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Test   Book</dc:title>
    <dc:creator opf:role="aut">Test Author</dc:creator>
    <dc:creator>Second Author</dc:creator>
    <meta name="cover" content="cover-image"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="cover-image" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="ch1" href="Text/chapter%201.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="Text/chapter2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch1" href="Text/dup.xhtml" media-type="application/xhtml+xml"/>
    <item id="bad" href="../../outside.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2" linear="no"/>
    <itemref idref="ghost"/>
  </spine>
  <guide>
    <reference type="cover" title="Cover" href="Text/cover.xhtml"/>
    <reference type="toc" title="Contents" href="Text/toc.xhtml"/>
  </guide>
</package>`)

	pkg := ParsePackage(opfXML, "OEBPS/content.opf")

	assert.Equal(t, "OEBPS", pkg.BasePath)
	assert.Equal(t, "2.0", pkg.Version)
	assert.Equal(t, DefaultPackageNamespace, pkg.Namespace)
	assert.Equal(t, "Test Book", pkg.Metadata.Title)
	assert.Equal(t, []string{"Test Author", "Second Author"}, pkg.Metadata.Creators)
	assert.Equal(t, "cover-image", pkg.Metadata.CoverID)

	// Manifest
	assert.Equal(t, []string{"ncx", "cover-image", "ch1", "ch2", "bad"}, pkg.ManifestOrder)
	assert.Equal(t, "OEBPS/Text/chapter 1.xhtml", pkg.Manifest["ch1"].Path)
	assert.Equal(t, "Text/chapter%201.xhtml", pkg.Manifest["ch1"].Href, "raw href kept")
	assert.Empty(t, pkg.Manifest["bad"].Path, "escaping href must be rejected")

	// Spine
	assert.Equal(t, []SpineItem{{IDRef: "ch1", Linear: true}, {IDRef: "ch2", Linear: false}}, pkg.Spine)
	assert.Equal(t, "ncx", pkg.TocID)

	// Guide
	require.Len(t, pkg.Guide, 2)
	assert.Equal(t, "Text/cover.xhtml", pkg.GuideCoverHref)

	for _, want := range []string{"duplicate manifest id", "ghost", "escapes the archive root"} {
		assertDiagnostic(t, pkg.Diagnostics, want)
	}
}

func TestParsePackage_ReboundPrefix(t *testing.T) {
	opfXML := []byte(`<?xml version="1.0"?>
<opf:package xmlns:opf="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="3.0">
  <opf:metadata><dc:title>Prefixed</dc:title></opf:metadata>
  <opf:manifest>
    <opf:item id="a" href="a.xhtml" media-type="application/xhtml+xml" properties="nav scripted"/>
  </opf:manifest>
  <opf:spine><opf:itemref idref="a"/></opf:spine>
</opf:package>`)

	pkg := ParsePackage(opfXML, "content.opf")

	assert.Equal(t, "http://www.idpf.org/2007/opf", pkg.Namespace)
	assert.Empty(t, pkg.BasePath)
	item, ok := pkg.Manifest["a"]
	require.True(t, ok, "manifest item a not found")
	assert.Equal(t, "a.xhtml", item.Path)
	assert.True(t, item.HasProperty("nav"))
	assert.True(t, item.HasProperty("scripted"))
	assert.Equal(t, "Prefixed", pkg.Metadata.Title)
	assert.Len(t, pkg.Spine, 1)
}

func TestParsePackage_CustomNamespace(t *testing.T) {
	opfXML := []byte(`<package xmlns="http://example.org/custom/opf" version="3.0">
  <manifest><item id="a" href="a.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="a"/></spine>
</package>`)

	pkg := ParsePackage(opfXML, "content.opf")
	assert.Equal(t, "http://example.org/custom/opf", pkg.Namespace)
	assert.Len(t, pkg.Manifest, 1)
}

func TestParsePackage_Truncated(t *testing.T) {
	opfXML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idr`)

	pkg := ParsePackage(opfXML, "OPS/package.opf")

	require.Len(t, pkg.Manifest, 2)
	require.NotEmpty(t, pkg.Spine)
	assert.Equal(t, "ch1", pkg.Spine[0].IDRef)
	assertDiagnostic(t, pkg.Diagnostics, "recovered from parse error")
}

func TestParsePackage_HTMLEntitiesAndUnclosedMeta(t *testing.T) {
	opfXML := []byte(`<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Caf&eacute; &amp; Bar&nbsp;Stories</dc:title>
    <meta name="cover" content="img">
  </metadata>
  <manifest><item id="img" href="c.jpg" media-type="image/jpeg"/></manifest>
</package>`)

	pkg := ParsePackage(opfXML, "content.opf")
	assert.Equal(t, "Café & Bar Stories", pkg.Metadata.Title)
	assert.Equal(t, "img", pkg.Metadata.CoverID)
	assert.Equal(t, "c.jpg", pkg.Manifest["img"].Path)
}

func TestParsePackage_EPUB3MetaProperties(t *testing.T) {
	opfXML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:1</dc:identifier>
    <dc:title id="t1">Modern Book</dc:title>
    <meta refines="#t1" property="title-type">main</meta>
    <dc:creator>Jane Writer</dc:creator>
    <meta property="dcterms:modified">2020-01-01T00:00:00Z</meta>
  </metadata>
  <manifest>
    <item id="cov" href="cover.jpg" media-type="image/jpeg" properties="cover-image"/>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`)

	pkg := ParsePackage(opfXML, "OEBPS/content.opf")

	assert.Empty(t, pkg.Diagnostics)
	assert.Equal(t, "Modern Book", pkg.Metadata.Title)
	assert.Equal(t, []string{"Jane Writer"}, pkg.Metadata.Creators)
	assert.Len(t, pkg.Manifest, 2)
	assert.Len(t, pkg.Spine, 1)
}

func TestLoadPackage(t *testing.T) {
	a := openBook(t, epubtest.Book{
		Title: "Loaded",
		Items: []epubtest.Item{
			{ID: "ch1", Href: "ch1.xhtml", Content: epubtest.XHTML("1", "<p>one</p>"), Spine: true},
		},
	})

	pkg, err := a.LoadPackage()
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/content.opf", pkg.Path)
	assert.Equal(t, "OEBPS/ch1.xhtml", pkg.Manifest["ch1"].Path)
	assert.Equal(t, "3.0", pkg.Version)
	assert.Empty(t, pkg.Diagnostics)
}

func TestLoadPackage_EmptyManifest(t *testing.T) {
	a := openBytes(t, epubtest.New().Container("content.opf").
		Add("content.opf", `<package xmlns="http://www.idpf.org/2007/opf"><manifest></manifest><spine/></package>`).
		Bytes(t))

	_, err := a.LoadPackage()
	assert.ErrorIs(t, err, ErrEmptyManifest)
}

func TestLoadPackage_NoPackage(t *testing.T) {
	a := openBytes(t, epubtest.New().Add("index.html", "<p>x</p>").Bytes(t))

	_, err := a.LoadPackage()
	assert.ErrorIs(t, err, ErrNoPackageDocument)
}

func TestPackage_DocumentLookups(t *testing.T) {
	pkg := &Package{
		Manifest: map[string]ManifestItem{
			"cover": {ID: "cover", Path: "cover.xhtml", MediaType: "application/xhtml+xml"},
			"img":   {ID: "img", Path: "img.png", MediaType: "image/png"},
			"odd":   {ID: "odd", Path: "odd.html", MediaType: "application/octet-stream"},
			"ch1":   {ID: "ch1", Path: "ch1.xhtml", MediaType: "application/xhtml+xml"},
			"ch2":   {ID: "ch2", Path: "ch2.xhtml", MediaType: "text/html"},
			"lost":  {ID: "lost", MediaType: "application/xhtml+xml"},
		},
		ManifestOrder: []string{"cover", "img", "odd", "ch1", "ch2", "lost"},
		Spine: []SpineItem{
			{IDRef: "cover", Linear: false},
			{IDRef: "img", Linear: true},
			{IDRef: "odd", Linear: true},
			{IDRef: "lost", Linear: true},
			{IDRef: "ch1", Linear: true},
			{IDRef: "ch2", Linear: true},
		},
	}

	paths := func(docs []SpineDocument) []string {
		var out []string
		for _, d := range docs {
			out = append(out, d.Item.Path)
		}
		return out
	}

	assert.Equal(t, []string{"cover.xhtml", "img.png", "odd.html", "ch1.xhtml", "ch2.xhtml"}, paths(pkg.SpineDocuments()))
	assert.Equal(t, []string{"cover.xhtml", "odd.html", "ch1.xhtml", "ch2.xhtml"}, paths(pkg.ContentDocuments()))
	assert.Equal(t, []string{"ch1.xhtml"}, paths(pkg.LinearContent(1)))
	assert.Equal(t, []string{"ch1.xhtml", "ch2.xhtml"}, paths(pkg.LinearContent(2)))

	item, ok := pkg.ItemByPath("ch2.xhtml")
	require.True(t, ok)
	assert.Equal(t, "ch2", item.ID)
}
