// Package epubtest builds EPUB archives in memory for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Item is a manifest entry. Content is written to the archive unless Missing is set.
type Item struct {
	ID         string
	Href       string // relative to the package directory
	MediaType  string // defaults to application/xhtml+xml
	Properties string
	Content    string
	Spine      bool // add an itemref
	NonLinear  bool // itemref linear="no"
	Missing    bool // declared in the manifest but absent from the archive
}

// GuideRef is an EPUB 2 guide reference.
type GuideRef struct {
	Type string
	Href string
}

// Book describes a package document and its files.
type Book struct {
	Dir      string // package directory, "OEBPS" when empty; "." puts it at the root
	Version  string // "3.0" when empty
	Title    string
	Creators []string
	CoverID  string // meta name="cover"
	TocID    string // spine toc attribute
	Items    []Item
	Guide    []GuideRef
}

// OPFPath returns the archive path of the package document.
func (b Book) OPFPath() string {
	return joinDir(b.dir(), "content.opf")
}

func (b Book) dir() string {
	if b.Dir == "" {
		return "OEBPS"
	}
	if b.Dir == "." {
		return ""
	}
	return b.Dir
}

// OPF renders the package document.
func (b Book) OPF() string {
	version := b.Version
	if version == "" {
		version = "3.0"
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&sb, `<package xmlns="http://www.idpf.org/2007/opf" version="%s" unique-identifier="uid">`+"\n", version)
	sb.WriteString(`  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` + "\n")
	sb.WriteString(`    <dc:identifier id="uid">urn:uuid:test</dc:identifier>` + "\n")
	if strings.HasPrefix(version, "3") {
		sb.WriteString(`    <meta property="dcterms:modified">2020-01-01T00:00:00Z</meta>` + "\n")
	}
	if b.Title != "" {
		fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", html.EscapeString(b.Title))
	}
	for _, c := range b.Creators {
		fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", html.EscapeString(c))
	}
	if b.CoverID != "" {
		fmt.Fprintf(&sb, `    <meta name="cover" content="%s"/>`+"\n", b.CoverID)
	}
	sb.WriteString("  </metadata>\n  <manifest>\n")
	for _, it := range b.Items {
		props := ""
		if it.Properties != "" {
			props = fmt.Sprintf(` properties="%s"`, it.Properties)
		}
		fmt.Fprintf(&sb, `    <item id="%s" href="%s" media-type="%s"%s/>`+"\n", it.ID, it.Href, mediaType(it), props)
	}
	sb.WriteString("  </manifest>\n")
	if b.TocID != "" {
		fmt.Fprintf(&sb, `  <spine toc="%s">`+"\n", b.TocID)
	} else {
		sb.WriteString("  <spine>\n")
	}
	for _, it := range b.Items {
		if !it.Spine {
			continue
		}
		if it.NonLinear {
			fmt.Fprintf(&sb, `    <itemref idref="%s" linear="no"/>`+"\n", it.ID)
		} else {
			fmt.Fprintf(&sb, `    <itemref idref="%s"/>`+"\n", it.ID)
		}
	}
	sb.WriteString("  </spine>\n")
	if len(b.Guide) > 0 {
		sb.WriteString("  <guide>\n")
		for _, g := range b.Guide {
			fmt.Fprintf(&sb, `    <reference type="%s" href="%s"/>`+"\n", g.Type, g.Href)
		}
		sb.WriteString("  </guide>\n")
	}
	sb.WriteString("</package>\n")
	return sb.String()
}

// Archive returns a builder holding the mimetype, container, package
// document and every item with content.
func (b Book) Archive() *Builder {
	ab := New().Container(b.OPFPath()).Add(b.OPFPath(), b.OPF())
	for _, it := range b.Items {
		if it.Missing {
			continue
		}
		name := it.Href
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
		ab.Add(joinDir(b.dir(), name), it.Content)
	}
	return ab
}

// Bytes is shorthand for b.Archive().Bytes(t).
func (b Book) Bytes(t testing.TB) []byte {
	t.Helper()
	return b.Archive().Bytes(t)
}

func mediaType(it Item) string {
	if it.MediaType != "" {
		return it.MediaType
	}
	return "application/xhtml+xml"
}

func joinDir(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// XHTML wraps body markup in a minimal XHTML document.
func XHTML(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>` + html.EscapeString(title) + `</title></head>
<body>` + body + `</body>
</html>`
}

// XHTMLWithCSS is XHTML with a stylesheet link in head.
func XHTMLWithCSS(title, cssHref, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + html.EscapeString(title) + `</title>
<link rel="stylesheet" type="text/css" href="` + cssHref + `"/></head>
<body>` + body + `</body>
</html>`
}

type file struct {
	name   string
	data   []byte
	stored bool
}

// Builder assembles raw archive entries in order.
type Builder struct {
	files []file
}

// New returns a builder that starts with a stored mimetype entry.
func New() *Builder {
	return &Builder{files: []file{{name: "mimetype", data: []byte("application/epub+zip"), stored: true}}}
}

// Empty returns a builder with no entries at all.
func Empty() *Builder {
	return &Builder{}
}

// Container adds META-INF/container.xml pointing at opfPath.
func (b *Builder) Container(opfPath string) *Builder {
	return b.Add("META-INF/container.xml", `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="`+opfPath+`" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)
}

// Add appends an entry.
func (b *Builder) Add(name, content string) *Builder {
	return b.AddBytes(name, []byte(content))
}

// AddBytes appends a binary entry.
func (b *Builder) AddBytes(name string, data []byte) *Builder {
	b.files = append(b.files, file{name: name, data: data})
	return b
}

// Bytes returns the ZIP encoding of the entries.
func (b *Builder) Bytes(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range b.files {
		method := zip.Deflate
		if f.stored {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", f.name, err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatalf("failed to write %s: %v", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes the archive to dir/name and returns its path.
func (b *Builder) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(p, b.Bytes(t), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
	return p
}
