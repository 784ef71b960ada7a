package epub

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/epubscan/internal/epub/epubtest"
)

// openBytes opens an in-memory archive and fails the test on error.
func openBytes(t *testing.T, data []byte) *Archive {
	t.Helper()
	a, err := OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return a
}

func openBook(t *testing.T, b epubtest.Book) *Archive {
	t.Helper()
	return openBytes(t, b.Bytes(t))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := epubtest.Book{
		Title: "Test Book",
		Items: []epubtest.Item{{ID: "ch1", Href: "ch1.xhtml", Content: epubtest.XHTML("c", "<p>x</p>"), Spine: true}},
	}.Archive().WriteFile(t, dir, "test.epub")

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Has("OEBPS/content.opf"))
	assert.Empty(t, a.Diagnostics)
}

func TestOpen_NotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.epub")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrArchiveRead)
}

func TestArchive_ReadFile(t *testing.T) {
	data := epubtest.New().Add("./OEBPS/Text/Ch1.xhtml", "<p>hello</p>").Bytes(t)
	a := openBytes(t, data)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "dot slash prefix trimmed", path: "OEBPS/Text/Ch1.xhtml", want: "<p>hello</p>"},
		{name: "case-insensitive fallback", path: "oebps/text/ch1.xhtml", want: "<p>hello</p>"},
		{name: "missing", path: "OEBPS/none.xhtml", wantErr: ErrFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ReadFile(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestArchive_Size(t *testing.T) {
	a := openBytes(t, epubtest.New().Add("img/a.png", strings.Repeat("x", 1234)).Bytes(t))

	size, ok := a.Size("img/a.png")
	assert.True(t, ok)
	assert.EqualValues(t, 1234, size)

	_, ok = a.Size("img/b.png")
	assert.False(t, ok, "missing entry reported present")
}

func TestArchive_EntryNamesWithPercentAndHash(t *testing.T) {
	a := openBytes(t, epubtest.New().
		Add("OEBPS/ch#1.xhtml", "one").
		Add("OEBPS/a%41.xhtml", "two").
		Bytes(t))

	assert.Contains(t, a.Names(), "OEBPS/ch%231.xhtml")
	assert.Contains(t, a.Names(), "OEBPS/a%2541.xhtml")

	got, err := a.ReadFile("OEBPS/ch%231.xhtml")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
	assert.False(t, a.Has("OEBPS/aA.xhtml"))
}

func TestArchive_MimetypeDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		builder *epubtest.Builder
		want    string
	}{
		{name: "missing", builder: epubtest.Empty().Add("a.txt", "x"), want: "mimetype file not found"},
		{name: "wrong value", builder: epubtest.Empty().Add("mimetype", "application/zip"), want: "unexpected mimetype"},
		{name: "compressed", builder: epubtest.Empty().Add("mimetype", "application/epub+zip"), want: "mimetype is compressed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openBytes(t, tt.builder.Bytes(t))
			assertDiagnostic(t, a.Diagnostics, tt.want)
		})
	}
}

func TestLocatePackage(t *testing.T) {
	opf := epubtest.Book{Items: []epubtest.Item{{ID: "a", Href: "a.xhtml"}}}.OPF()

	tests := []struct {
		name    string
		builder *epubtest.Builder
		want    string
		wantErr error
	}{
		{
			name:    "container declared path",
			builder: epubtest.New().Container("OPS/book.opf").Add("OPS/book.opf", opf),
			want:    "OPS/book.opf",
		},
		{
			name:    "no container, scan for opf",
			builder: epubtest.New().Add("x/y/Package.OPF", opf),
			want:    "x/y/Package.OPF",
		},
		{
			name:    "container points to missing file",
			builder: epubtest.New().Container("missing.opf").Add("real/content.opf", opf),
			want:    "real/content.opf",
		},
		{
			name:    "malformed container",
			builder: epubtest.New().Add("META-INF/container.xml", "<container><rootfiles><rootfile full-path=\"c.opf\"").Add("c.opf", opf),
			want:    "c.opf",
		},
		{
			name: "prefers oebps media type",
			builder: epubtest.New().Add("META-INF/container.xml", `<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container"><rootfiles>
<rootfile full-path="alt.pdf" media-type="application/pdf"/>
<rootfile full-path="main.opf" media-type="application/oebps-package+xml"/>
</rootfiles></container>`).Add("alt.pdf", "%PDF").Add("main.opf", opf),
			want: "main.opf",
		},
		{
			name:    "nothing to find",
			builder: epubtest.New().Add("a.xhtml", "<p/>"),
			wantErr: ErrNoPackageDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openBytes(t, tt.builder.Bytes(t))
			got, err := a.LocatePackage()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// assertDiagnostic fails unless one of diags contains sub.
func assertDiagnostic(t *testing.T, diags []string, sub string) {
	t.Helper()
	for _, d := range diags {
		if strings.Contains(d, sub) {
			return
		}
	}
	assert.Failf(t, "missing diagnostic", "Diagnostics = %v, want one containing %q", diags, sub)
}
