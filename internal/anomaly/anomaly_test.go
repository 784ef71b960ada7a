package anomaly

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/epubscan/internal/epub"
	"github.com/yuanying/epubscan/internal/epub/epubtest"
)

var discard = slog.New(slog.DiscardHandler)

func load(t *testing.T, b epubtest.Book) (*epub.Package, *epub.ContentCache) {
	t.Helper()
	data := b.Bytes(t)
	a, err := epub.OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	pkg, err := a.LoadPackage()
	require.NoError(t, err)
	return pkg, epub.NewContentCache(a)
}

func paragraphs(n int) string {
	return strings.Repeat("<p>The rain fell in torrents, except at occasional intervals.</p>", n)
}

func TestFlatSpine(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name  string
		sizes []int64
		want  bool
	}{
		{name: "single document", sizes: []int64{10}, want: true},
		{name: "two entries regardless of size", sizes: []int64{10, 10}, want: true},
		{name: "three balanced entries", sizes: []int64{100, 120, 110}, want: false},
		{name: "oversized document in long spine", sizes: []int64{10, 10, 10, 10, 400 * 1024, 10, 10, 10, 10, 10}, want: true},
		{name: "dominant share", sizes: []int64{10, 10, 100}, want: true},
		{name: "exactly at share is not flat", sizes: []int64{15, 15, 70}, want: false},
		{name: "all sizes unknown", sizes: []int64{0, 0, 0}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlatSpine(tt.sizes, cfg))
		})
	}
}

func TestTOCCollapse(t *testing.T) {
	cfg := DefaultConfig()
	spine := []string{"OEBPS/a.xhtml", "OEBPS/b.xhtml", "OEBPS/c.xhtml"}

	assert.False(t, TOCCollapse(spine, spine, cfg), "three targets covering three files")
	assert.False(t, TOCCollapse(nil, spine, cfg), "no TOC never collapses")
	assert.True(t, TOCCollapse([]string{"OEBPS/a.xhtml#p1", "OEBPS/a.xhtml#p2", "OEBPS/b.xhtml"}, spine, cfg))

	var long []string
	for i := 0; i < 40; i++ {
		long = append(long, "OEBPS/part"+strings.Repeat("x", i)+".xhtml")
	}
	assert.True(t, TOCCollapse(long[:5], long, cfg), "5 of 40 is under 15%")
	assert.False(t, TOCCollapse(long[:6], long, cfg), "6 of 40 is 15%")

	// base-name fallback
	assert.False(t, TOCCollapse([]string{"x/a.xhtml", "x/b.xhtml", "x/c.xhtml"}, spine, cfg))
}

func blocks(n int, empty func(i int) bool) []epub.Block {
	out := make([]epub.Block, n)
	for i := range out {
		out[i] = epub.Block{Tag: "p", Text: "some text"}
		if empty(i) {
			out[i].Text = ""
		}
	}
	return out
}

func TestEmptyBlockRuns(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("single long run fires", func(t *testing.T) {
		r := EmptyBlockRuns(blocks(40, func(i int) bool { return i >= 10 && i < 22 }), cfg)
		assert.True(t, r.Fired)
		assert.Equal(t, 40, r.Total)
		assert.Equal(t, 12, r.RunMembers)
		assert.InDelta(t, 0.3, r.Ratio(), 1e-9)
	})

	t.Run("short runs do not count", func(t *testing.T) {
		r := EmptyBlockRuns(blocks(40, func(i int) bool { return i%3 == 0 }), cfg)
		assert.Equal(t, 14, r.Empty)
		assert.Zero(t, r.RunMembers)
		assert.False(t, r.Fired)
	})

	t.Run("trailing run counts", func(t *testing.T) {
		r := EmptyBlockRuns(blocks(20, func(i int) bool { return i >= 12 }), cfg)
		assert.Equal(t, 8, r.RunMembers)
		assert.True(t, r.Fired)
	})

	t.Run("small documents are skipped", func(t *testing.T) {
		r := EmptyBlockRuns(blocks(19, func(int) bool { return true }), cfg)
		assert.True(t, r.Skipped)
		assert.False(t, r.Fired)
	})

	t.Run("link-heavy documents are exempt", func(t *testing.T) {
		bs := blocks(40, func(i int) bool { return i < 20 })
		for i := 20; i < 40; i++ {
			bs[i].HasLink = true
		}
		r := EmptyBlockRuns(bs, cfg)
		assert.True(t, r.TOCLike)
		assert.False(t, r.Fired)
	})

	t.Run("table tags are excluded", func(t *testing.T) {
		bs := blocks(30, func(i int) bool { return i < 10 })
		for i := 0; i < 10; i++ {
			bs[i].Tag = "table"
		}
		r := EmptyBlockRuns(bs, cfg)
		assert.Equal(t, 20, r.Total)
		assert.Zero(t, r.RunMembers)
	})
}

func TestDOMRepetition(t *testing.T) {
	cfg := DefaultConfig()

	same := blocks(30, func(int) bool { return false })
	r := DOMRepetition(same, cfg)
	assert.True(t, r.Fired)
	assert.Equal(t, 1, r.Unique)

	r = DOMRepetition(same[:29], cfg)
	assert.False(t, r.Fired, "below the minimum block count")

	varied := blocks(30, func(int) bool { return false })
	for i := range varied {
		varied[i].Class = strings.Repeat("c", i%10)
	}
	r = DOMRepetition(varied, cfg)
	assert.Equal(t, 10, r.Unique)
	assert.False(t, r.Fired, "10/30 is not below 0.3")
}

func TestHasHeadings(t *testing.T) {
	with, err := epub.ParseContent("a.xhtml", []byte(epubtest.XHTML("a", "<p>x</p><h2>One</h2>")))
	require.NoError(t, err)
	assert.True(t, HasHeadings(with))

	nested, err := epub.ParseContent("b.xhtml", []byte(epubtest.XHTML("b", "<div><h1>Deep</h1></div>")))
	require.NoError(t, err)
	assert.False(t, HasHeadings(nested), "only direct body children count")

	assert.False(t, HasHeadings(nil))
}

func TestClassifyVersion(t *testing.T) {
	tests := map[string]VersionClass{
		"3.0":   VersionEPUB3,
		" 3.2 ": VersionEPUB3,
		"2.0":   VersionEPUB2,
		"2.0.1": VersionEPUB2,
		"2":     VersionIrregular,
		"1.0":   VersionIrregular,
		"":      VersionIrregular,
	}
	for in, want := range tests {
		assert.Equal(t, want, ClassifyVersion(in), "version %q", in)
	}
}

func TestWatermarksAndPNGWeight(t *testing.T) {
	found := Watermarks([]string{"Get more at OceanofPDF.com", "oceanofpdf again", "clean"}, DefaultWatermarks)
	assert.Equal(t, map[string]int{"oceanofpdf": 2}, found)

	cfg := DefaultConfig()
	u := PNGWeight(map[string]int64{"a.png": 600 * 1024, "b.PNG": 500 * 1024, "c.jpg": 5 << 20}, cfg)
	assert.Equal(t, 2, u.Count)
	assert.Equal(t, int64(1100*1024), u.Bytes)
	assert.True(t, u.Fired)

	assert.False(t, PNGWeight(map[string]int64{"a.png": 1024 * 1024}, cfg).Fired)
}

func TestMissingStylesheets(t *testing.T) {
	docs := []string{"a.xhtml", "b.xhtml", "Text/cover.xhtml", "wrap0000.xhtml"}
	links := map[string][]string{"a.xhtml": {"style.css"}}

	assert.Equal(t, []string{"b.xhtml"}, MissingStylesheets(true, docs, links))
	assert.Nil(t, MissingStylesheets(false, docs, links))
}

func TestScanSegmentation(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("single document without toc or headings", func(t *testing.T) {
		pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
			{ID: "c", Href: "content.xhtml", Content: epubtest.XHTML("c", paragraphs(20)), Spine: true},
		}})
		toc := epub.ExtractTOC(pkg, cache)

		s := ScanSegmentation(pkg, cache, toc, cfg, discard)
		assert.True(t, s.Flat)
		assert.False(t, s.MachineTOC)
		assert.False(t, s.Headings)
		assert.Equal(t, "OEBPS/content.xhtml", s.Middle)
		assert.Equal(t, []string{VerdictNoSegmentation}, s.Verdicts)
	})

	t.Run("human contents page covering every file", func(t *testing.T) {
		pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
			{ID: "a", Href: "contents.xhtml", Spine: true, Content: epubtest.XHTML("Contents",
				`<p><a href="contents.xhtml#top">Contents</a></p><p><a href="b.xhtml">One</a></p><p><a href="c.xhtml">Two</a></p>`+paragraphs(10))},
			{ID: "b", Href: "b.xhtml", Content: epubtest.XHTML("b", paragraphs(12)), Spine: true},
			{ID: "c", Href: "c.xhtml", Content: epubtest.XHTML("c", paragraphs(12)), Spine: true},
		}})
		toc := epub.ExtractTOC(pkg, cache)
		require.Equal(t, epub.TOCSourceHuman, toc.Source)

		s := ScanSegmentation(pkg, cache, toc, cfg, discard)
		assert.False(t, s.Collapse)
		assert.False(t, s.Flat)
		assert.Empty(t, s.Verdicts)
	})

	t.Run("nav collapsing onto one file", func(t *testing.T) {
		nav := epubtest.XHTML("Nav", `<nav epub:type="toc"><ol>
<li><a href="big.xhtml#c1">One</a></li>
<li><a href="big.xhtml#c2">Two</a></li>
<li><a href="big.xhtml#c3">Three</a></li>
</ol></nav>`)
		pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
			{ID: "nav", Href: "nav.xhtml", Properties: "nav", Content: nav},
			{ID: "front", Href: "front.xhtml", Content: epubtest.XHTML("f", "<p>front</p>"), Spine: true},
			{ID: "big", Href: "big.xhtml", Content: epubtest.XHTML("b", paragraphs(200)), Spine: true},
		}})
		toc := epub.ExtractTOC(pkg, cache)

		s := ScanSegmentation(pkg, cache, toc, cfg, discard)
		assert.True(t, s.MachineTOC)
		assert.True(t, s.Collapse)
		assert.Equal(t, "OEBPS/big.xhtml", s.Largest)
		assert.True(t, s.Repetition.Fired)
		assert.Equal(t, []string{VerdictTOCCollapse, VerdictRepetitiveDOM}, s.Verdicts)
	})

	t.Run("no content documents", func(t *testing.T) {
		pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
			{ID: "img", Href: "a.jpg", MediaType: "image/jpeg", Content: "jpg", Spine: true},
		}})
		s := ScanSegmentation(pkg, cache, epub.TOC{}, cfg, discard)
		assert.Equal(t, []string{VerdictNoSpineDocument}, s.Verdicts)
	})
}

func TestScanEmptyBlocks(t *testing.T) {
	body := paragraphs(10) + strings.Repeat("<p> </p>", 12) + paragraphs(18)
	pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
		{ID: "broken", Href: "broken.xhtml", Content: epubtest.XHTML("b", body), Spine: true},
		{ID: "fine", Href: "fine.xhtml", Content: epubtest.XHTML("f", paragraphs(40)), Spine: true},
		{ID: "gone", Href: "gone.xhtml", Missing: true, Spine: true},
	}})

	findings := ScanEmptyBlocks(pkg, cache, DefaultConfig(), discard)
	require.Len(t, findings, 1)
	assert.Equal(t, "OEBPS/broken.xhtml", findings[0].Path)
	assert.Equal(t, 12, findings[0].RunMembers)
	assert.Equal(t, 40, findings[0].Total)
}

func TestScanStylesheets(t *testing.T) {
	items := []epubtest.Item{
		{ID: "a", Href: "a.xhtml", Content: epubtest.XHTMLWithCSS("a", "style.css", "<p>a</p>"), Spine: true},
		{ID: "b", Href: "b.xhtml", Content: epubtest.XHTML("b", "<p>b</p>"), Spine: true},
		{ID: "cover", Href: "cover.xhtml", Content: epubtest.XHTML("c", "<p>c</p>"), Spine: true},
	}

	pkg, cache := load(t, epubtest.Book{Items: items})
	assert.Nil(t, ScanStylesheets(pkg, cache, discard), "no CSS declared")

	withCSS := append(items, epubtest.Item{ID: "css", Href: "style.css", MediaType: "text/css", Content: "p { margin: 0 }"})
	pkg, cache = load(t, epubtest.Book{Items: withCSS})
	assert.Equal(t, []string{"OEBPS/b.xhtml"}, ScanStylesheets(pkg, cache, discard))
}

func TestScanCoverSize(t *testing.T) {
	cfg := DefaultConfig()
	pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
		{ID: "img", Href: "cover.jpg", MediaType: "image/jpeg", Properties: "cover-image", Content: strings.Repeat("x", 600*1024)},
		{ID: "a", Href: "a.xhtml", Content: epubtest.XHTML("a", "<p>a</p>"), Spine: true},
	}})

	c := ScanCoverSize(pkg, cache.Archive(), cfg)
	require.NotNil(t, c.Cover)
	assert.Equal(t, "OEBPS/cover.jpg", c.Cover.Path)
	assert.Equal(t, int64(600*1024), c.Bytes)
	assert.True(t, c.Fired)

	pkg, cache = load(t, epubtest.Book{Items: []epubtest.Item{
		{ID: "a", Href: "a.xhtml", Content: epubtest.XHTML("a", "<p>a</p>"), Spine: true},
	}})
	c = ScanCoverSize(pkg, cache.Archive(), cfg)
	assert.Nil(t, c.Cover)
	assert.False(t, c.Fired)
}

func TestScanWatermarksAndPNG(t *testing.T) {
	pkg, cache := load(t, epubtest.Book{Items: []epubtest.Item{
		{ID: "a", Href: "a.xhtml", Content: epubtest.XHTML("a", "<p>Downloaded from OceanofPDF.com</p><p>oceanofpdf</p>"), Spine: true},
		{ID: "notes", Href: "notes.txt", MediaType: "text/plain", Content: "ripped by KeVkRaY"},
		{ID: "p1", Href: "p1.png", MediaType: "image/png", Content: strings.Repeat("x", 700*1024)},
		{ID: "p2", Href: "p2.png", MediaType: "image/png", Content: strings.Repeat("x", 400*1024)},
	}})
	cfg := DefaultConfig()

	hits := ScanWatermarks(pkg, cache, cfg, discard)
	assert.Equal(t, []WatermarkHit{{Marker: "KeVkRaY", Count: 1}, {Marker: "oceanofpdf", Count: 2}}, hits)

	png := ScanPNG(cache.Archive(), cfg)
	assert.Equal(t, 2, png.Count)
	assert.True(t, png.Fired)

	cfg.Watermarks = nil
	assert.Nil(t, ScanWatermarks(pkg, cache, cfg, discard))
}
