// Package detect holds the signal tables and candidate builders for
// locating copyright and titlepage documents.
package detect

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/yuanying/epubscan/internal/epub"
)

// Page is one candidate content document with its text precomputed.
type Page struct {
	Position int               // 1-based position among the candidates
	Path     string            // archive path
	Name     string            // lower-case base name
	Stem     string            // Name without extension
	View     *epub.ContentView // nil when the document could not be parsed

	Text  string // normalized body text
	Lower string // lower-cased Text
	Words int

	// Book-level context used by the titlepage table.
	Title      string   // lower-cased normalized title
	Creators   []string // lower-cased creator names
	LargeImage bool
}

func newPage(pos int, archivePath string, view *epub.ContentView) *Page {
	name := strings.ToLower(path.Base(archivePath))
	p := &Page{
		Position: pos,
		Path:     archivePath,
		Name:     name,
		Stem:     strings.TrimSuffix(name, path.Ext(name)),
		View:     view,
	}
	if view != nil {
		p.Text = view.Text()
		p.Lower = strings.ToLower(p.Text)
		p.Words = len(strings.Fields(p.Text))
	}
	return p
}

// TextLen returns the length of the body text in characters.
func (p *Page) TextLen() int {
	return utf8.RuneCountInString(p.Text)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Paths returns the candidate archive paths in order.
func Paths(pages []*Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Path
	}
	return out
}
