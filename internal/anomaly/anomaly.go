// Package anomaly implements the structural tests that flag books whose
// chapters were never split, whose TOC fails to segment the text, or whose
// content documents look broken.
//
// Every test takes plain inputs and has no side effects; Scan wires them to
// a loaded package.
package anomaly

import (
	"path"
	"strings"

	"github.com/yuanying/epubscan/internal/epub"
)

// Config holds the thresholds used by the tests.
type Config struct {
	MaxDocBytes         int64    `mapstructure:"max_doc_bytes" yaml:"max_doc_bytes"`
	LargestShare        float64  `mapstructure:"largest_share" yaml:"largest_share"`
	CollapseMaxFiles    int      `mapstructure:"collapse_max_files" yaml:"collapse_max_files"`
	CollapseMinCoverage float64  `mapstructure:"collapse_min_coverage" yaml:"collapse_min_coverage"`
	RepetitionMinBlocks int      `mapstructure:"repetition_min_blocks" yaml:"repetition_min_blocks"`
	RepetitionMaxRatio  float64  `mapstructure:"repetition_max_ratio" yaml:"repetition_max_ratio"`
	EmptyRunLength      int      `mapstructure:"empty_run_length" yaml:"empty_run_length"`
	EmptyMinBlocks      int      `mapstructure:"empty_min_blocks" yaml:"empty_min_blocks"`
	EmptyMinRunMembers  int      `mapstructure:"empty_min_run_members" yaml:"empty_min_run_members"`
	EmptyRatio          float64  `mapstructure:"empty_ratio" yaml:"empty_ratio"`
	TOCLikeLinkRatio    float64  `mapstructure:"toc_like_link_ratio" yaml:"toc_like_link_ratio"`
	CoverMaxBytes       int64    `mapstructure:"cover_max_bytes" yaml:"cover_max_bytes"`
	PNGMaxBytes         int64    `mapstructure:"png_max_bytes" yaml:"png_max_bytes"`
	Watermarks          []string `mapstructure:"watermarks" yaml:"watermarks"`
}

// DefaultWatermarks are strings left behind by scanners and pirate sites.
var DefaultWatermarks = []string{
	"oceanofpdf",
	"steelrat",
	"are belong to us",
	"gescannt von",
	"lol.to",
	"invisibleorder.com",
	"FULL PROJECT GUTENBERG",
	"KeVkRaY",
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MaxDocBytes:         300 * 1024,
		LargestShare:        0.7,
		CollapseMaxFiles:    2,
		CollapseMinCoverage: 0.15,
		RepetitionMinBlocks: 30,
		RepetitionMaxRatio:  0.3,
		EmptyRunLength:      3,
		EmptyMinBlocks:      20,
		EmptyMinRunMembers:  5,
		EmptyRatio:          0.25,
		TOCLikeLinkRatio:    0.3,
		CoverMaxBytes:       500 * 1024,
		PNGMaxBytes:         1024 * 1024,
		Watermarks:          append([]string(nil), DefaultWatermarks...),
	}
}

// tableTags are skipped by the empty-block scan.
var tableTags = map[string]bool{
	"table": true, "tbody": true, "thead": true, "tfoot": true,
	"tr": true, "td": true, "th": true,
}

// FlatSpine reports whether the spine looks unsplit: at most two documents,
// or one document larger than MaxDocBytes, or one document holding more than
// LargestShare of the total size.
func FlatSpine(sizes []int64, cfg Config) bool {
	if len(sizes) <= 2 {
		return true
	}
	var largest, total int64
	for _, s := range sizes {
		total += s
		largest = max(largest, s)
	}
	if largest > cfg.MaxDocBytes {
		return true
	}
	return total > 0 && float64(largest)/float64(total) > cfg.LargestShare
}

// TOCCollapse reports whether a non-empty set of TOC targets lands on too
// few spine files. A target matches a spine file by exact path, else by base
// name.
func TOCCollapse(targets, spineFiles []string, cfg Config) bool {
	if len(targets) == 0 || len(spineFiles) == 0 {
		return false
	}
	distinct := len(referencedFiles(targets, spineFiles))
	return distinct <= cfg.CollapseMaxFiles ||
		float64(distinct)/float64(len(spineFiles)) < cfg.CollapseMinCoverage
}

func referencedFiles(targets, spineFiles []string) map[string]bool {
	exact := make(map[string]bool, len(spineFiles))
	for _, s := range spineFiles {
		exact[s] = true
	}
	found := make(map[string]bool)
	for _, t := range targets {
		t = epub.StripFragment(t)
		if exact[t] {
			found[t] = true
			continue
		}
		base := path.Base(t)
		for _, s := range spineFiles {
			if path.Base(s) == base {
				found[s] = true
				break
			}
		}
	}
	return found
}

// HasHeadings reports whether any direct body child is h1 through h6.
func HasHeadings(view *epub.ContentView) bool {
	if view == nil {
		return false
	}
	for _, b := range view.Blocks() {
		if len(b.Tag) == 2 && b.Tag[0] == 'h' && b.Tag[1] >= '1' && b.Tag[1] <= '6' {
			return true
		}
	}
	return false
}

// Repetition is the result of DOMRepetition.
type Repetition struct {
	Total  int
	Unique int
	Fired  bool
}

// Ratio returns Unique/Total, or 0 for an empty document.
func (r Repetition) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Unique) / float64(r.Total)
}

// DOMRepetition compares distinct tag:class signatures of blocks to the
// block count. Documents under RepetitionMinBlocks never fire.
func DOMRepetition(blocks []epub.Block, cfg Config) Repetition {
	r := Repetition{Total: len(blocks)}
	if r.Total < cfg.RepetitionMinBlocks {
		return r
	}
	seen := make(map[string]bool)
	for _, b := range blocks {
		seen[b.Tag+":"+b.Class] = true
	}
	r.Unique = len(seen)
	r.Fired = r.Ratio() < cfg.RepetitionMaxRatio
	return r
}

// EmptyRuns is the result of EmptyBlockRuns.
type EmptyRuns struct {
	Total      int // blocks scanned, table tags excluded
	Empty      int
	RunMembers int // empty blocks inside runs of EmptyRunLength or more
	LinkBlocks int
	TOCLike    bool
	Skipped    bool // fewer than EmptyMinBlocks blocks
	Fired      bool
}

// Ratio returns RunMembers/Total.
func (r EmptyRuns) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.RunMembers) / float64(r.Total)
}

// EmptyBlockRuns looks for long runs of text-less blocks, a sign of
// collapsed formatting. Link-heavy documents are treated as contents pages
// and exempt.
func EmptyBlockRuns(blocks []epub.Block, cfg Config) EmptyRuns {
	var r EmptyRuns
	run := 0
	closeRun := func() {
		if run >= cfg.EmptyRunLength {
			r.RunMembers += run
		}
		run = 0
	}
	for _, b := range blocks {
		if tableTags[strings.ToLower(b.Tag)] {
			continue
		}
		r.Total++
		if b.HasLink {
			r.LinkBlocks++
		}
		if strings.TrimSpace(b.Text) == "" {
			r.Empty++
			run++
			continue
		}
		closeRun()
	}
	closeRun()

	if r.Total < cfg.EmptyMinBlocks {
		r.Skipped = true
		return r
	}
	r.TOCLike = float64(r.LinkBlocks)/float64(r.Total) > cfg.TOCLikeLinkRatio
	if r.TOCLike {
		return r
	}
	r.Fired = r.RunMembers >= cfg.EmptyMinRunMembers && r.Ratio() > cfg.EmptyRatio
	return r
}
