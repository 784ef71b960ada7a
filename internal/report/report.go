// Package report runs the selected checks over one archive and renders the
// per-archive results.
package report

import (
	"github.com/yuanying/epubscan/internal/anomaly"
	"github.com/yuanying/epubscan/internal/detect"
	"github.com/yuanying/epubscan/internal/epub"
	"github.com/yuanying/epubscan/internal/scoring"
)

// Diagnostic codes for archives that could not be analyzed.
const (
	CodeNoOPF             = "no_opf"
	CodeEmptyManifest     = "empty_manifest"
	CodeArchiveUnreadable = "archive_unreadable"
	CodeError             = "error"
)

// Flags raised by the checks.
const (
	FlagCopyrightLate      = "copyright_late"
	FlagCopyrightInTOC     = "copyright_in_toc"
	FlagDoubleTitlepage    = "double_titlepage"
	FlagEmptyBlocks        = "empty_blocks"
	FlagMissingStylesheets = "missing_stylesheets"
	FlagOversizedCover     = "oversized_cover"
	FlagIrregularVersion   = "irregular_version"
	FlagWatermark          = "watermark"
	FlagHeavyPNG           = "heavy_png"
)

// Report is the result of analyzing one archive.
type Report struct {
	Path        string   `json:"path" yaml:"path"`
	Name        string   `json:"name" yaml:"name"`
	Code        string   `json:"code,omitempty" yaml:"code,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
	Flags       []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`

	Version         string                 `json:"version,omitempty" yaml:"version,omitempty"`
	VersionClass    anomaly.VersionClass   `json:"version_class,omitempty" yaml:"version_class,omitempty"`
	TOCSource       epub.TOCSource         `json:"toc_source,omitempty" yaml:"toc_source,omitempty"`
	Copyright       *Detection             `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	CopyrightTOC    []epub.TOCSource       `json:"copyright_toc,omitempty" yaml:"copyright_toc,omitempty"`
	Titlepage       *Detection             `json:"titlepage,omitempty" yaml:"titlepage,omitempty"`
	DoubleTitlepage *DoubleTitlepage       `json:"double_titlepage,omitempty" yaml:"double_titlepage,omitempty"`
	Segmentation    *Segmentation          `json:"segmentation,omitempty" yaml:"segmentation,omitempty"`
	EmptyBlocks     []EmptyBlocks          `json:"empty_blocks,omitempty" yaml:"empty_blocks,omitempty"`
	MissingCSS      []string               `json:"missing_css,omitempty" yaml:"missing_css,omitempty"`
	Cover           *Cover                 `json:"cover,omitempty" yaml:"cover,omitempty"`
	Watermarks      []anomaly.WatermarkHit `json:"watermarks,omitempty" yaml:"watermarks,omitempty"`
	PNG             *PNG                   `json:"png,omitempty" yaml:"png,omitempty"`
}

// Clean reports whether the archive was analyzed and raised no flag.
func (r *Report) Clean() bool {
	return r.Code == "" && len(r.Flags) == 0
}

func (r *Report) flag(f string) {
	r.Flags = append(r.Flags, f)
}

// Detection is a classifier outcome.
type Detection struct {
	Outcome     scoring.Outcome `json:"outcome" yaml:"outcome"`
	Path        string          `json:"path,omitempty" yaml:"path,omitempty"`
	Position    int             `json:"position,omitempty" yaml:"position,omitempty"`
	Total       int             `json:"total" yaml:"total"`
	Score       int             `json:"score" yaml:"score"`
	SecondScore int             `json:"second_score" yaml:"second_score"`
	Leader      string          `json:"leader,omitempty" yaml:"leader,omitempty"` // best-scoring candidate
	Matched     []string        `json:"matched,omitempty" yaml:"matched,omitempty"`
}

func newDetection(f detect.Finding) *Detection {
	d := &Detection{
		Outcome:     f.Outcome,
		Path:        f.Path,
		Position:    f.Position,
		Total:       f.Total(),
		Score:       f.BestScore,
		SecondScore: f.SecondScore,
		Matched:     f.Matched,
	}
	if f.Leader >= 0 && f.Leader < len(f.Candidates) {
		d.Leader = f.Candidates[f.Leader]
	}
	return d
}

// DoubleTitlepage reports the first two linear documents.
type DoubleTitlepage struct {
	First          string `json:"first" yaml:"first"`
	Second         string `json:"second" yaml:"second"`
	FirstHasImage  bool   `json:"first_has_image" yaml:"first_has_image"`
	SecondHasImage bool   `json:"second_has_image" yaml:"second_has_image"`
}

// Segmentation summarizes the spine and TOC shape.
type Segmentation struct {
	SpineFiles int      `json:"spine_files" yaml:"spine_files"`
	Flat       bool     `json:"flat" yaml:"flat"`
	MachineTOC bool     `json:"machine_toc" yaml:"machine_toc"`
	Collapse   bool     `json:"toc_collapse" yaml:"toc_collapse"`
	Headings   bool     `json:"headings" yaml:"headings"`
	Middle     string   `json:"middle,omitempty" yaml:"middle,omitempty"`
	Largest    string   `json:"largest,omitempty" yaml:"largest,omitempty"`
	Unique     int      `json:"unique_blocks" yaml:"unique_blocks"`
	Blocks     int      `json:"blocks" yaml:"blocks"`
	Verdicts   []string `json:"verdicts,omitempty" yaml:"verdicts,omitempty"`
}

func newSegmentation(s anomaly.Segmentation) *Segmentation {
	return &Segmentation{
		SpineFiles: len(s.SpineFiles),
		Flat:       s.Flat,
		MachineTOC: s.MachineTOC,
		Collapse:   s.Collapse,
		Headings:   s.Headings,
		Middle:     s.Middle,
		Largest:    s.Largest,
		Unique:     s.Repetition.Unique,
		Blocks:     s.Repetition.Total,
		Verdicts:   s.Verdicts,
	}
}

// EmptyBlocks is one document with long runs of empty blocks.
type EmptyBlocks struct {
	Path       string  `json:"path" yaml:"path"`
	Blocks     int     `json:"blocks" yaml:"blocks"`
	Empty      int     `json:"empty" yaml:"empty"`
	RunMembers int     `json:"run_members" yaml:"run_members"`
	Ratio      float64 `json:"ratio" yaml:"ratio"`
}

// Cover is the detected cover and its entry size.
type Cover struct {
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method" yaml:"method"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
}

// PNG summarizes PNG entries.
type PNG struct {
	Count int   `json:"count" yaml:"count"`
	Bytes int64 `json:"bytes" yaml:"bytes"`
}
