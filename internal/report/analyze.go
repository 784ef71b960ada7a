package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubscan/internal/anomaly"
	"github.com/yuanying/epubscan/internal/cover"
	"github.com/yuanying/epubscan/internal/detect"
	"github.com/yuanying/epubscan/internal/epub"
	"github.com/yuanying/epubscan/internal/scoring"
)

// Options configures Analyze.
type Options struct {
	Checks         []Check // nil runs every check
	CopyrightTable scoring.Table[*detect.Page]
	TitlepageTable scoring.Table[*detect.Page]
	Titlepage      detect.TitlepageOptions
	Anomaly        anomaly.Config
	CopyrightLate  int // a found copyright page past this position is flagged
	Logger         *slog.Logger
}

// DefaultOptions returns options running every check with stock tables.
func DefaultOptions() Options {
	tp := detect.DefaultTitlepageOptions()
	return Options{
		CopyrightTable: detect.CopyrightTable(),
		TitlepageTable: detect.TitlepageTable(tp),
		Titlepage:      tp,
		Anomaly:        anomaly.DefaultConfig(),
		CopyrightLate:  4,
	}
}

// Analyze opens the archive at path and runs the selected checks. Failures
// that prevent analysis are recorded in Report.Code and Report.Error; the
// returned error is non-nil only when ctx is done.
func Analyze(ctx context.Context, path string, opts Options) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := newReport(path)
	a, err := epub.Open(path)
	if err != nil {
		r.fail(err)
		return r, nil
	}
	defer a.Close()

	pkg, err := a.LoadPackage()
	if pkg != nil {
		r.Diagnostics = pkg.Diagnostics
		r.Version = pkg.Version
	}
	if err != nil {
		r.fail(err)
		return r, nil
	}
	for _, d := range r.Diagnostics {
		logger.Debug("package diagnostic", "message", d)
	}

	analyzePackage(r, a, pkg, opts, logger)
	return r, nil
}

// Failed returns the report of an archive that could not be analyzed.
func Failed(path string, err error) *Report {
	r := newReport(path)
	r.fail(err)
	return r
}

func newReport(path string) *Report {
	return &Report{Path: path, Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
}

func (r *Report) fail(err error) {
	r.Error = err.Error()
	switch {
	case errors.Is(err, epub.ErrNoPackageDocument):
		r.Code = CodeNoOPF
	case errors.Is(err, epub.ErrEmptyManifest):
		r.Code = CodeEmptyManifest
	case errors.Is(err, epub.ErrArchiveRead):
		r.Code = CodeArchiveUnreadable
	default:
		r.Code = CodeError
	}
}

// analyzePackage runs the checks concurrently over the loaded package. Each
// goroutine writes its own fields of r. A check that panics fails the report.
func analyzePackage(r *Report, a *epub.Archive, pkg *epub.Package, opts Options, logger *slog.Logger) {
	checks := newCheckSet(opts.Checks)
	cache := epub.NewContentCache(a)

	var (
		sources   epub.TOCSources
		copyright detect.Finding
		segment   anomaly.Segmentation
		double    detect.DoubleTitlepage
		empty     []anomaly.EmptyBlockFinding
		coverSize anomaly.CoverSize
		png       anomaly.PNGUsage
	)
	needTOC := checks.has(CheckCopyrightTOC) || checks.has(CheckSegmentation)
	needCopyright := checks.has(CheckCopyright) || checks.has(CheckCopyrightTOC)

	var g errgroup.Group
	if needTOC {
		start(&g, "toc", func() {
			sources = epub.ExtractTOCSources(pkg, cache)
		})
	}
	if needCopyright {
		start(&g, "copyright", func() {
			copyright = detect.FindCopyright(pkg, cache, opts.CopyrightTable, logger)
		})
	}
	if checks.has(CheckTitlepage) {
		start(&g, "titlepage", func() {
			tp := opts.Titlepage
			if tp.ImageSize == nil {
				tp.ImageSize = cover.ArchiveSizer(a)
			}
			r.Titlepage = newDetection(detect.FindTitlepage(pkg, cache, opts.TitlepageTable, tp, logger))
		})
	}
	if checks.has(CheckDoubleTitlepage) {
		start(&g, "double-titlepage", func() {
			double = detect.CheckDoubleTitlepage(pkg, cache)
		})
	}
	if checks.has(CheckEmptyBlocks) {
		start(&g, "empty-blocks", func() {
			empty = anomaly.ScanEmptyBlocks(pkg, cache, opts.Anomaly, logger)
		})
	}
	if checks.has(CheckCSSLinks) {
		start(&g, "css-links", func() {
			r.MissingCSS = anomaly.ScanStylesheets(pkg, cache, logger)
		})
	}
	if checks.has(CheckCoverSize) {
		start(&g, "cover-size", func() {
			coverSize = anomaly.ScanCoverSize(pkg, a, opts.Anomaly)
		})
	}
	if checks.has(CheckWatermarks) {
		start(&g, "watermarks", func() {
			r.Watermarks = anomaly.ScanWatermarks(pkg, cache, opts.Anomaly, logger)
		})
	}
	if checks.has(CheckPNG) {
		start(&g, "png", func() {
			png = anomaly.ScanPNG(a, opts.Anomaly)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("check failed", "error", err)
		r.fail(err)
		return
	}

	// The segmentation scan reads the primary TOC.
	if checks.has(CheckSegmentation) {
		toc := sources.Primary()
		r.TOCSource = toc.Source
		segment = anomaly.ScanSegmentation(pkg, cache, toc, opts.Anomaly, logger)
	}

	r.collect(checks, opts, pkg, sources, copyright, segment, double, empty, coverSize, png)
}

// start runs check on g. A panic becomes an error naming the check.
func start(g *errgroup.Group, name string, check func()) {
	g.Go(func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("%s check panicked: %v", name, v)
			}
		}()
		check()
		return nil
	})
}

// collect turns the raw results into report fields and flags, in
// AllChecks order.
func (r *Report) collect(checks checkSet, opts Options, pkg *epub.Package, sources epub.TOCSources,
	copyright detect.Finding, segment anomaly.Segmentation, double detect.DoubleTitlepage,
	empty []anomaly.EmptyBlockFinding, coverSize anomaly.CoverSize, png anomaly.PNGUsage) {

	if checks.has(CheckCopyright) {
		r.Copyright = newDetection(copyright)
		switch {
		case copyright.Outcome != scoring.Found:
			r.flag("copyright_" + copyright.Outcome.String())
		case opts.CopyrightLate > 0 && copyright.Position > opts.CopyrightLate:
			r.flag(FlagCopyrightLate)
		}
	}
	if checks.has(CheckCopyrightTOC) && copyright.Outcome == scoring.Found {
		r.CopyrightTOC = detect.CopyrightInTOC(sources, copyright.Path)
		if len(r.CopyrightTOC) > 0 {
			r.flag(FlagCopyrightInTOC)
		}
	}
	if checks.has(CheckTitlepage) && r.Titlepage.Outcome != scoring.Found {
		r.flag("titlepage_" + r.Titlepage.Outcome.String())
	}
	if checks.has(CheckDoubleTitlepage) && !double.Skipped {
		r.DoubleTitlepage = &DoubleTitlepage{
			First:          double.First,
			Second:         double.Second,
			FirstHasImage:  double.FirstHasImage,
			SecondHasImage: double.SecondHasImage,
		}
		if double.Fired() {
			r.flag(FlagDoubleTitlepage)
		}
	}
	if checks.has(CheckSegmentation) {
		r.Segmentation = newSegmentation(segment)
		for _, v := range segment.Verdicts {
			r.flag(v)
		}
	}
	if checks.has(CheckEmptyBlocks) && len(empty) > 0 {
		for _, f := range empty {
			r.EmptyBlocks = append(r.EmptyBlocks, EmptyBlocks{
				Path:       f.Path,
				Blocks:     f.Total,
				Empty:      f.Empty,
				RunMembers: f.RunMembers,
				Ratio:      f.Ratio(),
			})
		}
		r.flag(FlagEmptyBlocks)
	}
	if checks.has(CheckCSSLinks) && len(r.MissingCSS) > 0 {
		r.flag(FlagMissingStylesheets)
	}
	if checks.has(CheckCoverSize) && coverSize.Cover != nil {
		r.Cover = &Cover{Path: coverSize.Cover.Path, Method: coverSize.Cover.DetectionMethod, Bytes: coverSize.Bytes}
		if coverSize.Fired {
			r.flag(FlagOversizedCover)
		}
	}
	if checks.has(CheckVersion) {
		r.VersionClass = anomaly.ClassifyVersion(pkg.Version)
		if r.VersionClass == anomaly.VersionIrregular {
			r.flag(FlagIrregularVersion)
		}
	}
	if checks.has(CheckWatermarks) && len(r.Watermarks) > 0 {
		r.flag(FlagWatermark)
	}
	if checks.has(CheckPNG) && png.Count > 0 {
		r.PNG = &PNG{Count: png.Count, Bytes: png.Bytes}
		if png.Fired {
			r.flag(FlagHeavyPNG)
		}
	}
}
