// Package batch analyzes every archive under a folder on a bounded pool.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubscan/internal/report"
)

// Options configures a Runner.
type Options struct {
	Workers int // defaults to runtime.NumCPU()
	Report  report.Options
	Logger  *slog.Logger

	// Progress, when set, is called once per finished archive. Calls are
	// serialized.
	Progress func(done, total int, r *report.Report)

	// Analyze defaults to report.Analyze.
	Analyze func(ctx context.Context, path string, opts report.Options) (*report.Report, error)
}

// Runner analyzes batches of archives.
type Runner struct {
	opts   Options
	runID  string
	logger *slog.Logger
}

// NewRunner creates a runner with a fresh run id.
func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Analyze == nil {
		opts.Analyze = report.Analyze
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Runner{opts: opts, runID: id, logger: logger.With("run", id)}
}

// RunID identifies this runner in log records.
func (r *Runner) RunID() string {
	return r.runID
}

// Discover returns the .epub files under root in lexical order. A root
// that is itself an .epub file is returned as is.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if !isEPUB(root) {
			return nil, fmt.Errorf("%s is not an .epub file", root)
		}
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isEPUB(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func isEPUB(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".epub")
}

// Run discovers the archives under root and analyzes them.
func (r *Runner) Run(ctx context.Context, root string) ([]*report.Report, error) {
	paths, err := Discover(root)
	if err != nil {
		return nil, err
	}
	r.logger.Info("scanning folder", "folder", root, "archives", len(paths), "workers", r.opts.Workers)
	return r.RunFiles(ctx, paths)
}

// RunFiles analyzes paths and returns their reports in input order. An
// archive that cannot be analyzed yields a report with a diagnostic code
// and never stops the batch. Cancelling ctx stops scheduling; the reports
// finished so far are returned with the context error.
func (r *Runner) RunFiles(ctx context.Context, paths []string) ([]*report.Report, error) {
	start := time.Now()
	results := make([]*report.Report, len(paths))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			logger := r.logger.With("archive", p)
			opts := r.opts.Report
			opts.Logger = logger

			rep, err := r.analyze(gctx, p, opts)
			if err != nil {
				return err
			}
			results[i] = rep
			switch {
			case rep.Code != "":
				logger.Warn("archive not analyzed", "code", rep.Code, "error", rep.Error)
			case len(rep.Flags) > 0:
				logger.Debug("archive flagged", "flags", rep.Flags)
			default:
				logger.Debug("archive clean")
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if r.opts.Progress != nil {
				r.opts.Progress(done, len(paths), rep)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	reports := make([]*report.Report, 0, len(results))
	for _, rep := range results {
		if rep != nil {
			reports = append(reports, rep)
		}
	}
	s := Summarize(reports)
	r.logger.Info("scan finished",
		"archives", s.Total, "flagged", s.Flagged, "failed", s.Failed,
		"duration", time.Since(start).Round(time.Millisecond))
	return reports, err
}

// analyze runs report.Analyze on one archive. A panic becomes a failed
// report so the rest of the batch keeps going.
func (r *Runner) analyze(ctx context.Context, path string, opts report.Options) (rep *report.Report, err error) {
	defer func() {
		if v := recover(); v != nil {
			rep, err = report.Failed(path, fmt.Errorf("analysis panicked: %v", v)), nil
		}
	}()
	return r.opts.Analyze(ctx, path, opts)
}

// Summary counts reports by state.
type Summary struct {
	Total   int
	Clean   int
	Flagged int
	Failed  int
}

// Summarize counts reports by state.
func Summarize(reports []*report.Report) Summary {
	s := Summary{Total: len(reports)}
	for _, r := range reports {
		switch {
		case r.Code != "":
			s.Failed++
		case len(r.Flags) > 0:
			s.Flagged++
		default:
			s.Clean++
		}
	}
	return s
}
