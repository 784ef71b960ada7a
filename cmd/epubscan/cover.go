package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubscan/internal/batch"
	"github.com/yuanying/epubscan/internal/cover"
	"github.com/yuanying/epubscan/internal/epub"
)

func newCoverCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover",
		Short: "Work with cover images",
	}

	extract := &cobra.Command{
		Use:   "extract <folder>",
		Short: "Write a resized cover image for every EPUB under folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return errors.New("invalid --out: must not be empty")
			}
			return a.extractCovers(cmd.Context(), cmd.OutOrStdout(), args[0], out)
		},
	}
	extract.Flags().String("out", "covers", "directory the covers are written to")
	cmd.AddCommand(extract)
	return cmd
}

// extractCovers writes one cover per archive. Archives without a usable
// cover are reported and skipped.
func (a *app) extractCovers(ctx context.Context, w io.Writer, folder, outDir string) error {
	paths, err := batch.Discover(folder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	var written int
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := a.logger.With("archive", p)
		dest, err := extractCover(p, outDir, a.cfg.Cover, logger)
		if err != nil {
			logger.Warn("cover not extracted", "error", err)
			fmt.Fprintf(w, "%s: %v\n", p, err)
			continue
		}
		written++
		fmt.Fprintf(w, "%s: %s\n", p, dest)
	}
	a.logger.Info("covers extracted", "written", written, "archives", len(paths), "out", outDir)
	return nil
}

func extractCover(path, outDir string, opts cover.Options, logger *slog.Logger) (string, error) {
	archive, err := epub.Open(path)
	if err != nil {
		return "", err
	}
	defer archive.Close()

	pkg, err := archive.LoadPackage()
	if err != nil {
		return "", err
	}
	img, err := cover.Extract(archive, pkg, opts)
	if err != nil {
		return "", err
	}
	if img.Warning != "" {
		logger.Warn(img.Warning, "source", img.Source)
	}
	logger.Debug("cover resized", "source", img.Source, "method", img.Method,
		"width", img.Width, "height", img.Height, "quality", img.Quality, "bytes", len(img.Data))

	base := filepath.Base(path)
	return cover.Save(outDir, strings.TrimSuffix(base, filepath.Ext(base)), img)
}
