package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubscan/internal/epub"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.epub>",
		Short: "Dump the package model, TOC and cover of one EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := epub.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			pkg, err := archive.LoadPackage()
			if pkg == nil {
				return err
			}
			if err != nil {
				a.logger.Warn("package loaded with errors", "error", err)
			}
			writeInspection(cmd.OutOrStdout(), archive, pkg)
			return nil
		},
	}
}

// writeInspection prints the package as seen by the analyzers.
func writeInspection(w io.Writer, a *epub.Archive, pkg *epub.Package) {
	cache := epub.NewContentCache(a)

	fmt.Fprintf(w, "Package:   %s (version %q)\n", pkg.Path, pkg.Version)
	fmt.Fprintf(w, "Namespace: %s\n", pkg.Namespace)
	fmt.Fprintf(w, "Title:     %s\n", pkg.Metadata.Title)
	fmt.Fprintf(w, "Creators:  %s\n", strings.Join(pkg.Metadata.Creators, "; "))

	items := pkg.ItemsInOrder()
	fmt.Fprintf(w, "\nManifest (%d items):\n", len(items))
	for _, item := range items {
		size, ok := a.Size(item.Path)
		state := fmt.Sprintf("%d bytes", size)
		if item.Path == "" {
			state = "rejected href " + item.Href
		} else if !ok {
			state = "missing"
		}
		props := ""
		if len(item.Properties) > 0 {
			props = " [" + strings.Join(item.Properties, " ") + "]"
		}
		fmt.Fprintf(w, "  %-12s %-40s %-28s %s%s\n", item.ID, item.Path, item.MediaType, state, props)
	}

	fmt.Fprintf(w, "\nSpine (%d itemrefs):\n", len(pkg.Spine))
	for _, d := range pkg.SpineDocuments() {
		linear := ""
		if !d.Linear {
			linear = " (linear=no)"
		}
		fmt.Fprintf(w, "  %3d %s%s\n", d.Index+1, d.Item.Path, linear)
	}

	sources := epub.ExtractTOCSources(pkg, cache)
	fmt.Fprintf(w, "\nTable of contents (primary: %s):\n", orNone(string(sources.Primary().Source)))
	for _, toc := range sources.All() {
		fmt.Fprintf(w, "  %s: %d entries, %d targets\n", toc.Source, len(toc.Entries), len(toc.Targets()))
		for _, target := range toc.Targets() {
			fmt.Fprintf(w, "    %s\n", target)
		}
		for _, d := range toc.Diagnostics {
			fmt.Fprintf(w, "    ! %s\n", d)
		}
	}

	if c := pkg.DetectCover(); c != nil {
		size, _ := a.Size(c.Path)
		fmt.Fprintf(w, "\nCover: %s (%s, %s, %d bytes)\n", c.Path, c.MediaType, c.DetectionMethod, size)
	} else {
		fmt.Fprintln(w, "\nCover: none")
	}

	if len(pkg.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics:")
		for _, d := range pkg.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
