package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubscan/internal/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "epubscan",
		Short: "Inspect EPUB files and flag structural problems",
		Long: `epubscan walks a folder of EPUB ebooks and reports, per book, what
a careful editor would look for: where the copyright page and titlepage
are, whether the book can be split into chapters, and anomalies such as
empty paragraph runs, missing stylesheets, oversized covers, heavy PNG
images, odd package versions and leftover watermarks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default: ./epubscan.yaml or ~/.config/epubscan/epubscan.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default from config)")
	flags.String("log-format", "", "log format: text or json (default from config)")
	flags.BoolP("verbose", "v", false, "enable debug logging (same as --log-level debug)")

	root.AddCommand(newScanCmd(a), newInspectCmd(a), newCoverCmd(a), newConfigCmd())
	return root
}

// init loads the configuration and builds the logger. Flags win over the
// configuration file.
func (a *app) init(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		format = v
	}
	if !isValidLogLevel(level) {
		return fmt.Errorf("invalid --log-level %q: must be one of debug, info, warn, error", level)
	}
	if !isValidLogFormat(format) {
		return fmt.Errorf("invalid --log-format %q: must be text or json", format)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}

	a.cfg = cfg
	a.logger = buildLogger(cmd.ErrOrStderr(), level, format)
	if cfg.File != "" {
		a.logger.Debug("configuration loaded", "file", cfg.File)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	default:
		return false
	}
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
