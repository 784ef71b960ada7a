// Package config loads epubscan settings from defaults, an optional YAML
// file and EPUBSCAN_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yuanying/epubscan/internal/anomaly"
	"github.com/yuanying/epubscan/internal/cover"
	"github.com/yuanying/epubscan/internal/detect"
	"github.com/yuanying/epubscan/internal/report"
	"github.com/yuanying/epubscan/internal/scoring"
)

// EnvPrefix prefixes environment overrides, e.g. EPUBSCAN_ANOMALY_PNG_MAX_BYTES.
const EnvPrefix = "EPUBSCAN"

// FileName is the config file looked up when none is given.
const FileName = "epubscan.yaml"

// Config is the complete epubscan configuration.
type Config struct {
	Workers        int             `mapstructure:"workers" yaml:"workers"`
	Output         string          `mapstructure:"output" yaml:"output"`
	LastFolderFile string          `mapstructure:"last_folder_file" yaml:"last_folder_file"`
	Checks         []string        `mapstructure:"checks" yaml:"checks"`
	Log            LogConfig       `mapstructure:"log" yaml:"log"`
	Copyright      CopyrightConfig `mapstructure:"copyright" yaml:"copyright"`
	Titlepage      TitlepageConfig `mapstructure:"titlepage" yaml:"titlepage"`
	Anomaly        anomaly.Config  `mapstructure:"anomaly" yaml:"anomaly"`
	Cover          cover.Options   `mapstructure:"cover" yaml:"cover"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ScoringConfig overrides parts of a signal table. Unset fields keep the
// stock values.
type ScoringConfig struct {
	Weights   map[string]int `mapstructure:"weights" yaml:"weights,omitempty"`
	Threshold *int           `mapstructure:"threshold" yaml:"threshold,omitempty"`
	Margin    *float64       `mapstructure:"margin" yaml:"margin,omitempty"`
}

// CopyrightConfig tunes copyright detection.
type CopyrightConfig struct {
	ScoringConfig `mapstructure:",squash" yaml:",inline"`
	LatePosition  int `mapstructure:"late_position" yaml:"late_position"`
}

// TitlepageConfig tunes titlepage detection.
type TitlepageConfig struct {
	ScoringConfig  `mapstructure:",squash" yaml:",inline"`
	Candidates     int `mapstructure:"candidates" yaml:"candidates"`
	LargeImageSide int `mapstructure:"large_image_side" yaml:"large_image_side"`
	ShortText      int `mapstructure:"short_text" yaml:"short_text"`
}

// Default returns the stock configuration.
func Default() *Config {
	tp := detect.DefaultTitlepageOptions()
	checks := make([]string, len(report.AllChecks))
	for i, c := range report.AllChecks {
		checks[i] = string(c)
	}
	return &Config{
		Workers:        4,
		Output:         report.FormatText,
		LastFolderFile: ".last_folder.txt",
		Checks:         checks,
		Log:            LogConfig{Level: "info", Format: "text"},
		Copyright:      CopyrightConfig{LatePosition: report.DefaultOptions().CopyrightLate},
		Titlepage: TitlepageConfig{
			Candidates:     tp.Candidates,
			LargeImageSide: tp.LargeImageSide,
			ShortText:      tp.ShortText,
		},
		Anomaly: anomaly.DefaultConfig(),
		Cover:   cover.DefaultOptions(),
	}
}

// Load reads the configuration. An explicit cfgFile must exist; otherwise
// ./epubscan.yaml and $HOME/.config/epubscan/epubscan.yaml are tried and
// a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/epubscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every leaf of cfg under its dotted key so that
// environment variables can override nested values.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			walkDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks value ranges. Errors name the offending key.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, key, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: "+format, append([]any{key}, args...)...))
		}
	}

	check(c.Workers >= 0, "workers", "must be >= 0, got %d", c.Workers)
	check(slices.Contains(report.Formats, c.Output), "output", "must be one of %s, got %q", strings.Join(report.Formats, ", "), c.Output)
	check(c.LastFolderFile != "", "last_folder_file", "must not be empty")
	check(slices.Contains(logLevels, strings.ToLower(c.Log.Level)), "log.level", "must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level)
	check(slices.Contains(logFormats, strings.ToLower(c.Log.Format)), "log.format", "must be one of %s, got %q", strings.Join(logFormats, ", "), c.Log.Format)
	if _, err := report.ParseChecks(c.Checks); err != nil {
		errs = append(errs, fmt.Errorf("checks: %w", err))
	}

	check(c.Copyright.LatePosition >= 0, "copyright.late_position", "must be >= 0, got %d", c.Copyright.LatePosition)
	if _, err := c.CopyrightTable(); err != nil {
		errs = append(errs, fmt.Errorf("copyright: %w", err))
	}
	check(c.Titlepage.Candidates > 0, "titlepage.candidates", "must be > 0, got %d", c.Titlepage.Candidates)
	check(c.Titlepage.LargeImageSide > 0, "titlepage.large_image_side", "must be > 0, got %d", c.Titlepage.LargeImageSide)
	check(c.Titlepage.ShortText > 0, "titlepage.short_text", "must be > 0, got %d", c.Titlepage.ShortText)
	if _, err := c.TitlepageTable(); err != nil {
		errs = append(errs, fmt.Errorf("titlepage: %w", err))
	}

	a := c.Anomaly
	for key, ratio := range map[string]float64{
		"anomaly.largest_share":         a.LargestShare,
		"anomaly.collapse_min_coverage": a.CollapseMinCoverage,
		"anomaly.repetition_max_ratio":  a.RepetitionMaxRatio,
		"anomaly.empty_ratio":           a.EmptyRatio,
		"anomaly.toc_like_link_ratio":   a.TOCLikeLinkRatio,
	} {
		check(ratio >= 0 && ratio <= 1, key, "must be within [0, 1], got %v", ratio)
	}
	check(a.MaxDocBytes > 0, "anomaly.max_doc_bytes", "must be > 0, got %d", a.MaxDocBytes)
	check(a.EmptyRunLength > 0, "anomaly.empty_run_length", "must be > 0, got %d", a.EmptyRunLength)
	check(a.CoverMaxBytes > 0, "anomaly.cover_max_bytes", "must be > 0, got %d", a.CoverMaxBytes)
	check(a.PNGMaxBytes > 0, "anomaly.png_max_bytes", "must be > 0, got %d", a.PNGMaxBytes)

	o := c.Cover
	check(o.MinDimension > 0, "cover.min_dimension", "must be > 0, got %d", o.MinDimension)
	check(o.MaxDimension >= o.MinDimension, "cover.max_dimension", "must be >= cover.min_dimension, got %d", o.MaxDimension)
	check(o.Quality >= 1 && o.Quality <= 100, "cover.quality", "must be within [1, 100], got %d", o.Quality)
	check(o.MinQuality >= 1 && o.MinQuality <= o.Quality, "cover.min_quality", "must be within [1, cover.quality], got %d", o.MinQuality)
	check(o.QualityStep > 0, "cover.quality_step", "must be > 0, got %d", o.QualityStep)
	check(o.DimensionStep > 0 && o.DimensionStep < 1, "cover.dimension_step", "must be within (0, 1), got %v", o.DimensionStep)
	check(o.MaxBytes > 0, "cover.max_bytes", "must be > 0, got %d", o.MaxBytes)

	// map iteration above is unordered
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

// CopyrightTable returns the copyright table with configured overrides.
func (c *Config) CopyrightTable() (scoring.Table[*detect.Page], error) {
	s := c.Copyright.ScoringConfig
	return detect.CopyrightTable().WithOverrides(s.Weights, s.Threshold, s.Margin)
}

// TitlepageOptions returns the configured titlepage candidate settings.
func (c *Config) TitlepageOptions() detect.TitlepageOptions {
	return detect.TitlepageOptions{
		Candidates:     c.Titlepage.Candidates,
		LargeImageSide: c.Titlepage.LargeImageSide,
		ShortText:      c.Titlepage.ShortText,
	}
}

// TitlepageTable returns the titlepage table with configured overrides.
func (c *Config) TitlepageTable() (scoring.Table[*detect.Page], error) {
	s := c.Titlepage.ScoringConfig
	return detect.TitlepageTable(c.TitlepageOptions()).WithOverrides(s.Weights, s.Threshold, s.Margin)
}

// ReportOptions builds the analysis options. checks, when non-empty,
// replaces the configured check list.
func (c *Config) ReportOptions(checks []string, logger *slog.Logger) (report.Options, error) {
	if len(checks) == 0 {
		checks = c.Checks
	}
	selected, err := report.ParseChecks(checks)
	if err != nil {
		return report.Options{}, err
	}
	copyright, err := c.CopyrightTable()
	if err != nil {
		return report.Options{}, err
	}
	titlepage, err := c.TitlepageTable()
	if err != nil {
		return report.Options{}, err
	}
	return report.Options{
		Checks:         selected,
		CopyrightTable: copyright,
		TitlepageTable: titlepage,
		Titlepage:      c.TitlepageOptions(),
		Anomaly:        c.Anomaly,
		CopyrightLate:  c.Copyright.LatePosition,
		Logger:         logger,
	}, nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# epubscan configuration
# Every key can be overridden with an EPUBSCAN_ environment variable,
# e.g. EPUBSCAN_WORKERS=8 or EPUBSCAN_ANOMALY_PNG_MAX_BYTES=2097152.
# Signal weights are set per table:
#   copyright:
#     weights:
#       filename: 4

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
