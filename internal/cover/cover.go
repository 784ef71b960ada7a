// Package cover measures and extracts cover images.
package cover

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/yuanying/epubscan/internal/epub"
)

const (
	defaultMaxDimension  = 1200
	defaultMinDimension  = 400
	defaultMaxBytes      = 400 * 1024
	defaultQuality       = 90
	defaultMinQuality    = 70
	defaultQualityStep   = 5
	defaultDimensionStep = 0.95
	defaultMaxPixels     = 100 * 1000 * 1000 // 100 megapixels
)

// ErrNoCover is returned when a package has no detectable cover image.
var ErrNoCover = errors.New("no cover image found")

// Options controls cover resizing and re-encoding.
type Options struct {
	MaxDimension  int     `mapstructure:"max_dimension" yaml:"max_dimension"`
	MinDimension  int     `mapstructure:"min_dimension" yaml:"min_dimension"`
	MaxBytes      int     `mapstructure:"max_bytes" yaml:"max_bytes"`
	Quality       int     `mapstructure:"quality" yaml:"quality"`
	MinQuality    int     `mapstructure:"min_quality" yaml:"min_quality"`
	QualityStep   int     `mapstructure:"quality_step" yaml:"quality_step"`
	DimensionStep float64 `mapstructure:"dimension_step" yaml:"dimension_step"`
	ConvertToJPEG bool    `mapstructure:"convert_to_jpeg" yaml:"convert_to_jpeg"`
	MaxPixels     int     `mapstructure:"max_pixels" yaml:"max_pixels"` // decode limit (width * height)
}

// DefaultOptions returns the stock cover settings.
func DefaultOptions() Options {
	return Options{
		MaxDimension:  defaultMaxDimension,
		MinDimension:  defaultMinDimension,
		MaxBytes:      defaultMaxBytes,
		Quality:       defaultQuality,
		MinQuality:    defaultMinQuality,
		QualityStep:   defaultQualityStep,
		DimensionStep: defaultDimensionStep,
		MaxPixels:     defaultMaxPixels,
	}
}

// DecodeSize decodes only the image header and returns its size and format.
func DecodeSize(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// ArchiveSizer returns a function reporting the pixel size of an archive
// entry, used to measure titlepage images.
func ArchiveSizer(a *epub.Archive) func(archivePath string) (int, int, error) {
	return func(archivePath string) (int, int, error) {
		data, err := a.ReadFile(archivePath)
		if err != nil {
			return 0, 0, err
		}
		w, h, _, err := DecodeSize(data)
		return w, h, err
	}
}

// Image is a re-encoded cover.
// Warning is set when the size limit could not be met; Data is still usable.
type Image struct {
	Source  string // archive path of the original image
	Method  string // how the cover was detected
	Data    []byte
	Format  imaging.Format
	Width   int
	Height  int
	Quality int // JPEG quality used, 0 for other formats
	Warning string
}

// Ext returns the file extension matching Format.
func (img Image) Ext() string {
	switch img.Format {
	case imaging.PNG:
		return ".png"
	case imaging.GIF:
		return ".gif"
	default:
		return ".jpg"
	}
}

// Extract locates the cover of pkg and re-encodes it within opts.
func Extract(a *epub.Archive, pkg *epub.Package, opts Options) (Image, error) {
	info := pkg.DetectCover()
	if info == nil {
		return Image{}, ErrNoCover
	}
	data, err := a.ReadFile(info.Path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read cover %s: %w", info.Path, err)
	}
	out, err := Resize(data, targetFormat(info.Path, opts), opts)
	if err != nil {
		return Image{}, fmt.Errorf("failed to resize cover %s: %w", info.Path, err)
	}
	out.Source = info.Path
	out.Method = info.DetectionMethod
	return out, nil
}

// targetFormat keeps JPEG, PNG and GIF covers in their format and turns
// everything else into JPEG.
func targetFormat(archivePath string, opts Options) imaging.Format {
	if opts.ConvertToJPEG {
		return imaging.JPEG
	}
	switch strings.ToLower(path.Ext(archivePath)) {
	case ".png":
		return imaging.PNG
	case ".gif":
		return imaging.GIF
	default:
		return imaging.JPEG
	}
}

// Resize decodes data honoring EXIF orientation, then shrinks and
// re-encodes it until it fits MaxBytes. Each attempt scales the bounding box
// by DimensionStep and lowers JPEG quality by QualityStep, never below
// MinQuality. When MinDimension is reached the image is written at
// MinDimension and MinQuality regardless of size.
func Resize(data []byte, format imaging.Format, opts Options) (Image, error) {
	opts = withDefaults(opts)

	if w, h, _, err := DecodeSize(data); err == nil && opts.MaxPixels > 0 && w*h > opts.MaxPixels {
		return Image{}, fmt.Errorf("image too large to decode: %dx%d", w, h)
	}
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}

	dim := opts.MaxDimension
	quality := opts.Quality
	for dim >= opts.MinDimension && quality >= opts.MinQuality {
		out, err := encode(src, format, dim, quality)
		if err != nil {
			return Image{}, err
		}
		if len(out.Data) <= opts.MaxBytes {
			return out, nil
		}
		dim = int(float64(dim) * opts.DimensionStep)
		if format == imaging.JPEG {
			quality = max(opts.MinQuality, quality-opts.QualityStep)
		}
	}

	out, err := encode(src, format, opts.MinDimension, opts.MinQuality)
	if err != nil {
		return Image{}, err
	}
	if len(out.Data) > opts.MaxBytes {
		out.Warning = fmt.Sprintf("cover size %d exceeds limit %d bytes at %dpx", len(out.Data), opts.MaxBytes, opts.MinDimension)
	}
	return out, nil
}

func encode(src image.Image, format imaging.Format, dim, quality int) (Image, error) {
	img := imaging.Fit(src, dim, dim, imaging.Lanczos)

	var buf bytes.Buffer
	var encOpts []imaging.EncodeOption
	switch format {
	case imaging.JPEG:
		encOpts = append(encOpts, imaging.JPEGQuality(quality))
	case imaging.PNG:
		encOpts = append(encOpts, imaging.PNGCompressionLevel(png.BestCompression))
		quality = 0
	default:
		quality = 0
	}
	if err := imaging.Encode(&buf, img, format, encOpts...); err != nil {
		return Image{}, fmt.Errorf("%s encode failed: %w", format, err)
	}

	b := img.Bounds()
	return Image{Data: buf.Bytes(), Format: format, Width: b.Dx(), Height: b.Dy(), Quality: quality}, nil
}

func withDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = d.MaxDimension
	}
	if opts.MinDimension <= 0 || opts.MinDimension > opts.MaxDimension {
		opts.MinDimension = min(d.MinDimension, opts.MaxDimension)
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = d.MaxBytes
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = d.Quality
	}
	if opts.MinQuality <= 0 || opts.MinQuality > opts.Quality {
		opts.MinQuality = min(d.MinQuality, opts.Quality)
	}
	if opts.QualityStep <= 0 {
		opts.QualityStep = d.QualityStep
	}
	if opts.DimensionStep <= 0 || opts.DimensionStep >= 1 {
		opts.DimensionStep = d.DimensionStep
	}
	return opts
}

// Save writes img into dir as stem plus the extension of its format and
// returns the written path.
func Save(dir, stem string, img Image) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	p := filepath.Join(dir, stem+img.Ext())
	if err := os.WriteFile(p, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}
	return p, nil
}
