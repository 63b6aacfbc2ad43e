package converter

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// Extension is the file extension used for output files, without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) imaging() (imaging.Format, error) {
	switch f {
	case FormatPNG:
		return imaging.PNG, nil
	case FormatJPEG:
		return imaging.JPEG, nil
	case FormatGIF:
		return imaging.GIF, nil
	case FormatTIFF:
		return imaging.TIFF, nil
	case FormatBMP:
		return imaging.BMP, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

func ParseFilter(s string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(s) {
	case "", "lanczos":
		return imaging.Lanczos, nil
	case "catmullrom":
		return imaging.CatmullRom, nil
	case "linear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("%w: %s", ErrUnsupportedFilter, s)
	}
}

// scaleEpsilon absorbs binary representation error so that factors such as
// 0.29 floor to the decimal result (100*0.29 is 28.999999999999996).
const scaleEpsilon = 1e-9

// ScaledSize applies factor to both dimensions, rounding down and never
// going below one pixel.
func ScaledSize(width, height int, factor float64) (int, int) {
	w := int(math.Floor(float64(width)*factor + scaleEpsilon))
	h := int(math.Floor(float64(height)*factor + scaleEpsilon))
	return max(1, w), max(1, h)
}

type Converter struct {
	logger *zap.Logger
}

func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{logger: logger}
}

func (c *Converter) Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer file.Close()

	fileType, err := DetectFileType(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, filepath.Base(path), err)
	}

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, filepath.Base(path), err)
	}

	c.logger.Debug("Image decoded",
		zap.String("path", path),
		zap.String("type", string(fileType)),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)

	return img, nil
}

func (c *Converter) Resize(src image.Image, factor float64, filter imaging.ResampleFilter) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrResize)
	}
	if factor <= 0 || factor > 1 {
		return nil, fmt.Errorf("%w: factor %v out of range (0,1]", ErrResize, factor)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrResize)
	}

	width, height := ScaledSize(bounds.Dx(), bounds.Dy(), factor)

	c.logger.Debug("Resizing image",
		zap.Int("src_width", bounds.Dx()),
		zap.Int("src_height", bounds.Dy()),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	return imaging.Resize(src, width, height, filter), nil
}

// Save encodes img into path. The data goes to a temporary file in the
// same directory first, so an existing file is replaced atomically.
func (c *Converter) Save(img image.Image, path string, format Format) error {
	imgFormat, err := format.imaging()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if err := imaging.Encode(tmp, img, imgFormat, imaging.JPEGQuality(85)); err != nil {
		tmp.Close()
		c.logger.Error("Failed to encode image",
			zap.String("path", path),
			zap.String("format", string(format)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	c.logger.Debug("Image saved",
		zap.String("output", path),
		zap.String("format", string(format)),
	)

	return nil
}
