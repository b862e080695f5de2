// Package images decodes raster images into the pixel layout PDF image
// XObjects use.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync/atomic"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Color spaces of decoded images.
const (
	DeviceRGB  = "DeviceRGB"
	DeviceGray = "DeviceGray"
)

// Image holds 8-bit samples, row by row without padding. Alpha is nil for
// opaque images.
type Image struct {
	Width      int
	Height     int
	ColorSpace string
	Pixels     []byte
	Alpha      []byte
	Format     string
}

// Components returns the number of samples per pixel.
func (img *Image) Components() int {
	if img.ColorSpace == DeviceGray {
		return 1
	}
	return 3
}

// Source decodes encoded image bytes.
type Source interface {
	Decode(data []byte) (*Image, error)
}

type sourceSlot struct{ s Source }

var global atomic.Pointer[sourceSlot]

// SetSource registers the process-wide image source. The first
// registration wins; later calls return false.
func SetSource(s Source) bool {
	if s == nil {
		return false
	}
	return global.CompareAndSwap(nil, &sourceSlot{s: s})
}

// CurrentSource returns the registered source or a DefaultSource.
func CurrentSource() Source {
	if s := global.Load(); s != nil {
		return s.s
	}
	return DefaultSource{}
}

var ErrTooLarge = errors.New("image exceeds pixel limit")

// DefaultSource decodes PNG, JPEG, GIF, BMP, TIFF and WebP.
type DefaultSource struct {
	// MaxPixels rejects larger images. Zero means 64 megapixels.
	MaxPixels int
	// MaxDimension downscales images whose width or height exceeds it.
	// Zero keeps the original size.
	MaxDimension int
}

func (s DefaultSource) Decode(data []byte) (*Image, error) {
	limit := s.MaxPixels
	if limit <= 0 {
		limit = 64 << 20
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > limit {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	if s.MaxDimension > 0 {
		src = Fit(src, s.MaxDimension)
	}
	img := FromImage(src)
	img.Format = format
	return img, nil
}

// FromFile decodes the file at path with the current source.
func FromFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CurrentSource().Decode(data)
}

// Fit scales src down so neither side exceeds limit, keeping the aspect
// ratio. Smaller images are returned unchanged.
func Fit(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src
	}
	if w >= h {
		h = h * limit / w
		w = limit
	} else {
		w = w * limit / h
		h = limit
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// FromImage converts src to 8-bit samples. Gray images stay gray; any
// translucent pixel produces an alpha plane.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := src.(*image.Gray); ok {
		pixels := make([]byte, 0, w*h)
		for y := 0; y < h; y++ {
			off := g.PixOffset(b.Min.X, b.Min.Y+y)
			pixels = append(pixels, g.Pix[off:off+w]...)
		}
		return &Image{Width: w, Height: h, ColorSpace: DeviceGray, Pixels: pixels}
	}

	// non-premultiplied samples
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		off := i * 4
		pixels = append(pixels, nrgba.Pix[off], nrgba.Pix[off+1], nrgba.Pix[off+2])
		a := nrgba.Pix[off+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}
	img := &Image{Width: w, Height: h, ColorSpace: DeviceRGB, Pixels: pixels}
	if hasAlpha {
		img.Alpha = alpha
	}
	return img
}
