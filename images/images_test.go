package images

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// translucent returns a 4x2 image whose right half is half transparent.
func translucent() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			a := uint8(255)
			if x >= 2 {
				a = 128
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 10, B: 30, A: a})
		}
	}
	return img
}

func TestDecodePNGWithAlpha(t *testing.T) {
	img, err := DefaultSource{}.Decode(encodePNG(t, translucent()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Format != "png" || img.ColorSpace != DeviceRGB {
		t.Fatalf("format %q color space %q", img.Format, img.ColorSpace)
	}
	if img.Width != 4 || img.Height != 2 || len(img.Pixels) != 4*2*3 {
		t.Fatalf("size %dx%d with %d samples", img.Width, img.Height, len(img.Pixels))
	}
	if len(img.Alpha) != 8 || img.Alpha[0] != 255 || img.Alpha[3] != 128 {
		t.Fatalf("alpha plane %v", img.Alpha)
	}
	if !bytes.Equal(img.Pixels[:3], []byte{200, 10, 30}) {
		t.Fatalf("first pixel %v", img.Pixels[:3])
	}
}

func TestOpaqueImageHasNoAlpha(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, src); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	img, err := DefaultSource{}.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode bmp: %v", err)
	}
	if img.Format != "bmp" || img.Alpha != nil {
		t.Fatalf("format %q alpha %v", img.Format, img.Alpha)
	}
}

func TestGrayStaysGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 2))
	src.Pix = []byte{0, 64, 128, 255}
	img := FromImage(src)
	if img.ColorSpace != DeviceGray || img.Components() != 1 {
		t.Fatalf("color space %q", img.ColorSpace)
	}
	if !bytes.Equal(img.Pixels, src.Pix) {
		t.Fatalf("pixels %v", img.Pixels)
	}
}

func TestLimits(t *testing.T) {
	data := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 100, 50)))
	if _, err := (DefaultSource{MaxPixels: 1000}).Decode(data); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	img, err := DefaultSource{MaxDimension: 20}.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Width != 20 || img.Height != 10 {
		t.Fatalf("scaled to %dx%d", img.Width, img.Height)
	}
	if _, err := (DefaultSource{}).Decode([]byte("nope")); err == nil {
		t.Fatalf("garbage should not decode")
	}
}

type fixedSource struct{ img *Image }

func (f fixedSource) Decode([]byte) (*Image, error) { return f.img, nil }

func TestSetSourceFirstWins(t *testing.T) {
	t.Cleanup(func() { global.Store(nil) })
	global.Store(nil)

	if _, ok := CurrentSource().(DefaultSource); !ok {
		t.Fatalf("default source expected")
	}
	first := fixedSource{img: &Image{Width: 1}}
	if !SetSource(first) {
		t.Fatalf("first registration should succeed")
	}
	if SetSource(fixedSource{img: &Image{Width: 2}}) {
		t.Fatalf("second registration should be ignored")
	}
	img, _ := CurrentSource().Decode(nil)
	if img.Width != 1 {
		t.Fatalf("current source replaced")
	}
}
