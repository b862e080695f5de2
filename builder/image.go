package builder

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/images"
	"github.com/wudi/pdfcodec/ir/raw"
)

// addImage stores img as an image XObject. An alpha plane becomes a
// DeviceGray soft mask.
func (g *Graphics) addImage(img *images.Image) (raw.ObjectRef, error) {
	comps := img.Components()
	if comps == 0 {
		return raw.ObjectRef{}, fmt.Errorf("draw image: unsupported color space %q", img.ColorSpace)
	}
	if len(img.Pixels) != img.Width*img.Height*comps {
		return raw.ObjectRef{}, errors.New("draw image: pixel data does not match dimensions")
	}
	dict := imageDict(img.Width, img.Height, img.ColorSpace)
	if len(img.Alpha) > 0 {
		if len(img.Alpha) != img.Width*img.Height {
			return raw.ObjectRef{}, errors.New("draw image: alpha plane does not match dimensions")
		}
		mask := imageDict(img.Width, img.Height, images.DeviceGray)
		maskRef := g.doc.Add(raw.NewStream(mask, img.Alpha))
		dict.Set("SMask", raw.RefObj{R: maskRef})
	}
	return g.doc.Add(raw.NewStream(dict, img.Pixels)), nil
}

func imageDict(width, height int, colorSpace string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(width)))
	d.Set("Height", raw.NumberInt(int64(height)))
	d.Set("ColorSpace", raw.NameLiteral(colorSpace))
	d.Set("BitsPerComponent", raw.NumberInt(8))
	return d
}
