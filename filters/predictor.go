package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
)

func predictorParam(params *raw.DictObj, key string, def int64) int64 {
	if v, ok := params.GetInt(key); ok {
		return v
	}
	return def
}

// applyPredictor reverses TIFF (2) and PNG (10..15) prediction.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor := predictorParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := predictorParam(params, "Colors", 1)
	bpc := predictorParam(params, "BitsPerComponent", 8)
	columns := predictorParam(params, "Columns", 1)
	if colors < 1 || columns < 1 || bpc < 1 || bpc > 16 {
		return nil, fmt.Errorf("invalid predictor parameters colors=%d bpc=%d columns=%d", colors, bpc, columns)
	}
	bpp := int((colors*bpc + 7) / 8)
	rowLen := int((colors*bpc*columns + 7) / 8)

	if predictor == 2 {
		if bpc != 8 {
			return nil, errors.New("TIFF predictor supports 8 bits per component only")
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}
	if predictor < 10 {
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}

	out := make([]byte, 0, len(data)/(rowLen+1)*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for off := 0; off < len(data); off += rowLen + 1 {
		end := off + rowLen + 1
		if end > len(data) {
			end = len(data)
		}
		filter := data[off]
		for i := range cur {
			cur[i] = 0
		}
		copy(cur, data[off+1:end])
		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("invalid PNG filter type %d", filter)
			}
		}
		out = append(out, cur[:end-off-1]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
