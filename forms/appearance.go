package forms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfcodec/contentstream"
	"github.com/wudi/pdfcodec/ir/raw"
)

// GenerateAppearance builds a normal appearance stream for every widget of
// a text or choice field from its value, /DA and /Q. Characters outside
// PDFDocEncoding are replaced by '?'.
func (fl *Field) GenerateAppearance() error {
	if fl.form.doc.Locked {
		return raw.ErrLocked
	}
	switch fl.Type() {
	case "Tx", "Ch":
	default:
		return fmt.Errorf("field %s: no appearance generator for type %q", fl.name, fl.Type())
	}
	if len(fl.widgets) == 0 {
		return errors.New("field has no widgets")
	}
	da := fl.defaultAppearance()
	fontName, fontSize, color := parseDA(da)
	if fontName == "" {
		fontName = "Helv"
	}
	if fontSize == 0 {
		fontSize = 12
	}
	q := int64(0)
	if v, ok := fl.inherited("Q"); ok {
		if n, ok := v.(raw.NumberObj); ok {
			q = n.Int()
		}
	}
	value, ok := raw.EncodePDFDoc(fl.Value())
	if !ok {
		value = []byte(strings.Map(func(r rune) rune {
			if r > 0x7e {
				return '?'
			}
			return r
		}, fl.Value()))
	}

	for _, w := range fl.widgets {
		width, height := widgetSize(fl.form.doc, w.dict)
		textWidth := float64(len(value)) * fontSize * 0.5

		var content contentstream.Writer
		content.Op("BMC", raw.NameLiteral("Tx")).
			Op("q").
			Op("re", contentstream.Nums(1, 1, width-2, height-2)...).
			Op("W").
			Op("n").
			Op("BT").
			Op("Tf", raw.NameLiteral(fontName), contentstream.Num(fontSize))
		if op := colorOperator(len(color)); op != "" {
			content.Op(op, contentstream.Nums(color...)...)
		}
		x := 2.0
		switch q {
		case 1:
			x = (width - textWidth) / 2
		case 2:
			x = width - textWidth - 2
		}
		y := (height-fontSize)/2 + 0.2*fontSize
		content.Op("Td", contentstream.Nums(x, y)...).
			Op("Tj", raw.Str(value)).
			Op("ET").
			Op("Q").
			Op("EMC")
		if err := content.Err(); err != nil {
			return fmt.Errorf("field %s: %w", fl.name, err)
		}

		dict := raw.Dict()
		dict.Set("Type", raw.NameLiteral("XObject"))
		dict.Set("Subtype", raw.NameLiteral("Form"))
		dict.Set("BBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberFloat(width), raw.NumberFloat(height)))
		if dr, ok := fl.form.dict.Get("DR"); ok {
			dict.Set("Resources", dr)
		}
		ref := fl.form.doc.Add(raw.NewStream(dict, content.Bytes()))
		ap := raw.Dict()
		ap.Set("N", raw.RefObj{R: ref})
		w.dict.Set("AP", ap)
		fl.form.doc.MarkModified(w.owner)
	}
	return nil
}

// GenerateAppearances regenerates the appearances of all text and choice
// fields and clears /NeedAppearances.
func (f *Form) GenerateAppearances() error {
	for _, fl := range f.Fields() {
		switch fl.Type() {
		case "Tx", "Ch":
		default:
			continue
		}
		if len(fl.widgets) == 0 {
			continue
		}
		if err := fl.GenerateAppearance(); err != nil {
			return fmt.Errorf("field %s: %w", fl.name, err)
		}
	}
	if f.Elements().Contains("NeedAppearances") {
		f.SetNeedAppearances(false)
	}
	return nil
}

func (fl *Field) defaultAppearance() string {
	if v, ok := fl.inherited("DA"); ok {
		if s, ok := v.(raw.StringObj); ok {
			return string(s.Bytes)
		}
	}
	v, _ := fl.form.dict.Get("DA")
	if b, ok := raw.DerefString(fl.form.doc, v); ok {
		return string(b)
	}
	return ""
}

func widgetSize(doc *raw.Document, w *raw.DictObj) (float64, float64) {
	rectObj, _ := w.Get("Rect")
	arr, ok := raw.DerefArray(doc, rectObj)
	if !ok || arr.Len() != 4 {
		return 100, 20
	}
	var v [4]float64
	for i, it := range arr.Items {
		v[i], _ = raw.Number(doc.Deref(it))
	}
	width, height := v[2]-v[0], v[3]-v[1]
	if width < 0 {
		width = -width
	}
	if height < 0 {
		height = -height
	}
	return width, height
}

// parseDA reads the font and color operators of a default appearance
// string. A malformed string yields whatever was read before the error.
func parseDA(da string) (fontName string, fontSize float64, color []float64) {
	ops, _ := contentstream.Parse([]byte(da))
	for _, op := range ops {
		switch op.Operator {
		case "Tf":
			if len(op.Operands) != 2 {
				continue
			}
			if n, ok := op.Operands[0].(raw.NameObj); ok {
				fontName = n.Val
			}
			fontSize, _ = contentstream.Float(op.Operands[1])
		case "g", "rg", "k":
			color = color[:0]
			for _, o := range op.Operands {
				f, _ := contentstream.Float(o)
				color = append(color, f)
			}
		}
	}
	return
}

func colorOperator(components int) string {
	switch components {
	case 1:
		return "g"
	case 3:
		return "rg"
	case 4:
		return "k"
	}
	return ""
}
