package builder

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/wudi/pdfcodec/fonts"
	"github.com/wudi/pdfcodec/ir/raw"
)

// fontResource tracks the glyphs drawn with one font program on a page.
type fontResource struct {
	name string
	data *fonts.FontData
	// text maps glyph IDs to the text they render, for ToUnicode.
	text map[int]string
}

func (g *Graphics) fontFor(fd *fonts.FontData) *fontResource {
	if res, ok := g.fonts[fd]; ok {
		return res
	}
	res := &fontResource{name: g.resourceName("F"), data: fd, text: make(map[int]string)}
	g.fonts[fd] = res
	return res
}

func (r *fontResource) use(gid int, text string) {
	if prev, ok := r.text[gid]; ok && prev != "" {
		return
	}
	r.text[gid] = text
}

const (
	flagFixedPitch  = 1 << 0
	flagNonsymbolic = 1 << 5
	flagItalic      = 1 << 6
)

// embed adds the Type0 font, its CIDFontType2 descendant, the descriptor,
// the font program and the ToUnicode CMap to doc.
func (r *fontResource) embed(doc *raw.Document) (raw.ObjectRef, error) {
	m, err := r.data.Metrics()
	if err != nil {
		return raw.ObjectRef{}, err
	}

	program := raw.Dict()
	program.Set("Length1", raw.NumberInt(int64(len(r.data.Data))))
	programRef := doc.Add(raw.NewStream(program, r.data.Data))

	flags := flagNonsymbolic
	if r.data.Style&fonts.Italic != 0 || m.ItalicAngle != 0 {
		flags |= flagItalic
	}
	if r.fixedPitch() {
		flags |= flagFixedPitch
	}
	desc := raw.Dict()
	desc.Set("Type", raw.NameLiteral("FontDescriptor"))
	desc.Set("FontName", raw.NameLiteral(m.PostScriptName))
	desc.Set("Flags", raw.NumberInt(int64(flags)))
	desc.Set("FontBBox", raw.NewArray(
		realOrInt(m.BBox[0]), realOrInt(m.BBox[1]), realOrInt(m.BBox[2]), realOrInt(m.BBox[3])))
	desc.Set("ItalicAngle", realOrInt(m.ItalicAngle))
	desc.Set("Ascent", realOrInt(m.Ascent))
	desc.Set("Descent", realOrInt(m.Descent))
	desc.Set("CapHeight", realOrInt(m.CapHeight))
	stemV := int64(80)
	if r.data.Style&fonts.Bold != 0 {
		stemV = 140
	}
	desc.Set("StemV", raw.NumberInt(stemV))
	desc.Set("FontFile2", raw.RefObj{R: programRef})
	descRef := doc.Add(desc)

	sysInfo := raw.Dict()
	sysInfo.Set("Registry", raw.Str([]byte("Adobe")))
	sysInfo.Set("Ordering", raw.Str([]byte("Identity")))
	sysInfo.Set("Supplement", raw.NumberInt(0))

	cid := raw.Dict()
	cid.Set("Type", raw.NameLiteral("Font"))
	cid.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	cid.Set("BaseFont", raw.NameLiteral(m.PostScriptName))
	cid.Set("CIDSystemInfo", sysInfo)
	cid.Set("FontDescriptor", raw.RefObj{R: descRef})
	cid.Set("DW", raw.NumberInt(int64(m.DefaultWidth)))
	cid.Set("W", r.widthArray())
	cid.Set("CIDToGIDMap", raw.NameLiteral("Identity"))
	cidRef := doc.Add(cid)

	toUnicodeRef := doc.Add(raw.NewStream(raw.Dict(), r.toUnicode()))

	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("Type0"))
	font.Set("BaseFont", raw.NameLiteral(m.PostScriptName))
	font.Set("Encoding", raw.NameLiteral("Identity-H"))
	font.Set("DescendantFonts", raw.NewArray(raw.RefObj{R: cidRef}))
	font.Set("ToUnicode", raw.RefObj{R: toUnicodeRef})
	return doc.Add(font), nil
}

func (r *fontResource) fixedPitch() bool {
	m, _ := r.data.Metrics()
	if m == nil {
		return false
	}
	width := -1
	for _, w := range m.Widths {
		if w == 0 {
			continue
		}
		if width >= 0 && w != width {
			return false
		}
		width = w
	}
	return width > 0
}

func (r *fontResource) gids() []int {
	out := make([]int, 0, len(r.text))
	for gid := range r.text {
		out = append(out, gid)
	}
	sort.Ints(out)
	return out
}

// widthArray lists the widths of the used glyphs, grouping consecutive
// glyph IDs into one run: [g [w1 w2 ...] ...].
func (r *fontResource) widthArray() *raw.ArrayObj {
	arr := raw.NewArray()
	gids := r.gids()
	for i := 0; i < len(gids); {
		start := gids[i]
		run := raw.NewArray(raw.NumberInt(int64(r.data.Width(start))))
		j := i + 1
		for j < len(gids) && gids[j] == gids[j-1]+1 {
			run.Append(raw.NumberInt(int64(r.data.Width(gids[j]))))
			j++
		}
		arr.Append(raw.NumberInt(int64(start)))
		arr.Append(run)
		i = j
	}
	return arr
}

// bfcharLimit is the largest number of entries a beginbfchar block may
// hold.
const bfcharLimit = 100

func (r *fontResource) toUnicode() []byte {
	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")

	var entries []int
	for _, gid := range r.gids() {
		if r.text[gid] != "" {
			entries = append(entries, gid)
		}
	}
	for len(entries) > 0 {
		n := len(entries)
		if n > bfcharLimit {
			n = bfcharLimit
		}
		fmt.Fprintf(&b, "%d beginbfchar\n", n)
		for _, gid := range entries[:n] {
			fmt.Fprintf(&b, "<%04X> <", gid)
			for _, u := range utf16.Encode([]rune(r.text[gid])) {
				fmt.Fprintf(&b, "%04X", u)
			}
			b.WriteString(">\n")
		}
		b.WriteString("endbfchar\n")
		entries = entries[n:]
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}

func realOrInt(f float64) raw.NumberObj {
	if f == float64(int64(f)) {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}
