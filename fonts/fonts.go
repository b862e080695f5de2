// Package fonts resolves TrueType fonts for drawing and measures and shapes
// text with them.
package fonts

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

type Style int

const (
	Regular Style = 0
	Bold    Style = 1 << 0
	Italic  Style = 1 << 1

	BoldItalic = Bold | Italic
)

func (s Style) String() string {
	switch s {
	case Regular:
		return "regular"
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case BoldItalic:
		return "bold-italic"
	}
	return fmt.Sprintf("Style(%d)", int(s))
}

var ErrFontNotFound = errors.New("font not found")

// Resolver supplies font programs by family name and style.
type Resolver interface {
	Resolve(family string, style Style) (*FontData, error)
}

type resolverSlot struct{ r Resolver }

var global atomic.Pointer[resolverSlot]

// SetResolver registers the process-wide resolver. The first registration
// wins; later calls leave it in place and return false.
func SetResolver(r Resolver) bool {
	if r == nil {
		return false
	}
	return global.CompareAndSwap(nil, &resolverSlot{r: r})
}

// CurrentResolver returns the registered resolver, or the built-in Go font
// resolver when none is registered.
func CurrentResolver() Resolver {
	if s := global.Load(); s != nil {
		return s.r
	}
	return goResolver
}

// FontData is a TrueType font program and the metrics derived from it.
type FontData struct {
	Family string
	Style  Style
	Data   []byte

	once    sync.Once
	font    *sfnt.Font
	metrics *Metrics
	err     error
}

// NewFontData wraps a TrueType or OpenType (glyf) font program.
func NewFontData(family string, style Style, data []byte) (*FontData, error) {
	fd := &FontData{Family: family, Style: style, Data: data}
	if _, err := fd.Metrics(); err != nil {
		return nil, err
	}
	return fd, nil
}

// Metrics describes a font in glyph space units of 1/1000 em.
type Metrics struct {
	PostScriptName string
	UnitsPerEm     int
	Ascent         float64
	Descent        float64
	CapHeight      float64
	ItalicAngle    float64
	BBox           [4]float64
	// Widths maps glyph IDs to advance widths.
	Widths       map[int]int
	DefaultWidth int
}

func (f *FontData) Metrics() (*Metrics, error) {
	f.once.Do(f.load)
	return f.metrics, f.err
}

func (f *FontData) load() {
	if len(f.Data) == 0 {
		f.err = errors.New("truetype font data is empty")
		return
	}
	font, err := sfnt.Parse(f.Data)
	if err != nil {
		f.err = fmt.Errorf("parse truetype: %w", err)
		return
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		f.err = errors.New("invalid unitsPerEm")
		return
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	name := strings.Join(strings.Fields(f.Family), "")
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		name = ps
	}
	if name == "" {
		name = "CustomTT"
	}

	widths := glyphWidths(font, buf, unitsPerEm, ppem)
	defaultWidth := widths[0]
	if defaultWidth == 0 {
		defaultWidth = 1000
	}
	m, _ := font.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(buf, ppem, xfont.HintingNone)
	capHeight := scaleFixed(m.CapHeight, unitsPerEm)
	if capHeight == 0 {
		capHeight = scaleFixed(m.Ascent, unitsPerEm)
	}
	f.font = font
	f.metrics = &Metrics{
		PostScriptName: name,
		UnitsPerEm:     int(unitsPerEm),
		Ascent:         scaleFixed(m.Ascent, unitsPerEm),
		Descent:        -scaleFixed(m.Descent, unitsPerEm),
		CapHeight:      capHeight,
		ItalicAngle:    italicAngle(font),
		// sfnt bounds grow downwards
		BBox: [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		},
		Widths:       widths,
		DefaultWidth: defaultWidth,
	}
}

// GlyphIndex maps r through the font's cmap. Zero means .notdef.
func (f *FontData) GlyphIndex(r rune) int {
	if _, err := f.Metrics(); err != nil {
		return 0
	}
	gid, err := f.font.GlyphIndex(&sfnt.Buffer{}, r)
	if err != nil {
		return 0
	}
	return int(gid)
}

// Width returns the advance of glyph gid in 1/1000 em.
func (f *FontData) Width(gid int) int {
	m, err := f.Metrics()
	if err != nil {
		return 0
	}
	if w, ok := m.Widths[gid]; ok {
		return w
	}
	return m.DefaultWidth
}

func glyphWidths(font *sfnt.Font, buf *sfnt.Buffer, unitsPerEm sfnt.Units, ppem fixed.Int26_6) map[int]int {
	glyphs := font.NumGlyphs()
	widths := make(map[int]int, glyphs)
	for i := 0; i < glyphs; i++ {
		adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		widths[i] = int(math.Round(scaleFixed(adv, unitsPerEm)))
	}
	return widths
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
